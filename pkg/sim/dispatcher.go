package sim

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/metrics"
	"github.com/heliowatt/solarstream/pkg/store"
)

// EventMirror forwards published events to an external channel (e.g. Redis
// Pub/Sub) so hubs in other instances can deliver them too. Implementations
// must be best-effort and never block the tick.
type EventMirror interface {
	Mirror(ctx context.Context, identity string, event hub.Event)
}

// Dispatcher advances the simulation for every known account once per tick:
// generate a sample under the current mode, persist it together with the
// recomputed savings total, then push both to the account's subscribers.
//
// Per-account work runs on a bounded worker pool. An in-flight guard
// serializes work per account across overlapping ticks so two cycles can
// never interleave on the same history.
type Dispatcher struct {
	logger     *zap.Logger
	store      store.Store
	hub        *hub.Hub
	oscillator *Oscillator
	mirror     EventMirror
	interval   time.Duration

	pool     pond.Pool
	inflight *xsync.Map[string, struct{}]

	rngMu sync.Mutex
	rng   *rand.Rand
}

const (
	DefaultTickInterval = time.Second
	DefaultModeInterval = 10 * time.Second
)

// Options configures a Dispatcher. Mirror may be nil.
type Options struct {
	TickInterval   time.Duration
	ModeInterval   time.Duration
	MaxParallelism int
	Mirror         EventMirror
}

func NewDispatcher(logger *zap.Logger, st store.Store, h *hub.Hub, opts Options) *Dispatcher {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.ModeInterval <= 0 {
		opts.ModeInterval = DefaultModeInterval
	}
	workers := Parallelism(opts.MaxParallelism)

	return &Dispatcher{
		logger:     logger,
		store:      st,
		hub:        h,
		oscillator: NewOscillator(logger, opts.ModeInterval),
		mirror:     opts.Mirror,
		interval:   opts.TickInterval,
		pool:       pond.NewPool(workers, pond.WithQueueSize(workers*64)),
		inflight:   xsync.NewMap[string, struct{}](),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Oscillator exposes the mode clock owned by this dispatcher.
func (d *Dispatcher) Oscillator() *Oscillator { return d.oscillator }

// Run drives the oscillator and the tick loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	go d.oscillator.Run(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("tick dispatcher started",
		zap.Duration("tick_interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.pool.StopAndWait()
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one full dispatch cycle across all accounts and waits for every
// per-account task to settle. Exported so tests can drive the clock.
func (d *Dispatcher) Tick(ctx context.Context) {
	start := time.Now()
	metrics.TicksTotal.Inc()

	emails, err := d.store.ListEmails(ctx)
	if err != nil {
		d.logger.Error("tick aborted, account listing failed", zap.Error(err))
		return
	}

	group := d.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, email := range emails {
		email := email
		if _, loaded := d.inflight.LoadOrStore(email, struct{}{}); loaded {
			// Previous tick's work for this account is still running.
			metrics.TickSkips.Inc()
			continue
		}
		group.Submit(func() {
			defer d.inflight.Delete(email)
			if groupCtx.Err() != nil {
				return
			}
			d.tickAccount(groupCtx, email)
		})
	}

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		d.logger.Warn("tick group finished with error", zap.Error(err))
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// tickAccount is one account's unit of work: generate, persist, publish.
// Publish never precedes a successful persist, so a subscriber can never
// observe a sample that a concurrent historical query cannot see yet.
func (d *Dispatcher) tickAccount(ctx context.Context, email string) {
	mode := d.oscillator.Current()

	d.rngMu.Lock()
	sample := Generate(mode, d.rng, time.Now())
	d.rngMu.Unlock()

	total, err := d.store.AppendSample(ctx, email, sample)
	if err != nil {
		// This account retries naturally on the next tick; the rest of the
		// tick is unaffected.
		metrics.PersistFailures.Inc()
		d.logger.Warn("sample persistence failed",
			zap.String("email", email),
			zap.String("mode", mode.String()),
			zap.Error(err))
		return
	}
	metrics.SamplesGenerated.Inc()

	rateEvent := hub.Event{Type: hub.EventNewRate, Payload: sample}
	totalEvent := hub.Event{Type: hub.EventTotalSavings, Payload: hub.TotalSavingsPayload{TotalSavings: total}}

	delivered := d.hub.Publish(email, rateEvent)
	delivered += d.hub.Publish(email, totalEvent)
	metrics.EventsDelivered.Add(float64(delivered))

	if d.mirror != nil {
		d.mirror.Mirror(ctx, email, rateEvent)
		d.mirror.Mirror(ctx, email, totalEvent)
	}
}

// Parallelism sizes the dispatch pool: the override wins when positive,
// otherwise four workers per CPU, clamped to [2, 256].
func Parallelism(override int) int {
	if override > 0 {
		if override > 256 {
			return 256
		}
		return override
	}
	n := runtime.NumCPU() * 4
	if n < 2 {
		n = 2
	}
	if n > 256 {
		n = 256
	}
	return n
}
