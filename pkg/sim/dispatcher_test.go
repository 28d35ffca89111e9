package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/heliowatt/solarstream/pkg/hub"
	"github.com/heliowatt/solarstream/pkg/store"
)

func newTestDispatcher(t *testing.T, st store.Store) (*Dispatcher, *hub.Hub) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := hub.New(logger)
	d := NewDispatcher(logger, st, h, Options{MaxParallelism: 4})
	return d, h
}

func drain(sub *hub.Subscriber) []hub.Event {
	var events []hub.Event
	for {
		select {
		case e := <-sub.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestTickGeneratesPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateAccount(ctx, "a@example.com", nil)
	require.NoError(t, err)
	_, err = mem.CreateAccount(ctx, "b@example.com", nil)
	require.NoError(t, err)

	d, h := newTestDispatcher(t, mem)

	sub := hub.NewSubscriber(16)
	h.Subscribe("a@example.com", sub)

	d.Tick(ctx)

	for _, email := range []string{"a@example.com", "b@example.com"} {
		samples, err := mem.SamplesSince(ctx, email, time.Time{})
		require.NoError(t, err)
		require.Len(t, samples, 1, "one sample per account per tick")

		total, err := mem.TotalSavings(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, store.SolarTotal(samples), total)
	}

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, hub.EventNewRate, events[0].Type)
	assert.Equal(t, hub.EventTotalSavings, events[1].Type)

	sample, ok := events[0].Payload.(store.Sample)
	require.True(t, ok)
	assert.GreaterOrEqual(t, sample.Value, 0.0)
	assert.LessOrEqual(t, sample.Value, 100.0)
}

func TestTickIsolatesSubscribers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateAccount(ctx, "a@example.com", nil)
	require.NoError(t, err)
	_, err = mem.CreateAccount(ctx, "b@example.com", nil)
	require.NoError(t, err)

	d, h := newTestDispatcher(t, mem)

	subA := hub.NewSubscriber(16)
	subB := hub.NewSubscriber(16)
	h.Subscribe("a@example.com", subA)
	h.Subscribe("b@example.com", subB)

	d.Tick(ctx)

	for _, e := range drain(subA) {
		if s, ok := e.Payload.(store.Sample); ok {
			samples, err := mem.SamplesSince(ctx, "a@example.com", time.Time{})
			require.NoError(t, err)
			assert.Equal(t, samples[0], s, "subscriber A must only see A's sample")
		}
	}
	assert.Len(t, drain(subB), 2)
}

// failingStore rejects appends for one account to prove tick isolation.
type failingStore struct {
	*store.Memory
	failEmail string
}

func (f *failingStore) AppendSample(ctx context.Context, email string, s store.Sample) (float64, error) {
	if email == f.failEmail {
		return 0, errors.New("disk full")
	}
	return f.Memory.AppendSample(ctx, email, s)
}

func TestTickPersistFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateAccount(ctx, "ok@example.com", nil)
	require.NoError(t, err)
	_, err = mem.CreateAccount(ctx, "broken@example.com", nil)
	require.NoError(t, err)

	st := &failingStore{Memory: mem, failEmail: "broken@example.com"}
	d, h := newTestDispatcher(t, st)

	subBroken := hub.NewSubscriber(16)
	h.Subscribe("broken@example.com", subBroken)

	d.Tick(ctx)

	okSamples, err := mem.SamplesSince(ctx, "ok@example.com", time.Time{})
	require.NoError(t, err)
	assert.Len(t, okSamples, 1)

	brokenSamples, err := mem.SamplesSince(ctx, "broken@example.com", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, brokenSamples)

	// Publish must never precede successful persistence.
	assert.Empty(t, drain(subBroken))
}

func TestTickRetriesFailedAccountNextTick(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.CreateAccount(ctx, "flaky@example.com", nil)
	require.NoError(t, err)

	st := &failingStore{Memory: mem, failEmail: "flaky@example.com"}
	d, _ := newTestDispatcher(t, st)

	d.Tick(ctx)
	st.failEmail = ""
	d.Tick(ctx)

	samples, err := mem.SamplesSince(ctx, "flaky@example.com", time.Time{})
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestParallelism(t *testing.T) {
	assert.Equal(t, 8, Parallelism(8))
	assert.Equal(t, 256, Parallelism(10000))
	assert.GreaterOrEqual(t, Parallelism(0), 2)
	assert.LessOrEqual(t, Parallelism(0), 256)
}
