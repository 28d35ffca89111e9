package sim

import (
	"context"
	"math"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/store"
)

// Reconciler periodically re-derives every account's savings total from its
// full sample history and repairs any drift in the cached value. The append
// path already recomputes on every write; this job is the safety net that
// holds the invariant if a backend ever reorders or backfills samples.
type Reconciler struct {
	logger *zap.Logger
	store  store.Store
}

func NewReconciler(logger *zap.Logger, st store.Store) *Reconciler {
	return &Reconciler{logger: logger, store: st}
}

// Schedule runs Reconcile on the given cron spec (e.g. "@every 1m") until
// the returned cron is stopped. The caller owns the cron's lifecycle.
func (r *Reconciler) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := r.Reconcile(ctx); err != nil {
			r.logger.Error("aggregate reconciliation failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	r.logger.Info("aggregate reconciler scheduled", zap.String("spec", spec))
	return c, nil
}

// Reconcile checks every account once. Per-account failures are logged and
// do not stop the sweep.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	emails, err := r.store.ListEmails(ctx)
	if err != nil {
		return err
	}

	for _, email := range emails {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileAccount(ctx, email); err != nil {
			r.logger.Warn("account reconciliation failed",
				zap.String("email", email),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) reconcileAccount(ctx context.Context, email string) error {
	samples, err := r.store.SamplesSince(ctx, email, time.Time{})
	if err != nil {
		return err
	}
	want := store.SolarTotal(samples)

	got, err := r.store.TotalSavings(ctx, email)
	if err != nil {
		return err
	}

	if math.Abs(want-got) < 1e-9 {
		return nil
	}

	r.logger.Warn("savings total drifted from history, repairing",
		zap.String("email", email),
		zap.Float64("cached", got),
		zap.Float64("recomputed", want))
	return r.store.SetTotalSavings(ctx, email, want)
}
