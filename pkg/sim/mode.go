package sim

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Mode is the process-wide two-state driver of the value range new samples
// are drawn from. All accounts share the same mode at any instant.
type Mode int32

const (
	ModeLow Mode = iota
	ModeHigh
)

func (m Mode) String() string {
	if m == ModeHigh {
		return "high"
	}
	return "low"
}

// Oscillator flips between Low and High on a fixed period. It starts Low.
// Only the oscillator writes the state; Current is a lock-free read and
// never blocks.
type Oscillator struct {
	logger *zap.Logger
	period time.Duration
	state  atomic.Int32
}

func NewOscillator(logger *zap.Logger, period time.Duration) *Oscillator {
	return &Oscillator{logger: logger, period: period}
}

// Current returns the mode in effect right now.
func (o *Oscillator) Current() Mode {
	return Mode(o.state.Load())
}

// Toggle flips the state once. Exposed so tests can drive the clock.
func (o *Oscillator) Toggle() {
	for {
		cur := o.state.Load()
		next := int32(ModeHigh)
		if Mode(cur) == ModeHigh {
			next = int32(ModeLow)
		}
		if o.state.CompareAndSwap(cur, next) {
			o.logger.Debug("simulation mode toggled", zap.String("mode", Mode(next).String()))
			return
		}
	}
}

// Run flips the state every period until ctx is cancelled.
func (o *Oscillator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()

	o.logger.Info("mode oscillator started", zap.Duration("period", o.period))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Toggle()
		}
	}
}
