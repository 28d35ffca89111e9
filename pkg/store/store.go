package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heliowatt/solarstream/pkg/utils"
)

var (
	// ErrNotFound is returned when an account email has no match.
	ErrNotFound = errors.New("account not found")
	// ErrAlreadyExists is returned when creating an account with a taken email.
	ErrAlreadyExists = errors.New("account already exists")
)

// Store holds account identities, credential hashes, per-account sample
// histories and the cached savings totals.
//
// AppendSample persists the sample together with the recomputed total and
// returns that total; callers must treat the returned value, not any local
// arithmetic, as the account's savings after the append.
type Store interface {
	CreateAccount(ctx context.Context, email string, passwordHash []byte) (*Account, error)
	GetAccount(ctx context.Context, email string) (*Account, error)
	ListEmails(ctx context.Context) ([]string, error)

	AppendSample(ctx context.Context, email string, s Sample) (total float64, err error)
	SetTotalSavings(ctx context.Context, email string, total float64) error

	// SamplesSince returns every sample with Timestamp >= cutoff, oldest first.
	SamplesSince(ctx context.Context, email string, cutoff time.Time) ([]Sample, error)
	// RecentSamples returns the most recent n samples, oldest first.
	RecentSamples(ctx context.Context, email string, n int) ([]Sample, error)
	TotalSavings(ctx context.Context, email string) (float64, error)

	Ping(ctx context.Context) error
	Close() error
}

// New selects a backend from STORE_BACKEND ("memory" or "clickhouse").
func New(ctx context.Context, logger *zap.Logger) (Store, error) {
	backend := utils.Env("STORE_BACKEND", "memory")
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "clickhouse":
		return NewClickHouse(ctx, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
