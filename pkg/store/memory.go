package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is the in-process Store backend, used by default and in tests.
// Accounts live in a concurrent map; each account carries its own mutex so
// appends for different accounts never contend.
type Memory struct {
	accounts *xsync.Map[string, *memoryAccount]
}

type memoryAccount struct {
	mu   sync.Mutex
	acct Account
}

func NewMemory() *Memory {
	return &Memory{accounts: xsync.NewMap[string, *memoryAccount]()}
}

func (m *Memory) CreateAccount(_ context.Context, email string, passwordHash []byte) (*Account, error) {
	acct := Account{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	// The entry is visible to concurrent ticks the moment LoadOrStore
	// returns, so the returned snapshot is built from the local copy.
	if _, loaded := m.accounts.LoadOrStore(email, &memoryAccount{acct: acct}); loaded {
		return nil, ErrAlreadyExists
	}
	return &acct, nil
}

func (m *Memory) GetAccount(_ context.Context, email string) (*Account, error) {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	acct := entry.acct
	acct.Samples = append([]Sample(nil), entry.acct.Samples...)
	return &acct, nil
}

func (m *Memory) ListEmails(_ context.Context) ([]string, error) {
	emails := make([]string, 0, m.accounts.Size())
	m.accounts.Range(func(email string, _ *memoryAccount) bool {
		emails = append(emails, email)
		return true
	})
	sort.Strings(emails)
	return emails, nil
}

func (m *Memory) AppendSample(_ context.Context, email string, s Sample) (float64, error) {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return 0, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.acct.Samples = append(entry.acct.Samples, s)
	entry.acct.TotalSavings = SolarTotal(entry.acct.Samples)
	return entry.acct.TotalSavings, nil
}

func (m *Memory) SetTotalSavings(_ context.Context, email string, total float64) error {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.acct.TotalSavings = total
	return nil
}

func (m *Memory) SamplesSince(_ context.Context, email string, cutoff time.Time) ([]Sample, error) {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	// Samples are appended in chronological order, so a single pass keeps it.
	out := make([]Sample, 0)
	for _, s := range entry.acct.Samples {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) RecentSamples(_ context.Context, email string, n int) ([]Sample, error) {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return nil, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	samples := entry.acct.Samples
	if n > 0 && len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	return append([]Sample(nil), samples...), nil
}

func (m *Memory) TotalSavings(_ context.Context, email string) (float64, error) {
	entry, ok := m.accounts.Load(email)
	if !ok {
		return 0, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.acct.TotalSavings, nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
