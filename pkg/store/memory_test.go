package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetAccount(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	acct, err := m.CreateAccount(ctx, "a@example.com", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", acct.Email)
	assert.Zero(t, acct.TotalSavings)

	got, err := m.GetAccount(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	_, err = m.GetAccount(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.CreateAccount(ctx, "a@example.com", nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAppendSampleMaintainsInvariant(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateAccount(ctx, "a@example.com", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	total, err := m.AppendSample(ctx, "a@example.com", Sample{Value: 10, Category: CategoryNormal, Timestamp: now})
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)

	total, err = m.AppendSample(ctx, "a@example.com", Sample{Value: 60, Category: CategorySolar, Timestamp: now.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 60.0, total)

	total, err = m.AppendSample(ctx, "a@example.com", Sample{Value: 55, Category: CategorySolar, Timestamp: now.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 115.0, total)

	// The cached total always equals a recompute over the full history.
	samples, err := m.SamplesSince(ctx, "a@example.com", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, total, SolarTotal(samples))
	// Recomputing again without new samples yields the same value.
	assert.Equal(t, SolarTotal(samples), SolarTotal(samples))

	_, err = m.AppendSample(ctx, "missing@example.com", Sample{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSamplesSinceCompleteness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateAccount(ctx, "a@example.com", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	times := []time.Time{
		now.Add(-90 * time.Minute),
		now.Add(-30 * time.Minute),
		now.Add(-time.Minute),
	}
	for i, ts := range times {
		_, err := m.AppendSample(ctx, "a@example.com", Sample{Value: float64(i), Category: CategoryNormal, Timestamp: ts})
		require.NoError(t, err)
	}

	cutoff := now.Add(-time.Hour)
	got, err := m.SamplesSince(ctx, "a@example.com", cutoff)
	require.NoError(t, err)

	require.Len(t, got, 2)
	for _, s := range got {
		assert.False(t, s.Timestamp.Before(cutoff))
	}
	// Chronological order and exact boundary inclusion.
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))

	boundary, err := m.SamplesSince(ctx, "a@example.com", times[0])
	require.NoError(t, err)
	assert.Len(t, boundary, 3, "a sample exactly at the cutoff is included")
}

func TestRecentSamples(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateAccount(ctx, "a@example.com", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	for i := 0; i < 60; i++ {
		_, err := m.AppendSample(ctx, "a@example.com", Sample{Value: float64(i), Timestamp: now.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	recent, err := m.RecentSamples(ctx, "a@example.com", 50)
	require.NoError(t, err)
	require.Len(t, recent, 50)
	assert.Equal(t, 10.0, recent[0].Value, "oldest of the most recent 50")
	assert.Equal(t, 59.0, recent[49].Value)
}

func TestListEmails(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		_, err := m.CreateAccount(ctx, email, nil)
		require.NoError(t, err)
	}

	emails, err := m.ListEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, emails)
}

func TestSolarTotal(t *testing.T) {
	samples := []Sample{
		{Value: 10, Category: CategoryNormal},
		{Value: 60, Category: CategorySolar},
		{Value: 55, Category: CategorySolar},
	}
	assert.Equal(t, 115.0, SolarTotal(samples))
	assert.Equal(t, 0.0, SolarTotal(nil))
}

// Exercises the signup-during-tick path: accounts created while another
// goroutine appends samples to them. Run with -race.
func TestCreateAccountConcurrentWithAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, err := m.AppendSample(ctx, "a@example.com", Sample{
				Value:     60,
				Category:  CategorySolar,
				Timestamp: time.Now().UTC(),
			})
			if err != nil && !errors.Is(err, ErrNotFound) {
				t.Errorf("unexpected append error: %v", err)
				return
			}
		}
	}()

	acct, err := m.CreateAccount(ctx, "a@example.com", []byte("hash"))
	require.NoError(t, err)
	<-done

	// The snapshot reflects the account at creation time, untouched by
	// whatever the appender did afterwards.
	assert.Zero(t, acct.TotalSavings)
	assert.Empty(t, acct.Samples)
}
