package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestNewSessionCleanup_RejectsInvalidCron(t *testing.T) {
	_, err := NewSessionCleanup(&countingCleaner{}, "not a cron")
	assert.Error(t, err)

	c, err := NewSessionCleanup(&countingCleaner{}, "")
	require.NoError(t, err)
	assert.Equal(t, "@hourly", c.expr)
}

func TestSessionCleanup_RunsOnTick(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("transient")}
	c, err := NewSessionCleanup(cleaner, "* * * * *")
	require.NoError(t, err)

	// A clock just before a minute boundary makes the next tick imminent.
	base := time.Now().UTC().Truncate(time.Minute).Add(time.Minute)
	start := time.Now()
	c.now = func() time.Time {
		return base.Add(-50 * time.Millisecond).Add(time.Since(start))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop")
	}
}
