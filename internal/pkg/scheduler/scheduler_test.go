package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
)

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{Spec: "*/1 * * * * *", LockTTL: time.Minute, RunTimeout: time.Second}
}

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_InvalidSpec(t *testing.T) {
	cfg := testConfig()
	cfg.Spec = "not a schedule"
	_, err := New(cfg, newClient(t), func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = New(testConfig(), newClient(t), nil)
	assert.Error(t, err)
}

func TestRunOnce_RunsAndReleasesLock(t *testing.T) {
	var calls int32
	s, err := New(testConfig(), newClient(t), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ran, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, ran)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	client := newClient(t)
	other := redsync.New(goredis.NewPool(client)).NewMutex(lockName, redsync.WithExpiry(time.Minute))
	require.NoError(t, other.Lock())

	var calls int32
	s, err := New(testConfig(), client, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)

	ran, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, atomic.LoadInt32(&calls))

	_, err = other.Unlock()
	require.NoError(t, err)
	ran, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRunOnce_ReturnsJobError(t *testing.T) {
	boom := errors.New("dispatch failed")
	s, err := New(testConfig(), newClient(t), func(context.Context) error { return boom })
	require.NoError(t, err)

	ran, err := s.RunOnce(context.Background())
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestStartStop(t *testing.T) {
	var calls int32
	s, err := New(testConfig(), newClient(t), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}
