package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubTrack/internal/pkg/notify"
)

func newTestQueue(t *testing.T, workers int) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewQueue(client, workers)
	q.pollTimeout = 50 * time.Millisecond
	q.retryBackoff = 10 * time.Millisecond
	return q, mr
}

// waitFor polls condition until it holds or the timeout passes.
func waitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func sampleMessage() notify.Message {
	return notify.Message{
		Channel:        notify.ChannelEmail,
		SubscriptionID: 9,
		RecipientID:    3,
		Recipient:      "jane@example.com",
		Template:       notify.TemplateRenewalReminder,
		Context:        map[string]string{"name": "Netflix"},
	}
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, DefaultWorkers},
		{"Negative workers", -1, DefaultWorkers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.handlers)
			assert.False(t, queue.IsRunning())
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func TestQueue_EnqueueNotification(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	require.NoError(t, q.EnqueueNotification(ctx, sampleMessage()))

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusPending])

	bad := sampleMessage()
	bad.Recipient = ""
	assert.Error(t, q.EnqueueNotification(ctx, bad))
}

func TestQueue_EnqueueFailsWhenRedisDown(t *testing.T) {
	q, mr := newTestQueue(t, 1)
	mr.Close()

	assert.Error(t, q.EnqueueNotification(context.Background(), sampleMessage()))
}

type captureSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestQueue_WorkersDeliverNotifications(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	ctx := context.Background()
	sender := &captureSender{}
	q.RegisterHandler(JobTypeReminderNotification, NewNotificationHandler(sender))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.EnqueueNotification(ctx, sampleMessage()))
	}

	q.Start()
	defer q.Stop()

	require.True(t, waitFor(func() bool { return sender.count() == 3 }, 3*time.Second))
	assert.Equal(t, "jane@example.com", sender.msgs[0].Recipient)

	require.True(t, waitFor(func() bool {
		stats, _ := q.GetJobStats(ctx)
		return stats[JobStatusCompleted] == 3
	}, 3*time.Second))
	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

func TestQueue_RetriesThenFails(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()
	var attempts atomic.Int32
	q.RegisterHandler(JobTypeReminderNotification, func(context.Context, *Job) error {
		attempts.Add(1)
		return errors.New("smtp unavailable")
	})

	job, err := q.EnqueueJob(ctx, JobTypeReminderNotification, sampleMessage().ToMap())
	require.NoError(t, err)

	q.Start()
	defer q.Stop()

	require.True(t, waitFor(func() bool {
		stats, _ := q.GetJobStats(ctx)
		return stats[JobStatusFailed] == 1
	}, 5*time.Second))
	assert.Equal(t, int32(DefaultMaxRetries), attempts.Load())

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "smtp unavailable", stored.ErrorMsg)
}

func TestQueue_UnknownJobTypeFails(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()
	job, err := q.EnqueueJob(ctx, JobType("mystery"), nil)
	require.NoError(t, err)
	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)

	stored.MaxRetries = 0
	q.processJob(ctx, stored)

	reloaded, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMsg, "unknown job type")
}

func TestQueue_InvalidMessageNotRetried(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()
	sender := &captureSender{}
	q.RegisterHandler(JobTypeReminderNotification, NewNotificationHandler(sender))

	bad := sampleMessage()
	bad.Recipient = ""
	job, err := q.EnqueueJob(ctx, JobTypeReminderNotification, bad.ToMap())
	require.NoError(t, err)
	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)

	q.processJob(ctx, stored)

	reloaded, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMsg, "empty recipient")
	assert.Zero(t, sender.count())
}

func TestQueue_RecoverStuck(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeReminderNotification, sampleMessage().ToMap())
	require.NoError(t, err)
	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, dequeued.ID)

	dequeued.MarkAsProcessing()
	old := time.Now().Add(-time.Hour)
	dequeued.ProcessedAt = &old
	q.updateJob(ctx, dequeued)

	recovered, err := q.RecoverStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	pending, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)

	reloaded, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, reloaded.Status)
}

func TestManager_RunsPeriodicTasks(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	m := NewManager(q)
	var runs atomic.Int32
	m.AddTask(PeriodicTask{Name: "purge", Interval: 20 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	m.AddTask(PeriodicTask{Name: "broken"})

	m.Start()
	assert.True(t, m.IsRunning())
	assert.Same(t, q, m.GetQueue())
	require.True(t, waitFor(func() bool { return runs.Load() >= 2 }, 2*time.Second))
	m.Stop()
	assert.False(t, m.IsRunning())
	assert.False(t, q.IsRunning())
}
