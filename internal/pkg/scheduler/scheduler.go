// Package scheduler triggers the reminder dispatch on a cron schedule. Each
// tick takes a Redis lock first so that only one replica dispatches at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/ManuelReschke/SubTrack/internal/pkg/config"
)

const lockName = "subtrack:scheduler:dispatch"

// Job is the work run on every tick.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron    *cron.Cron
	mutex   *redsync.Mutex
	job     Job
	timeout time.Duration
	spec    string

	mu      sync.Mutex
	running bool
}

func New(cfg config.SchedulerConfig, client *redis.Client, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("scheduler job is nil")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	rs := redsync.New(goredis.NewPool(client))
	s := &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		mutex:   rs.NewMutex(lockName, redsync.WithExpiry(cfg.LockTTL), redsync.WithTries(1)),
		job:     job,
		timeout: cfg.RunTimeout,
		spec:    cfg.Spec,
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	log.Infof("[Scheduler] Started with schedule %q", s.spec)
}

// Stop waits for a running tick or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info("[Scheduler] Stopped")
	case <-ctx.Done():
		log.Warn("[Scheduler] Stop timed out while a run was in progress")
	}
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		log.Errorf("[Scheduler] Run failed: %v", err)
	}
}

// RunOnce runs the job if the lock is free. ran is false when another
// process holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	if err := s.mutex.TryLockContext(ctx); err != nil {
		log.Infof("[Scheduler] Skipping run, lock busy: %v", err)
		return false, nil
	}
	defer func() {
		if _, uerr := s.mutex.UnlockContext(context.WithoutCancel(ctx)); uerr != nil {
			log.Warnf("[Scheduler] Failed to release lock: %v", uerr)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err = s.job(runCtx)
	log.Infof("[Scheduler] Run finished in %s", time.Since(start).Round(time.Millisecond))
	return true, err
}
