package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.Scheduler = (*Scheduler)(nil)

// schedulerLockName is the distributed lock guarding one scheduling cycle.
const schedulerLockName = "scheduler"

// Dispatcher accepts invocations for execution. Dispatch returns false when
// the invocation was not accepted, for example because the job is already
// running or the queue is full.
type Dispatcher interface {
	Dispatch(inv domain.Invocation) bool
}

// Scheduler re-invokes sync work for enabled tables.
// Every cycle it dispatches one invocation for each table with an active,
// unpaused job, and creates a new job for tables whose sync frequency is due.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate job creation across instances.
type Scheduler struct {
	store        driven.Store
	orchestrator driving.SyncOrchestrator
	dispatcher   Dispatcher
	lock         driven.DistributedLock
	logger       *slog.Logger
	now          func() time.Time

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.Store
	Orchestrator driving.SyncOrchestrator
	Dispatcher   Dispatcher
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check tables (default: 30s)
	LockTTL      time.Duration // TTL for the distributed lock (default: twice PollInterval)
	LockRequired bool          // If true, skip the cycle when the lock backend errors
	Clock        func() time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * interval
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		dispatcher:   cfg.Dispatcher,
		lock:         cfg.Lock,
		logger:       logger,
		now:          now,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: cfg.LockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkAndDispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndDispatch(ctx)
		}
	}
}

// checkAndDispatch runs one scheduling cycle.
// If a distributed lock is configured, it acquires the lock first so only one
// instance creates jobs per cycle.
func (s *Scheduler) checkAndDispatch(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return
			}
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx, schedulerLockName); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	var (
		invocations []domain.Invocation
		due         []*domain.SyncConfig
	)
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		configs, err := sess.Configs().List(ctx, true)
		if err != nil {
			return fmt.Errorf("list sync configs: %w", err)
		}
		for _, cfg := range configs {
			inv, needsJob, err := s.plan(ctx, sess.Jobs(), cfg)
			if err != nil {
				s.logger.Error("failed to plan table sync", "table_id", cfg.TableID, "error", err)
				continue
			}
			if inv != nil {
				invocations = append(invocations, *inv)
			}
			if needsJob {
				due = append(due, cfg)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("scheduling cycle failed", "error", err)
		return
	}

	for _, cfg := range due {
		job, err := s.orchestrator.CreateJob(ctx, cfg)
		if err != nil {
			s.logger.Error("failed to create scheduled job", "table_id", cfg.TableID, "error", err)
			continue
		}
		invocations = append(invocations, domain.Invocation{JobID: job.JobID, Config: cfg})
	}

	for _, inv := range invocations {
		if !s.dispatcher.Dispatch(inv) {
			s.logger.Debug("invocation not accepted", "job_id", inv.JobID, "table_id", inv.Config.TableID)
			continue
		}
		s.logger.Info("dispatched sync invocation", "job_id", inv.JobID, "table_id", inv.Config.TableID)
	}
}

// plan decides what a table needs this cycle: an invocation for its active
// job, a new job because the frequency is due, or nothing.
func (s *Scheduler) plan(ctx context.Context, jobs driven.JobStore, cfg *domain.SyncConfig) (*domain.Invocation, bool, error) {
	active, err := jobs.List(ctx, domain.JobFilter{
		TableID:  cfg.TableID,
		Statuses: domain.ActiveJobStatuses,
		Limit:    1,
	})
	if err != nil {
		return nil, false, err
	}
	if len(active) > 0 {
		if active[0].Paused {
			return nil, false, nil
		}
		return &domain.Invocation{JobID: active[0].JobID, Config: cfg}, false, nil
	}

	latest, err := jobs.List(ctx, domain.JobFilter{TableID: cfg.TableID, Limit: 1})
	if err != nil {
		return nil, false, err
	}
	if len(latest) == 0 {
		return nil, true, nil
	}

	next, err := NextRun(cfg.SyncFrequency, latest[0].StartTime)
	if err != nil {
		return nil, false, err
	}
	return nil, !s.now().Before(next), nil
}

// NextRun returns when a table synced at last is due again. frequency is a Go
// duration ("15m") or a standard cron expression ("0 * * * *", "@hourly").
func NextRun(frequency string, last time.Time) (time.Time, error) {
	frequency = strings.TrimSpace(frequency)
	if frequency == "" {
		return time.Time{}, fmt.Errorf("%w: sync frequency is required", domain.ErrInvalidInput)
	}
	if d, err := time.ParseDuration(frequency); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("%w: sync frequency must be positive", domain.ErrInvalidInput)
		}
		return last.Add(d), nil
	}
	schedule, err := cron.ParseStandard(frequency)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid sync frequency %q: %v", domain.ErrInvalidInput, frequency, err)
	}
	return schedule.Next(last), nil
}
