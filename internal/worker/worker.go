package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-sync/internal/core/services"
)

// Verify interface compliance
var _ services.Dispatcher = (*Worker)(nil)

// Worker runs sync invocations on a bounded pool of goroutines.
// Each invocation executes the orchestrator for one job under a deadline, so a
// long table copy progresses across many invocations.
type Worker struct {
	orchestrator driving.SyncOrchestrator
	lock         driven.DistributedLock
	logger       *slog.Logger

	// Configuration
	concurrency       int
	invocationTimeout time.Duration

	queue chan domain.Invocation

	// Internal state
	mu       sync.RWMutex
	running  bool
	inflight map[string]struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Orchestrator      driving.SyncOrchestrator
	Lock              driven.DistributedLock // Optional: per-job lock around each invocation
	Logger            *slog.Logger
	Concurrency       int           // Number of concurrent invocations (default: 1)
	QueueSize         int           // Pending invocations accepted before Dispatch refuses (default: 64)
	InvocationTimeout time.Duration // Deadline for one invocation (default: 5m)
}

// NewWorker creates a new invocation worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	timeout := cfg.InvocationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Worker{
		orchestrator:      cfg.Orchestrator,
		lock:              cfg.Lock,
		logger:            logger,
		concurrency:       concurrency,
		invocationTimeout: timeout,
		queue:             make(chan domain.Invocation, queueSize),
		inflight:          make(map[string]struct{}),
	}
}

// Dispatch queues an invocation. It returns false when the worker is not
// running, the job is already queued or running, or the queue is full.
func (w *Worker) Dispatch(inv domain.Invocation) bool {
	if inv.JobID == "" || inv.Config == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return false
	}
	if _, ok := w.inflight[inv.JobID]; ok {
		return false
	}

	select {
	case w.queue <- inv:
		w.inflight[inv.JobID] = struct{}{}
		return true
	default:
		w.logger.Warn("invocation queue full", "job_id", inv.JobID, "table_id", inv.Config.TableID)
		return false
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"invocation_timeout", w.invocationTimeout,
	)

	// Start worker goroutines
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. Running invocations finish their current
// batch; queued invocations are dropped and picked up again by the scheduler.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	// Wait for workers to finish
	<-w.doneCh

	w.mu.Lock()
	for len(w.queue) > 0 {
		inv := <-w.queue
		delete(w.inflight, inv.JobID)
	}
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("worker stop signal received")
			return
		case inv := <-w.queue:
			w.process(ctx, inv, logger)
		}
	}
}

// process runs one invocation under the per-job lock and deadline.
func (w *Worker) process(ctx context.Context, inv domain.Invocation, logger *slog.Logger) {
	defer w.done(inv.JobID)

	logger = logger.With("job_id", inv.JobID, "table_id", inv.Config.TableID)

	if w.lock != nil {
		name := "job:" + inv.JobID
		acquired, err := w.lock.Acquire(ctx, name, w.invocationTimeout+time.Minute)
		if err != nil {
			logger.Warn("failed to acquire job lock, running anyway", "error", err)
		} else if !acquired {
			logger.Debug("job locked by another instance, skipping")
			return
		} else {
			defer func() {
				if err := w.lock.Release(context.WithoutCancel(ctx), name); err != nil {
					logger.Warn("failed to release job lock", "error", err)
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, w.invocationTimeout)
	defer cancel()

	startTime := time.Now()
	job, err := w.orchestrator.Run(runCtx, inv.JobID, inv.Config)
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Info("invocation interrupted", "duration", duration)
			return
		}
		logger.Error("invocation failed", "duration", duration, "error", err)
		return
	}

	logger.Info("invocation finished",
		"duration", duration,
		"status", job.Status,
		"processed", job.Stats.ProcessedRecords,
	)
}

func (w *Worker) done(jobID string) {
	w.mu.Lock()
	delete(w.inflight, jobID)
	w.mu.Unlock()
}

// Health returns health status of the worker.
type Health struct {
	Running    bool   `json:"running"`
	InFlight   int    `json:"in_flight"`
	LockHealth bool   `json:"lock_health"`
	Error      string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	health := Health{
		Running:    w.running,
		InFlight:   len(w.inflight),
		LockHealth: true,
	}
	w.mu.RUnlock()

	if w.lock != nil {
		if err := w.lock.Ping(ctx); err != nil {
			health.LockHealth = false
			health.Error = err.Error()
		}
	}

	return health
}
