package background

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/BradenHooton/osnovci/internal/metrics"
)

const defaultJobTimeout = 30 * time.Second

// Job is one unit of periodic cleanup. Run returns how many rows or keys it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// LockoutCleaner removes lapsed lockout counters
type LockoutCleaner interface {
	CleanupExpiredLockouts(ctx context.Context) (int, error)
}

// LinkExpirer expires overdue link requests and prunes old terminal ones
type LinkExpirer interface {
	ExpireStale(ctx context.Context) (int, int64, error)
}

// LoginHistoryPruner deletes login attempts past their retention
type LoginHistoryPruner interface {
	CleanupLoginHistory(ctx context.Context) (int64, error)
}

// AuditPruner deletes audit rows past their retention
type AuditPruner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// LockoutJob clears expired lockouts
func LockoutJob(c LockoutCleaner) Job {
	return Job{Name: "lockouts", Run: func(ctx context.Context) (int64, error) {
		n, err := c.CleanupExpiredLockouts(ctx)
		return int64(n), err
	}}
}

// LinkJob expires stale link requests
func LinkJob(e LinkExpirer) Job {
	return Job{Name: "link_requests", Run: func(ctx context.Context) (int64, error) {
		expired, pruned, err := e.ExpireStale(ctx)
		return int64(expired) + pruned, err
	}}
}

// LoginHistoryJob prunes login attempt history
func LoginHistoryJob(p LoginHistoryPruner) Job {
	return Job{Name: "login_history", Run: p.CleanupLoginHistory}
}

// AuditRetentionJob prunes audit logs older than retentionDays
func AuditRetentionJob(p AuditPruner, retentionDays int) Job {
	return Job{Name: "audit_logs", Run: func(ctx context.Context) (int64, error) {
		return p.Cleanup(ctx, retentionDays)
	}}
}

// CleanupManager periodically runs the cleanup jobs
type CleanupManager struct {
	jobs       []Job
	logger     *slog.Logger
	interval   time.Duration
	jobTimeout time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, interval time.Duration, jobs ...Job) *CleanupManager {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CleanupManager{
		jobs:       jobs,
		logger:     logger,
		interval:   interval,
		jobTimeout: defaultJobTimeout,
		stopCh:     make(chan struct{}),
	}
}

// Start runs every job immediately, then once per interval, until Stop is
// called or ctx is cancelled. It blocks.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce runs every job a single time. A failing job does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	for _, job := range cm.jobs {
		if ctx.Err() != nil {
			return
		}
		cm.runJob(ctx, job)
	}
}

func (cm *CleanupManager) runJob(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, cm.jobTimeout)
	defer cancel()

	removed, err := cm.call(jobCtx, job)
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues(job.Name, "error").Inc()
		cm.logger.Error("cleanup job failed",
			slog.String("job", job.Name),
			slog.Any("error", err))
		return
	}

	metrics.CleanupRunsTotal.WithLabelValues(job.Name, "ok").Inc()
	if removed > 0 {
		metrics.CleanupRemovedTotal.WithLabelValues(job.Name).Add(float64(removed))
		cm.logger.Info("cleanup job completed",
			slog.String("job", job.Name),
			slog.Int64("removed", removed))
	}
}

// call runs the job and turns a panic into an error so the sweep keeps going
func (cm *CleanupManager) call(ctx context.Context, job Job) (removed int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("cleanup job panicked",
				slog.String("job", job.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			removed, err = 0, fmt.Errorf("cleanup job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
