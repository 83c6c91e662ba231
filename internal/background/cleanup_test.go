package background

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLockouts struct{ calls atomic.Int32 }

func (f *fakeLockouts) CleanupExpiredLockouts(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 2, nil
}

type fakeLinks struct{}

func (fakeLinks) ExpireStale(ctx context.Context) (int, int64, error) {
	return 1, 3, nil
}

type fakeAudit struct{ days int }

func (f *fakeAudit) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	f.days = retentionDays
	return 0, nil
}

func TestCleanupManager_RunOnce_FailureDoesNotStopOtherJobs(t *testing.T) {
	lockouts := &fakeLockouts{}
	audit := &fakeAudit{}
	failing := Job{Name: "failing", Run: func(ctx context.Context) (int64, error) {
		return 0, errors.New("db down")
	}}

	cm := NewCleanupManager(slog.Default(), time.Hour, failing, LockoutJob(lockouts), AuditRetentionJob(audit, 90))

	before := testutil.ToFloat64(metrics.CleanupRunsTotal.WithLabelValues("failing", "error"))
	cm.RunOnce(context.Background())

	assert.Equal(t, int32(1), lockouts.calls.Load())
	assert.Equal(t, 90, audit.days)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CleanupRunsTotal.WithLabelValues("failing", "error")))
}

func TestCleanupManager_RunOnce_PanickingJobIsContained(t *testing.T) {
	lockouts := &fakeLockouts{}
	exploding := Job{Name: "exploding", Run: func(ctx context.Context) (int64, error) {
		var counters map[string]int
		counters["x"]++
		return 0, nil
	}}

	cm := NewCleanupManager(slog.Default(), time.Hour, exploding, LockoutJob(lockouts))

	before := testutil.ToFloat64(metrics.CleanupRunsTotal.WithLabelValues("exploding", "error"))
	require.NotPanics(t, func() { cm.RunOnce(context.Background()) })

	assert.Equal(t, int32(1), lockouts.calls.Load(), "jobs after the panic still run")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CleanupRunsTotal.WithLabelValues("exploding", "error")))
}

func TestCleanupManager_LinkJobCountsExpiredAndPruned(t *testing.T) {
	cm := NewCleanupManager(slog.Default(), time.Hour, LinkJob(fakeLinks{}))

	before := testutil.ToFloat64(metrics.CleanupRemovedTotal.WithLabelValues("link_requests"))
	cm.RunOnce(context.Background())

	assert.Equal(t, before+4, testutil.ToFloat64(metrics.CleanupRemovedTotal.WithLabelValues("link_requests")))
}

func TestCleanupManager_JobHasDeadline(t *testing.T) {
	var hadDeadline atomic.Bool
	job := Job{Name: "deadline", Run: func(ctx context.Context) (int64, error) {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return 0, nil
	}}

	NewCleanupManager(slog.Default(), time.Hour, job).RunOnce(context.Background())
	assert.True(t, hadDeadline.Load())
}

func TestCleanupManager_StartRunsImmediatelyAndStops(t *testing.T) {
	lockouts := &fakeLockouts{}
	cm := NewCleanupManager(slog.Default(), time.Hour, LockoutJob(lockouts))

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return lockouts.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	cm := NewCleanupManager(slog.Default(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cm.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager ignored context cancellation")
	}
}
