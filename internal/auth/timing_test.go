package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_Wait(t *testing.T) {
	tests := []struct {
		name      string
		config    auth.TimingConfig
		success   bool
		wantDelay bool
	}{
		{"failed login is padded", auth.TimingConfig{BaseDelayMs: 60, RandomDelayMs: 20}, false, true},
		{"successful login is not padded by default", auth.TimingConfig{BaseDelayMs: 60, RandomDelayMs: 20}, true, false},
		{"successful login padded when configured", auth.TimingConfig{BaseDelayMs: 60, DelayOnSuccess: true}, true, true},
		{"zero config never sleeps", auth.TimingConfig{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			auth.NewTimingDelay(tt.config).Wait(tt.success)
			elapsed := time.Since(start)

			if tt.wantDelay {
				assert.GreaterOrEqual(t, elapsed, time.Duration(tt.config.BaseDelayMs)*time.Millisecond)
				assert.Less(t, elapsed, time.Duration(tt.config.BaseDelayMs+tt.config.RandomDelayMs+100)*time.Millisecond)
			} else {
				assert.Less(t, elapsed, 20*time.Millisecond)
			}
		})
	}
}

func TestTimingDelay_WaitFrom_CountsWorkAlreadyDone(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100})

	// a lookup that already took 60ms only needs ~40ms of padding
	start := time.Now().Add(-60 * time.Millisecond)
	waitStart := time.Now()
	timing.WaitFrom(context.Background(), start, false)
	waited := time.Since(waitStart)

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Less(t, waited, 90*time.Millisecond)
}

func TestTimingDelay_WaitFrom_NoWaitIfAlreadyExceeded(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 50})

	waitStart := time.Now()
	timing.WaitFrom(context.Background(), time.Now().Add(-time.Second), false)

	assert.Less(t, time.Since(waitStart), 20*time.Millisecond)
}

func TestTimingDelay_WaitFrom_ReturnsOnCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 1000})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	timing.WaitFrom(ctx, start, false)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTimingDelay_NilIsNoop(t *testing.T) {
	var timing *auth.TimingDelay
	start := time.Now()

	timing.Wait(false)
	timing.WaitFrom(context.Background(), start, false)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
