package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for the login response delay
type TimingConfig struct {
	BaseDelayMs    int
	RandomDelayMs  int
	DelayOnSuccess bool
}

// TimingDelay pads authentication responses so that unknown email, wrong
// password and locked account take roughly the same time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// target returns base + a crypto-random jitter
func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(n) * time.Millisecond
		}
	}
	return delay
}

func (td *TimingDelay) skip(success bool) bool {
	return td == nil || (success && !td.config.DelayOnSuccess)
}

// Wait sleeps for the full target delay
func (td *TimingDelay) Wait(success bool) {
	if td.skip(success) {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps until at least the target delay has elapsed since startTime.
// It returns early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, startTime time.Time, success bool) {
	if td.skip(success) {
		return
	}

	remaining := td.target() - time.Since(startTime)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}

	return int(binary.BigEndian.Uint64(b[:]) % uint64(max)), nil
}
