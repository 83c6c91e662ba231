package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parentalLockTestEnv struct {
	svc   *ParentalLockService
	locks map[string]*models.ParentalLock
	store *memoryLockoutStore
	repo  *MockParentalLockRepository
	links *MockActiveLinkChecker
}

func newParentalLockTestEnv() *parentalLockTestEnv {
	env := &parentalLockTestEnv{
		locks: make(map[string]*models.ParentalLock),
		store: newMemoryLockoutStore(),
	}

	env.repo = &MockParentalLockRepository{
		UpsertFunc: func(ctx context.Context, lock *models.ParentalLock) error {
			env.locks[lock.StudentID] = lock
			return nil
		},
		GetFunc: func(ctx context.Context, studentID string) (*models.ParentalLock, error) {
			if lock, ok := env.locks[studentID]; ok {
				return lock, nil
			}
			return nil, models.ErrNotFound
		},
		DeleteFunc: func(ctx context.Context, studentID string) error {
			if _, ok := env.locks[studentID]; !ok {
				return models.ErrNotFound
			}
			delete(env.locks, studentID)
			return nil
		},
	}
	env.links = &MockActiveLinkChecker{
		HasActiveLinkFunc: func(ctx context.Context, guardianID, studentID string) (bool, error) {
			return guardianID == "guardian-1" && studentID == "student-1", nil
		},
	}

	logger := slog.Default()
	lockout := NewLockoutService(env.store, nil, DefaultLockoutConfig(), logger)
	env.svc = NewParentalLockService(env.repo, env.links, lockout, nil, logger)
	return env
}

var (
	linkedGuardian = NewTestSession("guardian-1", models.RoleGuardian)
	strangerAdult  = NewTestSession("guardian-9", models.RoleGuardian)
	lockedStudent  = NewTestSession("student-1", models.RoleStudent)
)

func TestParentalLockService_SetAndVerifyPIN(t *testing.T) {
	env := newParentalLockTestEnv()
	ctx := context.Background()

	require.NoError(t, env.svc.SetPIN(ctx, linkedGuardian, "student-1", "4821"))

	stored := env.locks["student-1"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "4821", stored.PINHash)
	assert.Equal(t, "guardian-1", stored.UpdatedBy)

	assert.NoError(t, env.svc.VerifyPIN(ctx, lockedStudent, "4821"))
	assert.ErrorIs(t, env.svc.VerifyPIN(ctx, lockedStudent, "0000"), models.ErrForbidden)
}

func TestParentalLockService_NoDefaultPIN(t *testing.T) {
	env := newParentalLockTestEnv()

	for _, pin := range []string{"1234", "0000", ""} {
		err := env.svc.VerifyPIN(context.Background(), lockedStudent, pin)
		assert.ErrorIs(t, err, models.ErrForbidden, "pin %q", pin)
	}
}

func TestParentalLockService_SetPIN_RequiresActiveLink(t *testing.T) {
	env := newParentalLockTestEnv()
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.SetPIN(ctx, strangerAdult, "student-1", "4821"), models.ErrForbidden)
	assert.ErrorIs(t, env.svc.SetPIN(ctx, linkedGuardian, "student-2", "4821"), models.ErrForbidden)
	assert.ErrorIs(t, env.svc.SetPIN(ctx, lockedStudent, "student-1", "4821"), models.ErrForbidden)
	assert.Empty(t, env.locks)
}

func TestParentalLockService_SetPIN_InvalidPIN(t *testing.T) {
	env := newParentalLockTestEnv()

	for _, pin := range []string{"123", "123456789", "12a4", "    "} {
		err := env.svc.SetPIN(context.Background(), linkedGuardian, "student-1", pin)
		assert.ErrorIs(t, err, models.ErrBadRequest, "pin %q", pin)
	}
}

func TestParentalLockService_WrongPINLocks(t *testing.T) {
	env := newParentalLockTestEnv()
	ctx := context.Background()
	require.NoError(t, env.svc.SetPIN(ctx, linkedGuardian, "student-1", "4821"))

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, env.svc.VerifyPIN(ctx, lockedStudent, "0000"), models.ErrForbidden)
	}

	err := env.svc.VerifyPIN(ctx, lockedStudent, "0000")
	var locked *models.LockedError
	require.ErrorAs(t, err, &locked)

	// The right PIN is refused while locked.
	assert.ErrorIs(t, env.svc.VerifyPIN(ctx, lockedStudent, "4821"), models.ErrAccountLocked)

	// A guardian setting a new PIN clears the lock.
	require.NoError(t, env.svc.SetPIN(ctx, linkedGuardian, "student-1", "7777"))
	assert.NoError(t, env.svc.VerifyPIN(ctx, lockedStudent, "7777"))
}

func TestParentalLockService_ClearPIN(t *testing.T) {
	env := newParentalLockTestEnv()
	ctx := context.Background()
	require.NoError(t, env.svc.SetPIN(ctx, linkedGuardian, "student-1", "4821"))

	require.NoError(t, env.svc.ClearPIN(ctx, linkedGuardian, "student-1"))
	assert.ErrorIs(t, env.svc.VerifyPIN(ctx, lockedStudent, "4821"), models.ErrForbidden)
	assert.ErrorIs(t, env.svc.ClearPIN(ctx, linkedGuardian, "student-1"), models.ErrNotFound)
}

func TestParentalLockService_StoreErrors(t *testing.T) {
	env := newParentalLockTestEnv()
	ctx := context.Background()

	env.links.HasActiveLinkFunc = func(ctx context.Context, guardianID, studentID string) (bool, error) {
		return false, errors.New("db down")
	}
	assert.ErrorIs(t, env.svc.SetPIN(ctx, linkedGuardian, "student-1", "4821"), models.ErrInternalServer)

	env.store.err = errors.New("redis down")
	assert.ErrorIs(t, env.svc.VerifyPIN(ctx, lockedStudent, "4821"), models.ErrInternalServer)
}
