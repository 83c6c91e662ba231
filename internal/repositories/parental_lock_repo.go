package repositories

import (
	"context"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
)

type ParentalLockRepository struct {
	db *database.DB
}

func NewParentalLockRepository(db *database.DB) *ParentalLockRepository {
	return &ParentalLockRepository{db: db}
}

// Upsert stores the PIN hash for a student, replacing any previous one
func (r *ParentalLockRepository) Upsert(ctx context.Context, lock *models.ParentalLock) error {
	query := `
		INSERT INTO parental_locks (student_id, pin_hash, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id) DO UPDATE
		SET pin_hash = EXCLUDED.pin_hash, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool.Exec(ctx, query, lock.StudentID, lock.PINHash, lock.UpdatedBy, lock.UpdatedAt)
	return database.MapPostgresError(err)
}

// Get returns the lock for a student or ErrNotFound
func (r *ParentalLockRepository) Get(ctx context.Context, studentID string) (*models.ParentalLock, error) {
	query := `SELECT student_id, pin_hash, updated_by, updated_at FROM parental_locks WHERE student_id = $1`

	var lock models.ParentalLock
	err := r.db.Pool.QueryRow(ctx, query, studentID).Scan(&lock.StudentID, &lock.PINHash, &lock.UpdatedBy, &lock.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &lock, nil
}

func (r *ParentalLockRepository) Delete(ctx context.Context, studentID string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM parental_locks WHERE student_id = $1`, studentID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
