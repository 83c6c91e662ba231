package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
)

// LoginAttemptRepository stores the login history. Lockout decisions are
// made from the Redis counters, not from this table.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt records a login attempt in the database
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_agent, success, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.ExpiresAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// ListByEmail returns the most recent attempts for an email, newest first
func (r *LoginAttemptRepository) ListByEmail(ctx context.Context, email string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, ip_address, user_agent, attempt_time, success, failure_reason, expires_at
		FROM login_attempts
		WHERE email = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(&a.ID, &a.Email, &a.IPAddress, &a.UserAgent,
			&a.AttemptTime, &a.Success, &a.FailureReason, &a.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}

// DeleteExpiredAttempts removes login attempts past their retention time
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
