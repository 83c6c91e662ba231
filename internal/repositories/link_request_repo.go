package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const linkRequestColumns = `id, link_code, student_id, guardian_id, status, verification_token_hash,
	expires_at, child_approved_at, guardian_verified_at, created_at, updated_at`

// LinkRequestRepository persists the guardian-student link handshake.
// Every state change is a conditional UPDATE on the current status, so two
// concurrent callers can never both move the same request.
type LinkRequestRepository struct {
	db *database.DB
}

func NewLinkRequestRepository(db *database.DB) *LinkRequestRepository {
	return &LinkRequestRepository{db: db}
}

func scanLinkRequestRow(row rowScanner) (*models.LinkRequest, error) {
	var req models.LinkRequest

	err := row.Scan(
		&req.ID, &req.LinkCode, &req.StudentID, &req.GuardianID, &req.Status,
		&req.VerificationTokenHash, &req.ExpiresAt, &req.ChildApprovedAt,
		&req.GuardianVerifiedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &req, nil
}

// Create inserts a new INITIATED request. A duplicate link code yields ErrConflict.
func (r *LinkRequestRepository) Create(ctx context.Context, req *models.LinkRequest) (*models.LinkRequest, error) {
	req.ID = uuid.New().String()
	req.Status = models.LinkStatusInitiated

	query := `
		INSERT INTO link_requests (id, link_code, student_id, guardian_id, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + linkRequestColumns

	return scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query,
		req.ID, req.LinkCode, req.StudentID, req.GuardianID, req.Status, req.ExpiresAt,
	))
}

func (r *LinkRequestRepository) GetByCode(ctx context.Context, linkCode string) (*models.LinkRequest, error) {
	query := `SELECT ` + linkRequestColumns + ` FROM link_requests WHERE link_code = $1`
	return scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query, linkCode))
}

func (r *LinkRequestRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.LinkRequest, error) {
	query := `SELECT ` + linkRequestColumns + ` FROM link_requests WHERE verification_token_hash = $1`
	return scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// GetOpenForPair returns the newest non-terminal, unexpired request between a
// guardian and a student
func (r *LinkRequestRepository) GetOpenForPair(ctx context.Context, guardianID, studentID string, now time.Time) (*models.LinkRequest, error) {
	query := `
		SELECT ` + linkRequestColumns + `
		FROM link_requests
		WHERE guardian_id = $1 AND student_id = $2
		  AND status IN ('INITIATED', 'CHILD_APPROVED')
		  AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query, guardianID, studentID, now))
}

// ListPendingForStudent returns INITIATED, unexpired requests with the
// requesting guardian's profile
func (r *LinkRequestRepository) ListPendingForStudent(ctx context.Context, studentID string, now time.Time) ([]*models.PendingLinkRequest, error) {
	query := `
		SELECT lr.link_code, u.name, u.email, lr.expires_at, lr.created_at
		FROM link_requests lr
		JOIN users u ON u.id = lr.guardian_id
		WHERE lr.student_id = $1 AND lr.status = 'INITIATED' AND lr.expires_at > $2
		ORDER BY lr.created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, studentID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending link requests: %w", err)
	}
	defer rows.Close()

	pending := make([]*models.PendingLinkRequest, 0)
	for rows.Next() {
		var p models.PendingLinkRequest
		if err := rows.Scan(&p.LinkCode, &p.GuardianName, &p.GuardianEmail, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending link request: %w", err)
		}
		pending = append(pending, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return pending, nil
}

// MarkChildApproved moves INITIATED -> CHILD_APPROVED and stores the guardian
// verification token hash. Returns ErrConflict if the request is no longer INITIATED.
func (r *LinkRequestRepository) MarkChildApproved(ctx context.Context, id, tokenHash string, at time.Time) (*models.LinkRequest, error) {
	query := `
		UPDATE link_requests
		SET status = 'CHILD_APPROVED', verification_token_hash = $2, child_approved_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'INITIATED'
		RETURNING ` + linkRequestColumns

	req, err := scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query, id, tokenHash, at))
	return req, notFoundAsConflict(err)
}

// MarkRejected moves INITIATED -> REJECTED
func (r *LinkRequestRepository) MarkRejected(ctx context.Context, id string, at time.Time) (*models.LinkRequest, error) {
	query := `
		UPDATE link_requests
		SET status = 'REJECTED', updated_at = $2
		WHERE id = $1 AND status = 'INITIATED'
		RETURNING ` + linkRequestColumns

	req, err := scanLinkRequestRow(r.db.Pool.QueryRow(ctx, query, id, at))
	return req, notFoundAsConflict(err)
}

// MarkExpired moves a pending request to EXPIRED. It reports whether the row changed.
func (r *LinkRequestRepository) MarkExpired(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE link_requests
		SET status = 'EXPIRED', verification_token_hash = NULL, updated_at = $2
		WHERE id = $1 AND status IN ('INITIATED', 'CHILD_APPROVED')
	`

	result, err := r.db.Pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return result.RowsAffected() > 0, nil
}

// CompleteVerification moves CHILD_APPROVED -> GUARDIAN_VERIFIED and
// activates the guardian-student link in a single transaction. The token
// hash is cleared so the email link works once.
func (r *LinkRequestRepository) CompleteVerification(ctx context.Context, id string, permissions []string, at time.Time) (*models.ActiveLink, error) {
	var link *models.ActiveLink

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var guardianID, studentID string
		err := tx.QueryRow(ctx, `
			UPDATE link_requests
			SET status = 'GUARDIAN_VERIFIED', verification_token_hash = NULL,
			    guardian_verified_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'CHILD_APPROVED' AND expires_at > $2
			RETURNING guardian_id, student_id
		`, id, at).Scan(&guardianID, &studentID)
		if err != nil {
			return notFoundAsConflict(database.MapPostgresError(err))
		}

		link, err = scanActiveLinkRow(tx.QueryRow(ctx, `
			INSERT INTO guardian_student_links (id, guardian_id, student_id, is_active, permissions, request_id, created_at)
			VALUES ($1, $2, $3, TRUE, $4, $5, $6)
			ON CONFLICT (guardian_id, student_id) DO UPDATE
			SET is_active = TRUE, permissions = EXCLUDED.permissions, request_id = EXCLUDED.request_id,
			    created_at = EXCLUDED.created_at, revoked_at = NULL, revoked_by = NULL
			RETURNING `+activeLinkColumns,
			uuid.New().String(), guardianID, studentID, permissions, id, at,
		))
		return err
	})
	if err != nil {
		return nil, err
	}

	return link, nil
}

// ExpireStale moves every pending request whose expiry has passed to EXPIRED
func (r *LinkRequestRepository) ExpireStale(ctx context.Context, now time.Time) ([]models.ExpiredLinkRequest, error) {
	query := `
		WITH stale AS (
			SELECT id, status AS previous_status
			FROM link_requests
			WHERE status IN ('INITIATED', 'CHILD_APPROVED') AND expires_at <= $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE link_requests lr
		SET status = 'EXPIRED', verification_token_hash = NULL, updated_at = $1
		FROM stale
		WHERE lr.id = stale.id
		RETURNING lr.id, lr.link_code, lr.student_id, lr.guardian_id, lr.status, lr.verification_token_hash,
		          lr.expires_at, lr.child_approved_at, lr.guardian_verified_at, lr.created_at, lr.updated_at,
		          stale.previous_status
	`

	rows, err := r.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire link requests: %w", err)
	}
	defer rows.Close()

	expired := make([]models.ExpiredLinkRequest, 0)
	for rows.Next() {
		var req models.LinkRequest
		var previous models.LinkStatus
		if err := rows.Scan(
			&req.ID, &req.LinkCode, &req.StudentID, &req.GuardianID, &req.Status,
			&req.VerificationTokenHash, &req.ExpiresAt, &req.ChildApprovedAt,
			&req.GuardianVerifiedAt, &req.CreatedAt, &req.UpdatedAt, &previous,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expired link request: %w", err)
		}
		expired = append(expired, models.ExpiredLinkRequest{Request: &req, PreviousStatus: previous})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return expired, nil
}

// DeleteTerminalBefore removes finished requests last touched before cutoff
func (r *LinkRequestRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM link_requests
		WHERE status IN ('GUARDIAN_VERIFIED', 'REJECTED', 'EXPIRED') AND updated_at < $1
	`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// notFoundAsConflict turns a conditional update that matched no row into
// ErrConflict: the row exists but was not in the expected state.
func notFoundAsConflict(err error) error {
	if err == models.ErrNotFound {
		return models.ErrConflict
	}
	return err
}
