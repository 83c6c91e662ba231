package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
)

const activeLinkColumns = `id, guardian_id, student_id, is_active, permissions, request_id, created_at, revoked_at, revoked_by`

// GuardianLinkRepository reads and revokes established guardian-student links.
// Links are created only by LinkRequestRepository.CompleteVerification.
type GuardianLinkRepository struct {
	db *database.DB
}

func NewGuardianLinkRepository(db *database.DB) *GuardianLinkRepository {
	return &GuardianLinkRepository{db: db}
}

func scanActiveLinkRow(row rowScanner) (*models.ActiveLink, error) {
	var link models.ActiveLink

	err := row.Scan(
		&link.ID, &link.GuardianID, &link.StudentID, &link.IsActive, &link.Permissions,
		&link.RequestID, &link.CreatedAt, &link.RevokedAt, &link.RevokedBy,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &link, nil
}

func (r *GuardianLinkRepository) GetByID(ctx context.Context, id string) (*models.ActiveLink, error) {
	query := `SELECT ` + activeLinkColumns + ` FROM guardian_student_links WHERE id = $1`
	return scanActiveLinkRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetActive returns the active link between guardian and student or ErrNotFound
func (r *GuardianLinkRepository) GetActive(ctx context.Context, guardianID, studentID string) (*models.ActiveLink, error) {
	query := `
		SELECT ` + activeLinkColumns + `
		FROM guardian_student_links
		WHERE guardian_id = $1 AND student_id = $2 AND is_active
	`
	return scanActiveLinkRow(r.db.Pool.QueryRow(ctx, query, guardianID, studentID))
}

// ListForGuardian returns the students a guardian is actively linked to
func (r *GuardianLinkRepository) ListForGuardian(ctx context.Context, guardianID string) ([]*models.LinkedAccount, error) {
	return r.listLinked(ctx, `
		SELECT l.id, u.id, u.name, u.email, u.role, l.permissions, l.created_at
		FROM guardian_student_links l
		JOIN users u ON u.id = l.student_id
		WHERE l.guardian_id = $1 AND l.is_active
		ORDER BY l.created_at
	`, guardianID)
}

// ListForStudent returns the guardians actively linked to a student
func (r *GuardianLinkRepository) ListForStudent(ctx context.Context, studentID string) ([]*models.LinkedAccount, error) {
	return r.listLinked(ctx, `
		SELECT l.id, u.id, u.name, u.email, u.role, l.permissions, l.created_at
		FROM guardian_student_links l
		JOIN users u ON u.id = l.guardian_id
		WHERE l.student_id = $1 AND l.is_active
		ORDER BY l.created_at
	`, studentID)
}

func (r *GuardianLinkRepository) listLinked(ctx context.Context, query, userID string) ([]*models.LinkedAccount, error) {
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.LinkedAccount, 0)
	for rows.Next() {
		var a models.LinkedAccount
		if err := rows.Scan(&a.LinkID, &a.UserID, &a.Name, &a.Email, &a.Role, &a.Permissions, &a.LinkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// Revoke deactivates an active link. Returns ErrNotFound if it is not active.
func (r *GuardianLinkRepository) Revoke(ctx context.Context, id, revokedBy string, at time.Time) (*models.ActiveLink, error) {
	query := `
		UPDATE guardian_student_links
		SET is_active = FALSE, revoked_at = $3, revoked_by = $2
		WHERE id = $1 AND is_active
		RETURNING ` + activeLinkColumns

	return scanActiveLinkRow(r.db.Pool.QueryRow(ctx, query, id, revokedBy, at))
}
