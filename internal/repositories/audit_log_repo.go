package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// column names match the db tags on models.AuditLog
const auditLogColumns = `id, event_type, actor_id, target_id, resource_type, resource_id,
	action, success, failure_reason, ip_address, user_agent, metadata, created_at`

// AuditLogRepository is append-only apart from retention cleanup
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func (r *AuditLogRepository) query(ctx context.Context, sql string, args ...any) ([]*models.AuditLog, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	logs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[models.AuditLog])
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit logs: %w", err)
	}
	return logs, nil
}

// Create inserts an entry; id and created_at are assigned by Postgres
func (r *AuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	metadata := log.Metadata
	if metadata == nil {
		metadata = models.AuditMetadata{}
	}

	rows, err := r.pool.Query(ctx, `
		INSERT INTO audit_logs (
			event_type, actor_id, target_id, resource_type, resource_id,
			action, success, failure_reason, ip_address, user_agent, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+auditLogColumns,
		log.EventType, log.ActorID, log.TargetID, log.ResourceType, log.ResourceID,
		log.Action, log.Success, log.FailureReason, log.IPAddress, log.UserAgent, metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	created, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[models.AuditLog])
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}
	return created, nil
}

// GetByUserID returns entries where the user is actor or target, newest first
func (r *AuditLogRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit int, offset int) ([]*models.AuditLog, error) {
	return r.query(ctx, `
		SELECT `+auditLogColumns+`
		FROM audit_logs
		WHERE actor_id = $1 OR target_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

// GetByResource returns the history of one resource in the order it happened,
// e.g. every transition of a link request
func (r *AuditLogRepository) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLog, error) {
	return r.query(ctx, `
		SELECT `+auditLogColumns+`
		FROM audit_logs
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at ASC, id
		LIMIT $3
	`, resourceType, resourceID, limit)
}

func (r *AuditLogRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE actor_id = $1 OR target_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}

// Cleanup deletes entries older than the retention period
func (r *AuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM audit_logs WHERE created_at < NOW() - make_interval(days => $1)`, olderThanDays,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected(), nil
}
