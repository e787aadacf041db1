package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
)

// AuditRepository persists quality audit records.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, title, audit_type, scope, status, lead_auditor_id, creator_id, findings,
       started_at, completed_at, created_at, updated_at`

// Create inserts a new audit row in PLANNED status.
func (r *AuditRepository) Create(ctx context.Context, audit *models.Audit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.Status == "" {
		audit.Status = models.AuditStatusPlanned
	}
	now := time.Now().UTC()
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	audit.UpdatedAt = now

	const query = `INSERT INTO audits
	(id, title, audit_type, scope, status, lead_auditor_id, creator_id, findings, started_at, completed_at, created_at, updated_at)
	VALUES (:id, :title, :audit_type, :scope, :status, :lead_auditor_id, :creator_id, :findings, :started_at, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("create audit: %w", err)
	}
	return nil
}

// GetByID fetches an audit by identifier.
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	query := fmt.Sprintf(`SELECT %s FROM audits WHERE id = $1`, auditColumns)
	var audit models.Audit
	if err := r.db.GetContext(ctx, &audit, query, id); err != nil {
		return nil, err
	}
	return &audit, nil
}

// List returns audits matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.Audit, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM audits`, auditColumns))

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AuditType != "" {
		args = append(args, filter.AuditType)
		conditions = append(conditions, fmt.Sprintf("audit_type = $%d", len(args)))
	}
	if filter.LeadAuditorID != "" {
		args = append(args, filter.LeadAuditorID)
		conditions = append(conditions, fmt.Sprintf("lead_auditor_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY updated_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var audits []models.Audit
	if err := r.db.SelectContext(ctx, &audits, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	return audits, nil
}

// UpdateFields edits title, scope, and findings while the audit is still
// being executed. Returns sql.ErrNoRows once the audit entered sign-off.
func (r *AuditRepository) UpdateFields(ctx context.Context, id, title, scope, findings string) error {
	const query = `UPDATE audits SET title = $1, scope = $2, findings = $3, updated_at = $4
	WHERE id = $5 AND status IN ('PLANNED', 'IN_PROGRESS')`
	result, err := r.db.ExecContext(ctx, query, title, scope, findings, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update audit fields: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check audit update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Status loads the current status inside tx.
func (r *AuditRepository) Status(ctx context.Context, tx *sqlx.Tx, id string) (string, error) {
	var status string
	if err := tx.GetContext(ctx, &status, `SELECT status FROM audits WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}

// CompareAndSetStatus conditionally moves the audit from expected to next,
// stamping started_at and completed_at as the audit progresses. Zero touched
// rows yields sql.ErrNoRows.
func (r *AuditRepository) CompareAndSetStatus(ctx context.Context, tx *sqlx.Tx, id, expected, next string) error {
	now := time.Now().UTC()
	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{next, now}
	switch models.AuditStatus(next) {
	case models.AuditStatusInProgress:
		args = append(args, now)
		set = append(set, fmt.Sprintf("started_at = $%d", len(args)))
	case models.AuditStatusCompleted:
		args = append(args, now)
		set = append(set, fmt.Sprintf("completed_at = $%d", len(args)))
	}
	args = append(args, id, expected)
	query := fmt.Sprintf(`UPDATE audits SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(set, ", "), len(args)-1, len(args))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update audit status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check audit status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
