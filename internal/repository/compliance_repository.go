package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
)

// ComplianceRepository persists per-user document acknowledgements.
type ComplianceRepository struct {
	db *sqlx.DB
}

// NewComplianceRepository constructs the repository.
func NewComplianceRepository(db *sqlx.DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

// Upsert records an acknowledgement. The unique constraint on
// (document_id, user_id) makes a repeat acknowledgement overwrite the stored
// version and timestamp instead of appending; last writer wins.
func (r *ComplianceRepository) Upsert(ctx context.Context, ack *models.ComplianceAcknowledgement) error {
	if ack.AcknowledgedAt.IsZero() {
		ack.AcknowledgedAt = time.Now().UTC()
	}
	const query = `INSERT INTO compliance_acknowledgements
	(document_id, user_id, acknowledged_version, acknowledged_at)
	VALUES (:document_id, :user_id, :acknowledged_version, :acknowledged_at)
	ON CONFLICT (document_id, user_id)
	DO UPDATE SET acknowledged_version = EXCLUDED.acknowledged_version, acknowledged_at = EXCLUDED.acknowledged_at`
	if _, err := r.db.NamedExecContext(ctx, query, ack); err != nil {
		return fmt.Errorf("upsert acknowledgement: %w", err)
	}
	return nil
}

// Get returns the acknowledgement for one (document, user) pair.
func (r *ComplianceRepository) Get(ctx context.Context, documentID, userID string) (*models.ComplianceAcknowledgement, error) {
	const query = `SELECT document_id, user_id, acknowledged_version, acknowledged_at
	FROM compliance_acknowledgements WHERE document_id = $1 AND user_id = $2`
	var ack models.ComplianceAcknowledgement
	if err := r.db.GetContext(ctx, &ack, query, documentID, userID); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ListByDocument returns every acknowledgement recorded for a document,
// stale ones included: retired acknowledgements are audit evidence and are
// never deleted.
func (r *ComplianceRepository) ListByDocument(ctx context.Context, documentID string) ([]models.ComplianceAcknowledgement, error) {
	const query = `SELECT document_id, user_id, acknowledged_version, acknowledged_at
	FROM compliance_acknowledgements WHERE document_id = $1 ORDER BY acknowledged_at ASC`
	var acks []models.ComplianceAcknowledgement
	if err := r.db.SelectContext(ctx, &acks, query, documentID); err != nil {
		return nil, fmt.Errorf("list acknowledgements: %w", err)
	}
	return acks, nil
}
