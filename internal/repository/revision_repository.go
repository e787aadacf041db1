package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
)

// RevisionRepository persists the append-only revision ledger. Entries are
// only ever inserted; the revision number is computed inside the caller's
// transaction and backed by a unique constraint on
// (entity_type, entity_id, revision_number).
type RevisionRepository struct {
	db *sqlx.DB
}

// NewRevisionRepository constructs the repository.
func NewRevisionRepository(db *sqlx.DB) *RevisionRepository {
	return &RevisionRepository{db: db}
}

const revisionColumns = `id, entity_type, entity_id, revision_number, change_type,
       change_description, change_reason, status_before, status_after, author_id, created_at`

// Append writes a ledger entry inside tx, assigning the next revision number
// for the entity. Must run in the same transaction as the status write it
// records so numbers stay contiguous under concurrent writers.
func (r *RevisionRepository) Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error {
	if rev.ID == "" {
		rev.ID = uuid.NewString()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now().UTC()
	}

	const nextQuery = `SELECT COALESCE(MAX(revision_number), 0) + 1 FROM revisions
	WHERE entity_type = $1 AND entity_id = $2`
	if err := tx.GetContext(ctx, &rev.RevisionNumber, nextQuery, rev.EntityType, rev.EntityID); err != nil {
		return fmt.Errorf("next revision number: %w", err)
	}

	const insertQuery = `INSERT INTO revisions
	(id, entity_type, entity_id, revision_number, change_type, change_description, change_reason, status_before, status_after, author_id, created_at)
	VALUES (:id, :entity_type, :entity_id, :revision_number, :change_type, :change_description, :change_reason, :status_before, :status_after, :author_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, rev); err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

// History returns the full ledger for an entity, oldest first. A pure query:
// callers can re-read at any time without cursor state.
func (r *RevisionRepository) History(ctx context.Context, entityType models.EntityType, entityID string) ([]models.Revision, error) {
	query := fmt.Sprintf(`SELECT %s FROM revisions WHERE entity_type = $1 AND entity_id = $2 ORDER BY revision_number ASC`, revisionColumns)
	var revisions []models.Revision
	if err := r.db.SelectContext(ctx, &revisions, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("revision history: %w", err)
	}
	return revisions, nil
}

// LatestNumber returns the highest revision number recorded for the entity,
// zero when no entries exist.
func (r *RevisionRepository) LatestNumber(ctx context.Context, entityType models.EntityType, entityID string) (int, error) {
	const query = `SELECT COALESCE(MAX(revision_number), 0) FROM revisions
	WHERE entity_type = $1 AND entity_id = $2`
	var latest int
	if err := r.db.GetContext(ctx, &latest, query, entityType, entityID); err != nil {
		return 0, fmt.Errorf("latest revision number: %w", err)
	}
	return latest, nil
}
