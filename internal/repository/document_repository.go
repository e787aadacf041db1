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

// DocumentRepository persists controlled documents and their version chains.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, title, document_type, category, version, status, compliance_required,
       owner_id, creator_id, previous_version_id, is_head, created_at, updated_at`

// chainCTE resolves the full version chain containing the given document:
// walk previous_version_id back to the root, then forward again through the
// reverse index.
const chainCTE = `WITH RECURSIVE back AS (
	SELECT id, previous_version_id FROM documents WHERE id = $1
	UNION ALL
	SELECT d.id, d.previous_version_id FROM documents d
	JOIN back b ON b.previous_version_id = d.id
), chain AS (
	SELECT d.* FROM documents d
	JOIN back b ON d.id = b.id AND b.previous_version_id IS NULL
	UNION ALL
	SELECT d.* FROM documents d
	JOIN chain c ON d.previous_version_id = c.id
)`

// Create inserts a new document row. New documents start as DRAFT chain heads
// at version 1.0 unless the caller says otherwise.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentStatusDraft
	}
	if doc.Version == "" {
		doc.Version = "1.0"
	}
	if doc.PreviousVersionID == nil {
		doc.IsHead = true
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	const query = `INSERT INTO documents
	(id, title, document_type, category, version, status, compliance_required, owner_id, creator_id, previous_version_id, is_head, created_at, updated_at)
	VALUES (:id, :title, :document_type, :category, :version, :status, :compliance_required, :owner_id, :creator_id, :previous_version_id, :is_head, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches a document by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetForUpdate loads a document inside tx with a row lock.
func (r *DocumentRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 FOR UPDATE`, documentColumns)
	var doc models.Document
	if err := tx.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents matching the filter, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM documents`, documentColumns))

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DocumentType != "" {
		args = append(args, filter.DocumentType)
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.HeadsOnly {
		conditions = append(conditions, "is_head = TRUE")
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

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateDraftMetadata edits title and category, permitted in DRAFT only.
// Returns sql.ErrNoRows when the row is missing or no longer a draft.
func (r *DocumentRepository) UpdateDraftMetadata(ctx context.Context, id, title, category string) error {
	const query = `UPDATE documents SET title = $1, category = $2, updated_at = $3
	WHERE id = $4 AND status = 'DRAFT'`
	result, err := r.db.ExecContext(ctx, query, title, category, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update draft document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check draft update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Status loads the current status inside tx.
func (r *DocumentRepository) Status(ctx context.Context, tx *sqlx.Tx, id string) (string, error) {
	var status string
	if err := tx.GetContext(ctx, &status, `SELECT status FROM documents WHERE id = $1`, id); err != nil {
		return "", err
	}
	return status, nil
}

// CompareAndSetStatus conditionally moves the document from expected to next.
// The WHERE clause on the current status is the optimistic check: when a
// concurrent transition got there first, zero rows match and sql.ErrNoRows
// is returned.
func (r *DocumentRepository) CompareAndSetStatus(ctx context.Context, tx *sqlx.Tx, id, expected, next string) error {
	const query = `UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := tx.ExecContext(ctx, query, next, time.Now().UTC(), id, expected)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Chain returns every version in the document's chain, oldest first.
func (r *DocumentRepository) Chain(ctx context.Context, id string) ([]models.Document, error) {
	query := fmt.Sprintf(`%s SELECT %s FROM chain ORDER BY created_at ASC`, chainCTE, documentColumns)
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, id); err != nil {
		return nil, fmt.Errorf("document chain: %w", err)
	}
	return docs, nil
}

// HeadOf resolves the current chain head for any version in the chain.
func (r *DocumentRepository) HeadOf(ctx context.Context, id string) (*models.Document, error) {
	query := fmt.Sprintf(`%s SELECT %s FROM chain WHERE is_head = TRUE LIMIT 1`, chainCTE, documentColumns)
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ChainHasOpenVersion reports whether any version in the chain still sits in
// DRAFT or REVIEW. Evaluated inside the createNewVersion transaction so a
// second version cannot be forked while one is already being worked on.
func (r *DocumentRepository) ChainHasOpenVersion(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	query := fmt.Sprintf(`%s SELECT COUNT(*) FROM chain WHERE status IN ('DRAFT', 'REVIEW')`, chainCTE)
	var count int
	if err := tx.GetContext(ctx, &count, query, id); err != nil {
		return false, fmt.Errorf("check open chain versions: %w", err)
	}
	return count > 0, nil
}

// InsertVersion inserts the successor row inside tx.
func (r *DocumentRepository) InsertVersion(ctx context.Context, tx *sqlx.Tx, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	const query = `INSERT INTO documents
	(id, title, document_type, category, version, status, compliance_required, owner_id, creator_id, previous_version_id, is_head, created_at, updated_at)
	VALUES (:id, :title, :document_type, :category, :version, :status, :compliance_required, :owner_id, :creator_id, :previous_version_id, :is_head, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

// ClearHead drops the head flag from the predecessor inside tx. Zero touched
// rows means another transaction already flipped it.
func (r *DocumentRepository) ClearHead(ctx context.Context, tx *sqlx.Tx, id string) error {
	const query = `UPDATE documents SET is_head = FALSE, updated_at = $1 WHERE id = $2 AND is_head = TRUE`
	result, err := tx.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("clear head flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check head flag rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
