package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func documentRows(docs ...*models.Document) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "title", "document_type", "category", "version", "status", "compliance_required",
		"owner_id", "creator_id", "previous_version_id", "is_head", "created_at", "updated_at",
	})
	for _, d := range docs {
		rows.AddRow(d.ID, d.Title, d.DocumentType, d.Category, d.Version, d.Status, d.ComplianceRequired,
			d.OwnerID, d.CreatorID, d.PreviousVersionID, d.IsHead, time.Now(), time.Now())
	}
	return rows
}

func TestDocumentRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc := &models.Document{
		Title:        "Incoming Inspection SOP",
		DocumentType: models.DocumentTypeProcedure,
		Category:     "inspection",
		OwnerID:      "owner-1",
		CreatorID:    "owner-1",
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	require.NotEmpty(t, doc.ID)
	require.Equal(t, models.DocumentStatusDraft, doc.Status)
	require.Equal(t, "1.0", doc.Version)
	require.True(t, doc.IsHead)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, document_type")).
		WithArgs(doc.ID).
		WillReturnRows(documentRows(doc))

	found, err := repo.GetByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	doc := &models.Document{ID: "doc-1", Status: models.DocumentStatusApproved, Version: "1.0", IsHead: true}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, document_type")).
		WithArgs(models.DocumentStatusApproved).
		WillReturnRows(documentRows(doc))

	docs, err := repo.List(context.Background(), models.DocumentFilter{
		Status:    []models.DocumentStatus{models.DocumentStatusApproved},
		HeadsOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "doc-1", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryUpdateDraftMetadataNotDraft(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET title")).
		WithArgs("New Title", "quality", sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDraftMetadata(context.Background(), "doc-1", "New Title", "quality")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCompareAndSetStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("REVIEW", sqlmock.AnyArg(), "doc-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.CompareAndSetStatus(context.Background(), tx, "doc-1", "DRAFT", "REVIEW"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryCompareAndSetStatusLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET status")).
		WithArgs("APPROVED", sqlmock.AnyArg(), "doc-1", "REVIEW").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)
	err = repo.CompareAndSetStatus(context.Background(), tx, "doc-1", "REVIEW", "APPROVED")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryClearHeadAlreadyFlipped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET is_head = FALSE")).
		WithArgs(sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := db.Beginx()
	require.NoError(t, err)
	err = repo.ClearHead(context.Background(), tx, "doc-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepositoryChain(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewDocumentRepository(db)
	prev := "doc-1"
	v1 := &models.Document{ID: "doc-1", Version: "1.0", Status: models.DocumentStatusObsolete}
	v2 := &models.Document{ID: "doc-2", Version: "1.1", Status: models.DocumentStatusApproved, PreviousVersionID: &prev, IsHead: true}
	mock.ExpectQuery(regexp.QuoteMeta("WITH RECURSIVE back AS")).
		WithArgs("doc-2").
		WillReturnRows(documentRows(v1, v2))

	chain, err := repo.Chain(context.Background(), "doc-2")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, "doc-1", chain[0].ID)
	require.Equal(t, "doc-2", chain[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
