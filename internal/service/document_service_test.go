package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

type txRunnerStub struct{}

func (txRunnerStub) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type docStoreStub struct {
	docs    map[string]*models.Document
	nextID  int
	cleared []string
}

func newDocStoreStub() *docStoreStub {
	return &docStoreStub{docs: make(map[string]*models.Document)}
}

func (s *docStoreStub) add(doc *models.Document) *models.Document {
	if doc.ID == "" {
		for {
			s.nextID++
			doc.ID = fmt.Sprintf("doc-%d", s.nextID)
			if _, exists := s.docs[doc.ID]; !exists {
				break
			}
		}
	}
	s.docs[doc.ID] = doc
	return doc
}

func (s *docStoreStub) Create(ctx context.Context, doc *models.Document) error {
	doc.Status = models.DocumentStatusDraft
	doc.Version = "1.0"
	doc.IsHead = true
	s.add(doc)
	return nil
}

func (s *docStoreStub) GetByID(ctx context.Context, id string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *doc
	return &copied, nil
}

func (s *docStoreStub) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Document, error) {
	return s.GetByID(ctx, id)
}

func (s *docStoreStub) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (s *docStoreStub) UpdateDraftMetadata(ctx context.Context, id, title, category string) error {
	doc, ok := s.docs[id]
	if !ok || doc.Status != models.DocumentStatusDraft {
		return sql.ErrNoRows
	}
	doc.Title = title
	doc.Category = category
	return nil
}

func (s *docStoreStub) Chain(ctx context.Context, id string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (s *docStoreStub) HeadOf(ctx context.Context, id string) (*models.Document, error) {
	for _, doc := range s.docs {
		if doc.IsHead {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *docStoreStub) ChainHasOpenVersion(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	for _, doc := range s.docs {
		if doc.Status == models.DocumentStatusDraft || doc.Status == models.DocumentStatusReview {
			return true, nil
		}
	}
	return false, nil
}

func (s *docStoreStub) InsertVersion(ctx context.Context, tx *sqlx.Tx, doc *models.Document) error {
	s.add(doc)
	return nil
}

func (s *docStoreStub) ClearHead(ctx context.Context, tx *sqlx.Tx, id string) error {
	doc, ok := s.docs[id]
	if !ok || !doc.IsHead {
		return sql.ErrNoRows
	}
	doc.IsHead = false
	s.cleared = append(s.cleared, id)
	return nil
}

type serviceLedgerStub struct {
	entries []models.Revision
}

func (l *serviceLedgerStub) Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error {
	rev.RevisionNumber = len(l.entries) + 1
	l.entries = append(l.entries, *rev)
	return nil
}

func (l *serviceLedgerStub) History(ctx context.Context, entityType models.EntityType, entityID string) ([]models.Revision, error) {
	var out []models.Revision
	for _, rev := range l.entries {
		if rev.EntityType == entityType && rev.EntityID == entityID {
			out = append(out, rev)
		}
	}
	return out, nil
}

type engineStub struct {
	result   *workflow.Result
	err      error
	requests []workflow.Request
}

func (e *engineStub) Transition(ctx context.Context, req workflow.Request) (*workflow.Result, error) {
	e.requests = append(e.requests, req)
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func disabledCache() *CacheService {
	return NewCacheService(nil, nil, 0, nil, false)
}

func newDocService(store *docStoreStub, engine *engineStub, ledger *serviceLedgerStub) *DocumentService {
	return NewDocumentService(store, engine, ledger, txRunnerStub{}, disabledCache(), nil, nil, nil)
}

func admin() models.Actor {
	return models.Actor{ID: "admin-1", Role: models.RoleAdmin}
}

func TestDocumentCreateDefaults(t *testing.T) {
	store := newDocStoreStub()
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	doc, err := svc.Create(context.Background(), dto.CreateDocumentRequest{
		Title:              "Calibration Procedure",
		DocumentType:       models.DocumentTypeProcedure,
		Category:           "calibration",
		ComplianceRequired: true,
	}, models.Actor{ID: "author-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusDraft, doc.Status)
	require.Equal(t, "1.0", doc.Version)
	require.True(t, doc.IsHead)
	require.Equal(t, "author-1", doc.OwnerID)
	require.Equal(t, "author-1", doc.CreatorID)
}

func TestDocumentCreateRejectsUnknownType(t *testing.T) {
	svc := newDocService(newDocStoreStub(), &engineStub{}, &serviceLedgerStub{})

	_, err := svc.Create(context.Background(), dto.CreateDocumentRequest{
		Title:        "Mystery File",
		DocumentType: "NOVEL",
		Category:     "misc",
	}, admin())
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDocumentUpdateDraftOwnership(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{
		ID: "doc-1", Title: "Old", Status: models.DocumentStatusDraft,
		OwnerID: "owner-1", Version: "1.0", IsHead: true,
	})
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	_, err := svc.UpdateDraft(context.Background(), "doc-1", dto.UpdateDocumentRequest{
		Title: "New Title", Category: "quality",
	}, models.Actor{ID: "intruder", Role: models.RoleEmployee})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	doc, err := svc.UpdateDraft(context.Background(), "doc-1", dto.UpdateDocumentRequest{
		Title: "New Title", Category: "quality",
	}, models.Actor{ID: "owner-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, "New Title", doc.Title)
}

func TestDocumentUpdateOutsideDraftRejected(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{
		ID: "doc-1", Title: "Approved", Status: models.DocumentStatusApproved,
		OwnerID: "owner-1", Version: "1.0", IsHead: true,
	})
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	_, err := svc.UpdateDraft(context.Background(), "doc-1", dto.UpdateDocumentRequest{
		Title: "Sneaky Edit", Category: "quality",
	}, models.Actor{ID: "owner-1", Role: models.RoleEmployee})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestDocumentTransitionDelegatesToEngine(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{ID: "doc-1", Status: models.DocumentStatusReview, Version: "1.0", IsHead: true})
	engine := &engineStub{result: &workflow.Result{
		EntityID: "doc-1", From: "REVIEW", To: "APPROVED",
		Revision: models.Revision{RevisionNumber: 2},
	}}
	svc := newDocService(store, engine, &serviceLedgerStub{})

	result, err := svc.Approve(context.Background(), "doc-1", admin(), "well documented")
	require.NoError(t, err)
	require.Equal(t, "APPROVED", result.To)
	require.Len(t, engine.requests, 1)
	require.Equal(t, workflow.ActionApprove, engine.requests[0].Action)
	require.Equal(t, "well documented", engine.requests[0].Reason)
}

func TestCreateNewVersionHappyPath(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{
		ID: "doc-1", Title: "SOP-7", Status: models.DocumentStatusApproved,
		Version: "1.0", IsHead: true, OwnerID: "owner-1", ComplianceRequired: true,
	})
	ledger := &serviceLedgerStub{}
	svc := newDocService(store, &engineStub{}, ledger)

	successor, err := svc.CreateNewVersion(context.Background(), "doc-1", admin())
	require.NoError(t, err)
	require.Equal(t, "1.1", successor.Version)
	require.Equal(t, models.DocumentStatusDraft, successor.Status)
	require.True(t, successor.IsHead)
	require.NotNil(t, successor.PreviousVersionID)
	require.Equal(t, "doc-1", *successor.PreviousVersionID)
	require.True(t, successor.ComplianceRequired)

	prior, err := store.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	require.False(t, prior.IsHead)

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	require.Equal(t, models.ChangeTypeVersion, entry.ChangeType)
	require.Equal(t, successor.ID, entry.EntityID)
	require.Contains(t, entry.ChangeDescription, "doc-1")
}

func TestCreateNewVersionRequiresApproved(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{ID: "doc-1", Status: models.DocumentStatusDraft, Version: "1.0", IsHead: true})
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	_, err := svc.CreateNewVersion(context.Background(), "doc-1", admin())
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCreateNewVersionRejectsOpenSibling(t *testing.T) {
	store := newDocStoreStub()
	prev := "doc-1"
	store.add(&models.Document{ID: "doc-1", Status: models.DocumentStatusApproved, Version: "1.0", IsHead: false})
	store.add(&models.Document{
		ID: "doc-2", Status: models.DocumentStatusDraft, Version: "1.1",
		IsHead: true, PreviousVersionID: &prev,
	})
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	// versioning the retired head fails on the head check
	_, err := svc.CreateNewVersion(context.Background(), "doc-1", admin())
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestCreateNewVersionConflictsWhileDraftOpen(t *testing.T) {
	store := newDocStoreStub()
	store.add(&models.Document{ID: "doc-1", Status: models.DocumentStatusApproved, Version: "2.0", IsHead: true})
	store.add(&models.Document{ID: "doc-9", Status: models.DocumentStatusReview, Version: "1.1", IsHead: false})
	svc := newDocService(store, &engineStub{}, &serviceLedgerStub{})

	_, err := svc.CreateNewVersion(context.Background(), "doc-1", admin())
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestBumpVersion(t *testing.T) {
	cases := map[string]string{
		"1.0":  "1.1",
		"1.9":  "1.10",
		"2.3":  "2.4",
		"v3":   "v3.1",
		"1.0a": "1.0a.1",
	}
	for in, want := range cases {
		require.Equal(t, want, bumpVersion(in), "bumpVersion(%q)", in)
	}
}
