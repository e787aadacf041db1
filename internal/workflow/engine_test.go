package workflow

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

type txRunnerStub struct{}

func (txRunnerStub) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type storeStub struct {
	statuses map[string]string
	casFails int
}

func newStoreStub() *storeStub {
	return &storeStub{statuses: make(map[string]string)}
}

func (s *storeStub) Status(ctx context.Context, tx *sqlx.Tx, id string) (string, error) {
	status, ok := s.statuses[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return status, nil
}

func (s *storeStub) CompareAndSetStatus(ctx context.Context, tx *sqlx.Tx, id, expected, next string) error {
	if s.casFails > 0 {
		s.casFails--
		s.statuses[id] = "APPROVED" // a concurrent caller won
		return sql.ErrNoRows
	}
	if s.statuses[id] != expected {
		return sql.ErrNoRows
	}
	s.statuses[id] = next
	return nil
}

type ledgerStub struct {
	entries []models.Revision
}

func (l *ledgerStub) Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error {
	rev.RevisionNumber = len(l.entries) + 1
	l.entries = append(l.entries, *rev)
	return nil
}

func newTestEngine(store *storeStub, ledger *ledgerStub) *Engine {
	e := New(txRunnerStub{}, ledger, nil)
	e.Register(DocumentDefinition(), store)
	return e
}

func reviewer() models.Actor {
	return models.Actor{ID: "user-1", Role: models.RoleReviewer}
}

func TestEngineDocumentHappyPath(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "DRAFT"
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	result, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionSubmitForReview,
		Actor:      models.Actor{ID: "author-1", Role: models.RoleEmployee},
	})
	require.NoError(t, err)
	require.Equal(t, "DRAFT", result.From)
	require.Equal(t, "REVIEW", result.To)

	result, err = engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionApprove,
		Actor:      reviewer(),
		Reason:     "looks good",
	})
	require.NoError(t, err)
	require.Equal(t, "APPROVED", result.To)
	require.Equal(t, "APPROVED", store.statuses["doc-1"])

	require.Len(t, ledger.entries, 2)
	require.Equal(t, models.ChangeTypeUpdate, ledger.entries[0].ChangeType)
	require.Equal(t, models.ChangeTypeApprove, ledger.entries[1].ChangeType)
	// each entry's statusAfter feeds the next entry's statusBefore
	require.Equal(t, ledger.entries[0].StatusAfter, ledger.entries[1].StatusBefore)
}

func TestEngineRejectRequiresReason(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "REVIEW"
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionReject,
		Actor:      reviewer(),
		Reason:     "   ",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Equal(t, "REVIEW", store.statuses["doc-1"])
	require.Empty(t, ledger.entries)
}

func TestEngineRejectWithReason(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "REVIEW"
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	result, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionReject,
		Actor:      reviewer(),
		Reason:     "missing clause 8.2 reference",
	})
	require.NoError(t, err)
	require.Equal(t, "DRAFT", result.To)
	require.Len(t, ledger.entries, 1)
	require.Equal(t, models.ChangeTypeReject, ledger.entries[0].ChangeType)
	require.Equal(t, "missing clause 8.2 reference", ledger.entries[0].ChangeReason)
	require.Equal(t, "REVIEW", ledger.entries[0].StatusBefore)
	require.Equal(t, "DRAFT", ledger.entries[0].StatusAfter)
}

func TestEngineInvalidTransition(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "DRAFT"
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionApprove,
		Actor:      reviewer(),
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.Empty(t, ledger.entries)
}

func TestEngineForbiddenRole(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "APPROVED"
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionObsolete,
		Actor:      models.Actor{ID: "user-2", Role: models.RoleEmployee},
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	require.Equal(t, "APPROVED", store.statuses["doc-1"])
}

func TestEngineNotFound(t *testing.T) {
	engine := newTestEngine(newStoreStub(), &ledgerStub{})

	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "missing",
		Action:     ActionSubmitForReview,
		Actor:      reviewer(),
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEngineNotFoundBeforePolicyChecks(t *testing.T) {
	engine := newTestEngine(newStoreStub(), &ledgerStub{})

	// blank reason and a role outside the reject gate still report 404
	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "missing",
		Action:     ActionReject,
		Actor:      models.Actor{ID: "emp-1", Role: models.RoleEmployee},
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEngineConcurrentApproveLosesRace(t *testing.T) {
	store := newStoreStub()
	store.statuses["doc-1"] = "REVIEW"
	store.casFails = 1
	ledger := &ledgerStub{}
	engine := newTestEngine(store, ledger)

	// First caller loses the CAS to a concurrent approver.
	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionApprove,
		Actor:      reviewer(),
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.Empty(t, ledger.entries)

	// A retry sees the already-approved status as an invalid transition.
	_, err = engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeDocument,
		EntityID:   "doc-1",
		Action:     ActionApprove,
		Actor:      reviewer(),
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.Empty(t, ledger.entries)
}

func TestEngineAuditSignoffGating(t *testing.T) {
	store := newStoreStub()
	store.statuses["audit-1"] = "PENDING_REVIEW"
	ledger := &ledgerStub{}
	engine := New(txRunnerStub{}, ledger, nil)
	engine.Register(AuditDefinition(), store)

	_, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeAudit,
		EntityID:   "audit-1",
		Action:     ActionApprove,
		Actor:      models.Actor{ID: "user-3", Role: models.RoleReviewer},
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeAudit,
		EntityID:   "audit-1",
		Action:     ActionReject,
		Actor:      models.Actor{ID: "mgr-1", Role: models.RoleManager},
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	result, err := engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeAudit,
		EntityID:   "audit-1",
		Action:     ActionReject,
		Actor:      models.Actor{ID: "mgr-1", Role: models.RoleManager},
		Reason:     "scope does not cover supplier line",
	})
	require.NoError(t, err)
	require.Equal(t, "REJECTED", result.To)

	// rejected audits can be resubmitted after rework
	result, err = engine.Transition(context.Background(), Request{
		EntityType: models.EntityTypeAudit,
		EntityID:   "audit-1",
		Action:     ActionSubmitForReview,
		Actor:      models.Actor{ID: "auditor-1", Role: models.RoleEmployee},
	})
	require.NoError(t, err)
	require.Equal(t, "PENDING_REVIEW", result.To)
}
