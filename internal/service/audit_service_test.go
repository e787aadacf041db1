package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

type auditStoreStub struct {
	audits map[string]*models.Audit
	nextID int
}

func newAuditStoreStub() *auditStoreStub {
	return &auditStoreStub{audits: make(map[string]*models.Audit)}
}

func (s *auditStoreStub) add(audit *models.Audit) *models.Audit {
	if audit.ID == "" {
		s.nextID++
		audit.ID = fmt.Sprintf("audit-%d", s.nextID)
	}
	s.audits[audit.ID] = audit
	return audit
}

func (s *auditStoreStub) Create(ctx context.Context, audit *models.Audit) error {
	audit.Status = models.AuditStatusPlanned
	s.add(audit)
	return nil
}

func (s *auditStoreStub) GetByID(ctx context.Context, id string) (*models.Audit, error) {
	audit, ok := s.audits[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *audit
	return &copied, nil
}

func (s *auditStoreStub) List(ctx context.Context, filter models.AuditFilter) ([]models.Audit, error) {
	var out []models.Audit
	for _, audit := range s.audits {
		out = append(out, *audit)
	}
	return out, nil
}

func (s *auditStoreStub) UpdateFields(ctx context.Context, id, title, scope, findings string) error {
	audit, ok := s.audits[id]
	if !ok {
		return sql.ErrNoRows
	}
	if audit.Status != models.AuditStatusPlanned && audit.Status != models.AuditStatusInProgress {
		return sql.ErrNoRows
	}
	audit.Title = title
	audit.Scope = scope
	audit.Findings = findings
	return nil
}

func newAuditSvc(store *auditStoreStub, engine *engineStub) *AuditService {
	return NewAuditService(store, engine, &serviceLedgerStub{}, nil, nil, nil)
}

func TestAuditCreateStartsPlanned(t *testing.T) {
	store := newAuditStoreStub()
	svc := newAuditSvc(store, &engineStub{})

	audit, err := svc.Create(context.Background(), dto.CreateAuditRequest{
		Title:         "Q3 Internal Audit",
		AuditType:     models.AuditTypeInternal,
		Scope:         "production line 2",
		LeadAuditorID: "auditor-1",
	}, models.Actor{ID: "mgr-1", Role: models.RoleManager})
	require.NoError(t, err)
	require.Equal(t, models.AuditStatusPlanned, audit.Status)
	require.Equal(t, "mgr-1", audit.CreatorID)
}

func TestAuditCreateRejectsUnknownType(t *testing.T) {
	svc := newAuditSvc(newAuditStoreStub(), &engineStub{})

	_, err := svc.Create(context.Background(), dto.CreateAuditRequest{
		Title:         "Mystery Audit",
		AuditType:     "SURPRISE",
		Scope:         "everything",
		LeadAuditorID: "auditor-1",
	}, models.Actor{ID: "mgr-1", Role: models.RoleManager})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuditUpdateBlockedAfterSignoff(t *testing.T) {
	store := newAuditStoreStub()
	store.add(&models.Audit{
		ID: "audit-1", Title: "Q3", Status: models.AuditStatusPendingReview,
		LeadAuditorID: "auditor-1", CreatorID: "mgr-1",
	})
	svc := newAuditSvc(store, &engineStub{})

	_, err := svc.Update(context.Background(), "audit-1", dto.UpdateAuditRequest{
		Findings: "late addition",
	}, models.Actor{ID: "auditor-1", Role: models.RoleEmployee})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestAuditUpdateOwnership(t *testing.T) {
	store := newAuditStoreStub()
	store.add(&models.Audit{
		ID: "audit-1", Title: "Q3", Scope: "line 2", Status: models.AuditStatusInProgress,
		LeadAuditorID: "auditor-1", CreatorID: "mgr-1",
	})
	svc := newAuditSvc(store, &engineStub{})

	_, err := svc.Update(context.Background(), "audit-1", dto.UpdateAuditRequest{
		Findings: "two minor nonconformities",
	}, models.Actor{ID: "bystander", Role: models.RoleEmployee})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	audit, err := svc.Update(context.Background(), "audit-1", dto.UpdateAuditRequest{
		Findings: "two minor nonconformities",
	}, models.Actor{ID: "auditor-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, "two minor nonconformities", audit.Findings)
	require.Equal(t, "Q3", audit.Title)
}

func TestAuditTransitionsDelegate(t *testing.T) {
	store := newAuditStoreStub()
	store.add(&models.Audit{ID: "audit-1", Status: models.AuditStatusCompleted})
	engine := &engineStub{result: &workflow.Result{
		EntityID: "audit-1", From: "COMPLETED", To: "PENDING_REVIEW",
		Revision: models.Revision{RevisionNumber: 3},
	}}
	svc := newAuditSvc(store, engine)

	result, err := svc.SubmitForReview(context.Background(), "audit-1", models.Actor{ID: "auditor-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, "PENDING_REVIEW", result.To)
	require.Len(t, engine.requests, 1)
	require.Equal(t, models.EntityTypeAudit, engine.requests[0].EntityType)
	require.Equal(t, workflow.ActionSubmitForReview, engine.requests[0].Action)
}
