package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

type auditStore interface {
	Create(ctx context.Context, audit *models.Audit) error
	GetByID(ctx context.Context, id string) (*models.Audit, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.Audit, error)
	UpdateFields(ctx context.Context, id, title, scope, findings string) error
}

// AuditService manages quality audits through planning, execution, and
// sign-off. Status changes run through the workflow engine; only field edits
// and reads are handled here directly.
type AuditService struct {
	repo      auditStore
	engine    transitioner
	ledger    revisionLedger
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, engine transitioner, ledger revisionLedger, audit auditTrail, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuditService{
		repo:      repo,
		engine:    engine,
		ledger:    ledger,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create schedules a new audit in PLANNED status.
func (s *AuditService) Create(ctx context.Context, req dto.CreateAuditRequest, actor models.Actor) (*models.Audit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audit payload")
	}
	if !validAuditType(req.AuditType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported audit type: %s", req.AuditType))
	}
	audit := &models.Audit{
		Title:         strings.TrimSpace(req.Title),
		AuditType:     req.AuditType,
		Scope:         strings.TrimSpace(req.Scope),
		LeadAuditorID: req.LeadAuditorID,
		CreatorID:     actor.ID,
	}
	if err := s.repo.Create(ctx, audit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create audit")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionAuditCreate, audit.ID, map[string]interface{}{
		"title": audit.Title, "auditType": audit.AuditType,
	})
	return audit, nil
}

// Get returns an audit by id.
func (s *AuditService) Get(ctx context.Context, id string) (*models.Audit, error) {
	audit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit")
	}
	return audit, nil
}

// List returns audits matching the query.
func (s *AuditService) List(ctx context.Context, query dto.AuditQuery) ([]models.Audit, error) {
	audits, err := s.repo.List(ctx, models.AuditFilter{
		Status:    query.Status,
		AuditType: query.AuditType,
		Limit:     query.Limit,
		Offset:    query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audits")
	}
	return audits, nil
}

// Update edits audit fields while execution is still open. Only the lead
// auditor, the creator, an admin, or a manager may edit.
func (s *AuditService) Update(ctx context.Context, id string, req dto.UpdateAuditRequest, actor models.Actor) (*models.Audit, error) {
	audit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleManager &&
		audit.LeadAuditorID != actor.ID && audit.CreatorID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the lead auditor or a manager may edit this audit")
	}

	title := audit.Title
	if strings.TrimSpace(req.Title) != "" {
		title = strings.TrimSpace(req.Title)
	}
	scope := audit.Scope
	if strings.TrimSpace(req.Scope) != "" {
		scope = strings.TrimSpace(req.Scope)
	}
	findings := audit.Findings
	if req.Findings != "" {
		findings = req.Findings
	}

	if err := s.repo.UpdateFields(ctx, id, title, scope, findings); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "audits cannot be edited after entering sign-off")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update audit")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionAuditUpdate, id, map[string]interface{}{
		"title": title, "scope": scope,
	})
	return s.Get(ctx, id)
}

// Start moves a planned audit into execution.
func (s *AuditService) Start(ctx context.Context, id string, actor models.Actor) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionStart, "", "audit started")
}

// Complete closes field work on a running audit.
func (s *AuditService) Complete(ctx context.Context, id string, actor models.Actor) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionComplete, "", "audit completed")
}

// SubmitForReview hands a completed or rejected audit to sign-off.
func (s *AuditService) SubmitForReview(ctx context.Context, id string, actor models.Actor) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionSubmitForReview, "", "submitted for sign-off")
}

// Approve signs off a pending audit.
func (s *AuditService) Approve(ctx context.Context, id string, actor models.Actor, comments string) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionApprove, comments, "sign-off approved")
}

// Reject sends a pending audit back for rework; comments are mandatory.
func (s *AuditService) Reject(ctx context.Context, id string, actor models.Actor, comments string) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionReject, comments, "sign-off rejected")
}

func (s *AuditService) transition(ctx context.Context, id string, actor models.Actor, action workflow.Action, reason, description string) (*workflow.Result, error) {
	result, err := s.engine.Transition(ctx, workflow.Request{
		EntityType:  models.EntityTypeAudit,
		EntityID:    id,
		Action:      action,
		Actor:       actor,
		Reason:      reason,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionAuditTransition, id, map[string]interface{}{
		"action": string(action), "from": result.From, "to": result.To,
	})
	return result, nil
}

// Revisions returns the audit's ledger, oldest first.
func (s *AuditService) Revisions(ctx context.Context, id string) ([]models.Revision, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	revisions, err := s.ledger.History(ctx, models.EntityTypeAudit, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision history")
	}
	return revisions, nil
}

func (s *AuditService) emitAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(models.EntityTypeAudit),
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "audit-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func validAuditType(t models.AuditType) bool {
	switch t {
	case models.AuditTypeInternal, models.AuditTypeExternal, models.AuditTypeSupplier, models.AuditTypeCertification:
		return true
	}
	return false
}
