package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/dto"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/repository"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/workflow"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

const pendingDocumentsCacheKey = "documents:pending"

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	UpdateDraftMetadata(ctx context.Context, id, title, category string) error
	Chain(ctx context.Context, id string) ([]models.Document, error)
	HeadOf(ctx context.Context, id string) (*models.Document, error)
	ChainHasOpenVersion(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	InsertVersion(ctx context.Context, tx *sqlx.Tx, doc *models.Document) error
	ClearHead(ctx context.Context, tx *sqlx.Tx, id string) error
}

type transitioner interface {
	Transition(ctx context.Context, req workflow.Request) (*workflow.Result, error)
}

type revisionLedger interface {
	Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error
	History(ctx context.Context, entityType models.EntityType, entityID string) ([]models.Revision, error)
}

type auditTrail interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// DocumentService orchestrates the controlled-document lifecycle on top of
// the workflow engine. All status mutation goes through the engine; the
// service owns creation, draft edits, chain operations, and read paths.
type DocumentService struct {
	repo      documentStore
	engine    transitioner
	ledger    revisionLedger
	runner    repository.TxRunner
	cache     *CacheService
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(repo documentStore, engine transitioner, ledger revisionLedger, runner repository.TxRunner, cache *CacheService, audit auditTrail, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentService{
		repo:      repo,
		engine:    engine,
		ledger:    ledger,
		runner:    runner,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// Create registers a new controlled document in DRAFT at version 1.0.
// Creation is not a ledger entry: the ledger records explicit transitions
// only, and the application audit trail covers the insert.
func (s *DocumentService) Create(ctx context.Context, req dto.CreateDocumentRequest, actor models.Actor) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if !models.ValidDocumentType(req.DocumentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported document type: %s", req.DocumentType))
	}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID = actor.ID
	}
	doc := &models.Document{
		Title:              strings.TrimSpace(req.Title),
		DocumentType:       req.DocumentType,
		Category:           strings.TrimSpace(req.Category),
		ComplianceRequired: req.ComplianceRequired,
		OwnerID:            ownerID,
		CreatorID:          actor.ID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionDocumentCreate, doc.ID, map[string]interface{}{
		"title": doc.Title, "version": doc.Version,
	})
	return doc, nil
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// List returns documents matching the query.
func (s *DocumentService) List(ctx context.Context, query dto.DocumentQuery) ([]models.Document, error) {
	docs, err := s.repo.List(ctx, models.DocumentFilter{
		Status:       query.Status,
		DocumentType: query.DocumentType,
		Category:     query.Category,
		HeadsOnly:    query.HeadsOnly,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// ListPending returns documents awaiting review, cache-aside.
func (s *DocumentService) ListPending(ctx context.Context) ([]models.Document, error) {
	var cached []models.Document
	if hit, err := s.cache.Get(ctx, pendingDocumentsCacheKey, &cached); err == nil && hit {
		return cached, nil
	}
	docs, err := s.repo.List(ctx, models.DocumentFilter{Status: []models.DocumentStatus{models.DocumentStatusReview}})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending documents")
	}
	_ = s.cache.Set(ctx, pendingDocumentsCacheKey, docs, 0)
	return docs, nil
}

// UpdateDraft edits document metadata, permitted while in DRAFT only. Only
// the owner, an admin, or a manager may edit.
func (s *DocumentService) UpdateDraft(ctx context.Context, id string, req dto.UpdateDocumentRequest, actor models.Actor) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleManager && doc.OwnerID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner or a manager may edit this document")
	}
	if err := s.repo.UpdateDraftMetadata(ctx, id, strings.TrimSpace(req.Title), strings.TrimSpace(req.Category)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "documents can only be edited in draft")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionDocumentUpdate, id, map[string]interface{}{
		"title": req.Title, "category": req.Category,
	})
	return s.Get(ctx, id)
}

// SubmitForReview moves a draft into review.
func (s *DocumentService) SubmitForReview(ctx context.Context, id string, actor models.Actor) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionSubmitForReview, "", "submitted for review")
}

// Approve resolves a pending review as approved.
func (s *DocumentService) Approve(ctx context.Context, id string, actor models.Actor, comments string) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionApprove, comments, "approved")
}

// Reject resolves a pending review back to draft; reason is mandatory.
func (s *DocumentService) Reject(ctx context.Context, id string, actor models.Actor, reason string) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionReject, reason, "rejected")
}

// RequestChanges sends the document back to draft for revision; the change
// description is mandatory.
func (s *DocumentService) RequestChanges(ctx context.Context, id string, actor models.Actor, changes string) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionRequestChanges, changes, "changes requested")
}

// Obsolete retires an approved document. Terminal.
func (s *DocumentService) Obsolete(ctx context.Context, id string, actor models.Actor) (*workflow.Result, error) {
	return s.transition(ctx, id, actor, workflow.ActionObsolete, "", "marked obsolete")
}

func (s *DocumentService) transition(ctx context.Context, id string, actor models.Actor, action workflow.Action, reason, description string) (*workflow.Result, error) {
	result, err := s.engine.Transition(ctx, workflow.Request{
		EntityType:  models.EntityTypeDocument,
		EntityID:    id,
		Action:      action,
		Actor:       actor,
		Reason:      reason,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	_ = s.cache.Invalidate(ctx, pendingDocumentsCacheKey)
	s.emitAudit(ctx, actor.ID, models.AuditActionDocumentTransition, id, map[string]interface{}{
		"action": string(action), "from": result.From, "to": result.To,
	})
	return result, nil
}

// Revisions returns the full ledger for a document, oldest first.
func (s *DocumentService) Revisions(ctx context.Context, id string) ([]models.Revision, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	revisions, err := s.ledger.History(ctx, models.EntityTypeDocument, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision history")
	}
	return revisions, nil
}

// Chain returns every version of the document, oldest first.
func (s *DocumentService) Chain(ctx context.Context, id string) ([]models.Document, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	chain, err := s.repo.Chain(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load version chain")
	}
	return chain, nil
}

// CreateNewVersion forks an approved chain head into a new draft version.
// The insert, the head flip, and the VERSION ledger entry commit atomically;
// the open-version check inside the same transaction guarantees at most one
// draft or review per chain.
func (s *DocumentService) CreateNewVersion(ctx context.Context, id string, actor models.Actor) (*models.Document, error) {
	var successor *models.Document
	err := s.runner.RunInTx(ctx, func(tx *sqlx.Tx) error {
		doc, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrNotFound
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
		}
		if doc.Status != models.DocumentStatusApproved {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only approved documents can be versioned")
		}
		if !doc.IsHead {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only the current chain head can be versioned")
		}
		open, err := s.repo.ChainHasOpenVersion(ctx, tx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect version chain")
		}
		if open {
			return appErrors.Clone(appErrors.ErrConflict, "a version of this document is already in draft or review")
		}

		prevID := doc.ID
		successor = &models.Document{
			Title:              doc.Title,
			DocumentType:       doc.DocumentType,
			Category:           doc.Category,
			Version:            bumpVersion(doc.Version),
			Status:             models.DocumentStatusDraft,
			ComplianceRequired: doc.ComplianceRequired,
			OwnerID:            doc.OwnerID,
			CreatorID:          actor.ID,
			PreviousVersionID:  &prevID,
			IsHead:             true,
		}
		if err := s.repo.ClearHead(ctx, tx, prevID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "document chain head changed concurrently")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire chain head")
		}
		if err := s.repo.InsertVersion(ctx, tx, successor); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert new version")
		}

		rev := models.Revision{
			EntityType:        models.EntityTypeDocument,
			EntityID:          successor.ID,
			ChangeType:        models.ChangeTypeVersion,
			ChangeDescription: fmt.Sprintf("new version %s created from document %s", successor.Version, prevID),
			StatusBefore:      string(models.DocumentStatusApproved),
			StatusAfter:       string(models.DocumentStatusDraft),
			AuthorID:          actor.ID,
		}
		if err := s.ledger.Append(ctx, tx, &rev); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append version revision")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.cache.Invalidate(ctx, pendingDocumentsCacheKey)
	_ = s.cache.Invalidate(ctx, complianceReportCacheKey(id))
	s.emitAudit(ctx, actor.ID, models.AuditActionDocumentVersion, successor.ID, map[string]interface{}{
		"previousVersionId": id, "version": successor.Version,
	})
	return successor, nil
}

func (s *DocumentService) emitAudit(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(models.EntityTypeDocument),
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "document-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

// bumpVersion increments the minor component: "1.0" becomes "1.1". Versions
// that do not parse gain a ".1" suffix so ordering stays strict.
func bumpVersion(version string) string {
	idx := strings.LastIndex(version, ".")
	if idx < 0 || idx == len(version)-1 {
		return version + ".1"
	}
	minor, err := strconv.Atoi(version[idx+1:])
	if err != nil {
		return version + ".1"
	}
	return fmt.Sprintf("%s.%d", version[:idx], minor+1)
}
