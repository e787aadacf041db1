package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/config"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
	"github.com/rcolomer-cos/E-QMS-sub001/pkg/export"
)

func complianceReportCacheKey(documentID string) string {
	return fmt.Sprintf("compliance:report:%s", documentID)
}

type documentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
}

type acknowledgementStore interface {
	Upsert(ctx context.Context, ack *models.ComplianceAcknowledgement) error
	Get(ctx context.Context, documentID, userID string) (*models.ComplianceAcknowledgement, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.ComplianceAcknowledgement, error)
}

type rosterSource interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
}

// ComplianceService tracks read-and-understood acknowledgements against
// document versions. Compliance is never stored: it is derived by comparing
// the acknowledged version with the document's current version, so
// publishing a new version makes the whole roster stale automatically.
type ComplianceService struct {
	docs     documentReader
	acks     acknowledgementStore
	roster   rosterSource
	cache    *CacheService
	audit    auditTrail
	exporter export.Exporter
	cfg      config.ComplianceConfig
	logger   *zap.Logger
}

// NewComplianceService constructs the service.
func NewComplianceService(docs documentReader, acks acknowledgementStore, roster rosterSource, cache *CacheService, audit auditTrail, exporter export.Exporter, cfg config.ComplianceConfig, logger *zap.Logger) *ComplianceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = export.NewCSVExporter()
	}
	return &ComplianceService{
		docs:     docs,
		acks:     acks,
		roster:   roster,
		cache:    cache,
		audit:    audit,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Acknowledge records that the actor has read the document at its current
// version. Only the chain head can be acknowledged; superseded versions are
// rejected so nobody is recorded compliant against a retired document.
// Re-acknowledging the same version is idempotent apart from the timestamp;
// acknowledging after a version bump refreshes compliance.
func (s *ComplianceService) Acknowledge(ctx context.Context, documentID string, actor models.Actor) (*models.ComplianceStatus, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.ComplianceRequired {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document does not require acknowledgement")
	}
	if !doc.IsHead {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "document has been superseded by a newer version")
	}

	ack := &models.ComplianceAcknowledgement{
		DocumentID:          doc.ID,
		UserID:              actor.ID,
		AcknowledgedVersion: doc.Version,
	}
	if err := s.acks.Upsert(ctx, ack); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record acknowledgement")
	}

	_ = s.cache.Invalidate(ctx, complianceReportCacheKey(doc.ID))
	s.emitAudit(ctx, actor.ID, doc.ID, doc.Version)

	return &models.ComplianceStatus{
		DocumentID:          doc.ID,
		UserID:              actor.ID,
		IsCompliant:         true,
		CurrentVersion:      doc.Version,
		AcknowledgedVersion: &ack.AcknowledgedVersion,
		AcknowledgedAt:      &ack.AcknowledgedAt,
	}, nil
}

// StatusFor derives one user's compliance standing for a document.
func (s *ComplianceService) StatusFor(ctx context.Context, documentID, userID string) (*models.ComplianceStatus, error) {
	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}

	status := &models.ComplianceStatus{
		DocumentID:     doc.ID,
		UserID:         userID,
		CurrentVersion: doc.Version,
	}
	ack, err := s.acks.Get(ctx, documentID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acknowledgement")
	}
	status.AcknowledgedVersion = &ack.AcknowledgedVersion
	status.AcknowledgedAt = &ack.AcknowledgedAt
	status.IsCompliant = ack.AcknowledgedVersion == doc.Version
	return status, nil
}

// Report builds the roster-wide compliance report for a document,
// cache-aside. The roster is every active user in the configured roles;
// stale acknowledgements appear under pending with their old version shown.
func (s *ComplianceService) Report(ctx context.Context, documentID string) (*models.ComplianceReport, error) {
	key := complianceReportCacheKey(documentID)
	var cached models.ComplianceReport
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	doc, err := s.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.ComplianceRequired {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document does not require acknowledgement")
	}

	active := true
	users, err := s.roster.List(ctx, models.UserFilter{Roles: s.rosterRoles(), Active: &active})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load compliance roster")
	}
	acks, err := s.acks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acknowledgements")
	}
	byUser := make(map[string]models.ComplianceAcknowledgement, len(acks))
	for _, ack := range acks {
		byUser[ack.UserID] = ack
	}

	report := &models.ComplianceReport{
		DocumentID:        doc.ID,
		CurrentVersion:    doc.Version,
		AcknowledgedUsers: []models.ComplianceReportRow{},
		PendingUsers:      []models.ComplianceReportRow{},
		GeneratedAt:       time.Now().UTC(),
	}
	for _, user := range users {
		row := models.ComplianceReportRow{
			UserID:   user.ID,
			Email:    user.Email,
			FullName: user.FullName,
		}
		if ack, ok := byUser[user.ID]; ok {
			version := ack.AcknowledgedVersion
			at := ack.AcknowledgedAt
			row.AcknowledgedVersion = &version
			row.AcknowledgedAt = &at
			if version == doc.Version {
				report.AcknowledgedUsers = append(report.AcknowledgedUsers, row)
				continue
			}
		}
		report.PendingUsers = append(report.PendingUsers, row)
	}

	_ = s.cache.Set(ctx, key, report, s.cfg.ReportCacheTTL)
	return report, nil
}

// ExportReport renders the compliance report as a downloadable dataset.
func (s *ComplianceService) ExportReport(ctx context.Context, documentID string) ([]byte, string, error) {
	report, err := s.Report(ctx, documentID)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"user_id", "email", "full_name", "status", "acknowledged_version", "acknowledged_at"},
	}
	appendRows := func(rows []models.ComplianceReportRow, status string) {
		for _, row := range rows {
			record := map[string]string{
				"user_id":   row.UserID,
				"email":     row.Email,
				"full_name": row.FullName,
				"status":    status,
			}
			if row.AcknowledgedVersion != nil {
				record["acknowledged_version"] = *row.AcknowledgedVersion
			}
			if row.AcknowledgedAt != nil {
				record["acknowledged_at"] = row.AcknowledgedAt.UTC().Format(time.RFC3339)
			}
			dataset.Rows = append(dataset.Rows, record)
		}
	}
	appendRows(report.AcknowledgedUsers, "acknowledged")
	appendRows(report.PendingUsers, "pending")

	payload, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render compliance report")
	}
	return payload, s.exporter.ContentType(), nil
}

func (s *ComplianceService) document(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *ComplianceService) rosterRoles() []models.UserRole {
	roles := make([]models.UserRole, 0, len(s.cfg.RosterRoles))
	for _, role := range s.cfg.RosterRoles {
		roles = append(roles, models.UserRole(role))
	}
	return roles
}

func (s *ComplianceService) emitAudit(ctx context.Context, actorID, documentID, version string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{"version": version})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionComplianceAck,
		Resource:   string(models.EntityTypeDocument),
		ResourceID: &documentID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "compliance-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
