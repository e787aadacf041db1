package dto

import "github.com/rcolomer-cos/E-QMS-sub001/internal/models"

// CreateAuditRequest payload for scheduling a quality audit.
type CreateAuditRequest struct {
	Title         string           `json:"title" validate:"required,min=3"`
	AuditType     models.AuditType `json:"auditType" validate:"required"`
	Scope         string           `json:"scope" validate:"required"`
	LeadAuditorID string           `json:"leadAuditorId" validate:"required"`
}

// UpdateAuditRequest carries field edits, permitted before sign-off.
type UpdateAuditRequest struct {
	Title    string `json:"title"`
	Scope    string `json:"scope"`
	Findings string `json:"findings"`
}

// ReviewAuditRequest carries sign-off comments. Comments are mandatory for
// rejection.
type ReviewAuditRequest struct {
	Comments string `json:"comments"`
}

// AuditQuery mirrors supported audit listing filters.
type AuditQuery struct {
	Status    []models.AuditStatus
	AuditType models.AuditType
	Limit     int
	Offset    int
}
