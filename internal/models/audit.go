package models

import "time"

// AuditStatus captures quality-audit workflow states.
type AuditStatus string

const (
	AuditStatusPlanned       AuditStatus = "PLANNED"
	AuditStatusInProgress    AuditStatus = "IN_PROGRESS"
	AuditStatusCompleted     AuditStatus = "COMPLETED"
	AuditStatusPendingReview AuditStatus = "PENDING_REVIEW"
	AuditStatusApproved      AuditStatus = "APPROVED"
	AuditStatusRejected      AuditStatus = "REJECTED"
)

// AuditType enumerates supported audit categories.
type AuditType string

const (
	AuditTypeInternal      AuditType = "INTERNAL"
	AuditTypeExternal      AuditType = "EXTERNAL"
	AuditTypeSupplier      AuditType = "SUPPLIER"
	AuditTypeCertification AuditType = "CERTIFICATION"
)

// Audit is a quality audit record. Sign-off runs through the same workflow
// engine as documents: completed audits are submitted for review and then
// approved or rejected by admins or managers.
type Audit struct {
	ID            string      `db:"id" json:"id"`
	Title         string      `db:"title" json:"title"`
	AuditType     AuditType   `db:"audit_type" json:"auditType"`
	Scope         string      `db:"scope" json:"scope"`
	Status        AuditStatus `db:"status" json:"status"`
	LeadAuditorID string      `db:"lead_auditor_id" json:"leadAuditorId"`
	CreatorID     string      `db:"creator_id" json:"creatorId"`
	Findings      string      `db:"findings" json:"findings"`
	StartedAt     *time.Time  `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt   *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// AuditFilter constrains audit listing queries.
type AuditFilter struct {
	Status        []AuditStatus
	AuditType     AuditType
	LeadAuditorID string
	Limit         int
	Offset        int
}
