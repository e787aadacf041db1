package models

import "time"

// DocumentStatus captures controlled-document lifecycle states.
type DocumentStatus string

const (
	DocumentStatusDraft    DocumentStatus = "DRAFT"
	DocumentStatusReview   DocumentStatus = "REVIEW"
	DocumentStatusApproved DocumentStatus = "APPROVED"
	DocumentStatusObsolete DocumentStatus = "OBSOLETE"
)

// DocumentType enumerates supported controlled-document categories.
type DocumentType string

const (
	DocumentTypePolicy      DocumentType = "POLICY"
	DocumentTypeProcedure   DocumentType = "PROCEDURE"
	DocumentTypeWorkInstr   DocumentType = "WORK_INSTRUCTION"
	DocumentTypeForm        DocumentType = "FORM"
	DocumentTypeQualityPlan DocumentType = "QUALITY_PLAN"
)

// Document is a controlled document row. Successive versions are distinct
// rows linked through PreviousVersionID; IsHead marks the current chain head.
type Document struct {
	ID                 string         `db:"id" json:"id"`
	Title              string         `db:"title" json:"title"`
	DocumentType       DocumentType   `db:"document_type" json:"documentType"`
	Category           string         `db:"category" json:"category"`
	Version            string         `db:"version" json:"version"`
	Status             DocumentStatus `db:"status" json:"status"`
	ComplianceRequired bool           `db:"compliance_required" json:"complianceRequired"`
	OwnerID            string         `db:"owner_id" json:"ownerId"`
	CreatorID          string         `db:"creator_id" json:"creatorId"`
	PreviousVersionID  *string        `db:"previous_version_id" json:"previousVersionId,omitempty"`
	IsHead             bool           `db:"is_head" json:"isHead"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// DocumentFilter constrains listing queries.
type DocumentFilter struct {
	Status       []DocumentStatus
	DocumentType DocumentType
	Category     string
	OwnerID      string
	HeadsOnly    bool
	Limit        int
	Offset       int
}

// ValidDocumentType reports whether the given type is a known category.
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypePolicy, DocumentTypeProcedure, DocumentTypeWorkInstr, DocumentTypeForm, DocumentTypeQualityPlan:
		return true
	}
	return false
}
