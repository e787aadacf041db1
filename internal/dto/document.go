package dto

import "github.com/rcolomer-cos/E-QMS-sub001/internal/models"

// CreateDocumentRequest payload for registering a new controlled document.
// New documents always start in DRAFT at version 1.0.
type CreateDocumentRequest struct {
	Title              string              `json:"title" validate:"required,min=3"`
	DocumentType       models.DocumentType `json:"documentType" validate:"required"`
	Category           string              `json:"category" validate:"required"`
	ComplianceRequired bool                `json:"complianceRequired"`
	OwnerID            string              `json:"ownerId"`
}

// UpdateDocumentRequest carries metadata edits, permitted in DRAFT only.
type UpdateDocumentRequest struct {
	Title    string `json:"title" validate:"required,min=3"`
	Category string `json:"category" validate:"required"`
}

// ApproveRequest carries optional reviewer comments.
type ApproveRequest struct {
	Comments string `json:"comments"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RequestChangesRequest carries the mandatory change description. Distinct
// from rejection: the reviewer wants a revision, not abandonment.
type RequestChangesRequest struct {
	Changes string `json:"changes"`
}

// DocumentQuery mirrors supported listing filters.
type DocumentQuery struct {
	Status       []models.DocumentStatus
	DocumentType models.DocumentType
	Category     string
	HeadsOnly    bool
	Limit        int
	Offset       int
}

// TransitionResponse reports the outcome of a workflow action.
type TransitionResponse struct {
	EntityID     string `json:"entityId"`
	StatusBefore string `json:"statusBefore"`
	StatusAfter  string `json:"statusAfter"`
	Revision     int    `json:"revision"`
}
