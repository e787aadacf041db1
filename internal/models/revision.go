package models

import "time"

// EntityType names a workflow-governed entity family.
type EntityType string

const (
	EntityTypeDocument EntityType = "document"
	EntityTypeAudit    EntityType = "audit"
)

// RevisionChangeType classifies a ledger entry.
type RevisionChangeType string

const (
	ChangeTypeCreate         RevisionChangeType = "CREATE"
	ChangeTypeUpdate         RevisionChangeType = "UPDATE"
	ChangeTypeApprove        RevisionChangeType = "APPROVE"
	ChangeTypeReject         RevisionChangeType = "REJECT"
	ChangeTypeRequestChanges RevisionChangeType = "REQUEST_CHANGES"
	ChangeTypeObsolete       RevisionChangeType = "OBSOLETE"
	ChangeTypeVersion        RevisionChangeType = "VERSION"
)

// Revision is one entry of the append-only ledger. RevisionNumber is strictly
// increasing per (entity_type, entity_id) starting at 1, assigned inside the
// same transaction as the status change it records. Rows are never updated
// or deleted.
type Revision struct {
	ID                string             `db:"id" json:"id"`
	EntityType        EntityType         `db:"entity_type" json:"entityType"`
	EntityID          string             `db:"entity_id" json:"entityId"`
	RevisionNumber    int                `db:"revision_number" json:"revisionNumber"`
	ChangeType        RevisionChangeType `db:"change_type" json:"changeType"`
	ChangeDescription string             `db:"change_description" json:"changeDescription"`
	ChangeReason      string             `db:"change_reason" json:"changeReason"`
	StatusBefore      string             `db:"status_before" json:"statusBefore"`
	StatusAfter       string             `db:"status_after" json:"statusAfter"`
	AuthorID          string             `db:"author_id" json:"authorId"`
	CreatedAt         time.Time          `db:"created_at" json:"createdAt"`
}
