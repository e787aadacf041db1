package workflow

import "github.com/rcolomer-cos/E-QMS-sub001/internal/models"

// DocumentDefinition declares the controlled-document lifecycle.
//
//	DRAFT --submit_for_review--> REVIEW
//	REVIEW --approve--> APPROVED
//	REVIEW --reject--> DRAFT
//	REVIEW --request_changes--> DRAFT
//	APPROVED --obsolete--> OBSOLETE
//
// APPROVED only progresses via obsolete or by forking a new version, which
// is a chain operation owned by the document service, not a transition of
// the same row. OBSOLETE is terminal.
func DocumentDefinition() Definition {
	reviewerRoles := []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleReviewer}
	return Definition{
		EntityType: models.EntityTypeDocument,
		Rules: map[TransitionKey]string{
			{From: string(models.DocumentStatusDraft), Action: ActionSubmitForReview}: string(models.DocumentStatusReview),
			{From: string(models.DocumentStatusReview), Action: ActionApprove}:        string(models.DocumentStatusApproved),
			{From: string(models.DocumentStatusReview), Action: ActionReject}:         string(models.DocumentStatusDraft),
			{From: string(models.DocumentStatusReview), Action: ActionRequestChanges}: string(models.DocumentStatusDraft),
			{From: string(models.DocumentStatusApproved), Action: ActionObsolete}:     string(models.DocumentStatusObsolete),
		},
		Policies: map[Action]Policy{
			ActionSubmitForReview: {ChangeType: models.ChangeTypeUpdate},
			ActionApprove:         {ChangeType: models.ChangeTypeApprove, Roles: reviewerRoles},
			ActionReject:          {ChangeType: models.ChangeTypeReject, RequireReason: true, ReasonField: "reason", Roles: reviewerRoles},
			ActionRequestChanges:  {ChangeType: models.ChangeTypeRequestChanges, RequireReason: true, ReasonField: "changes", Roles: reviewerRoles},
			ActionObsolete:        {ChangeType: models.ChangeTypeObsolete, Roles: []models.UserRole{models.RoleAdmin, models.RoleManager}},
		},
	}
}

// AuditDefinition declares the quality-audit lifecycle. Execution progress
// (start, complete) runs through the same engine so the ledger captures the
// full status history; sign-off is gated to admins and managers and a
// rejected audit can be resubmitted after rework.
func AuditDefinition() Definition {
	signoffRoles := []models.UserRole{models.RoleAdmin, models.RoleManager}
	return Definition{
		EntityType: models.EntityTypeAudit,
		Rules: map[TransitionKey]string{
			{From: string(models.AuditStatusPlanned), Action: ActionStart}:             string(models.AuditStatusInProgress),
			{From: string(models.AuditStatusInProgress), Action: ActionComplete}:       string(models.AuditStatusCompleted),
			{From: string(models.AuditStatusCompleted), Action: ActionSubmitForReview}: string(models.AuditStatusPendingReview),
			{From: string(models.AuditStatusRejected), Action: ActionSubmitForReview}:  string(models.AuditStatusPendingReview),
			{From: string(models.AuditStatusPendingReview), Action: ActionApprove}:     string(models.AuditStatusApproved),
			{From: string(models.AuditStatusPendingReview), Action: ActionReject}:      string(models.AuditStatusRejected),
		},
		Policies: map[Action]Policy{
			ActionStart:           {ChangeType: models.ChangeTypeUpdate},
			ActionComplete:        {ChangeType: models.ChangeTypeUpdate},
			ActionSubmitForReview: {ChangeType: models.ChangeTypeUpdate},
			ActionApprove:         {ChangeType: models.ChangeTypeApprove, Roles: signoffRoles},
			ActionReject:          {ChangeType: models.ChangeTypeReject, RequireReason: true, ReasonField: "comments", Roles: signoffRoles},
		},
	}
}
