package models

import "time"

// ComplianceAcknowledgement records a user's confirmation of having read a
// specific document version. One row per (document, user); a repeat
// acknowledgement overwrites the version and timestamp, it never appends.
type ComplianceAcknowledgement struct {
	DocumentID          string    `db:"document_id" json:"documentId"`
	UserID              string    `db:"user_id" json:"userId"`
	AcknowledgedVersion string    `db:"acknowledged_version" json:"acknowledgedVersion"`
	AcknowledgedAt      time.Time `db:"acknowledged_at" json:"acknowledgedAt"`
}

// ComplianceStatus is derived at read time: an acknowledgement is compliant
// only while it matches the document's current version.
type ComplianceStatus struct {
	DocumentID          string     `json:"documentId"`
	UserID              string     `json:"userId"`
	IsCompliant         bool       `json:"isCompliant"`
	CurrentVersion      string     `json:"currentVersion"`
	AcknowledgedVersion *string    `json:"acknowledgedVersion,omitempty"`
	AcknowledgedAt      *time.Time `json:"acknowledgedAt,omitempty"`
}

// ComplianceReport splits the required roster into users whose
// acknowledgement matches the current version and everyone else.
type ComplianceReport struct {
	DocumentID        string                `json:"documentId"`
	CurrentVersion    string                `json:"currentVersion"`
	AcknowledgedUsers []ComplianceReportRow `json:"acknowledgedUsers"`
	PendingUsers      []ComplianceReportRow `json:"pendingUsers"`
	GeneratedAt       time.Time             `json:"generatedAt"`
}

// ComplianceReportRow is one roster member in a report.
type ComplianceReportRow struct {
	UserID              string     `json:"userId"`
	Email               string     `json:"email"`
	FullName            string     `json:"fullName"`
	AcknowledgedVersion *string    `json:"acknowledgedVersion,omitempty"`
	AcknowledgedAt      *time.Time `json:"acknowledgedAt,omitempty"`
}
