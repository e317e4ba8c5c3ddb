package domain

import "time"

// Severity grades an escalation ledger entry.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// EscalationEntry is one row of the append-only escalation ledger.
// TriggeredBy is nil for auto-escalations created at issue intake.
type EscalationEntry struct {
	ID          string    `json:"id" db:"id"`
	IssueID     string    `json:"issue_id" db:"issue_id"`
	Reason      string    `json:"reason" db:"reason"`
	Severity    Severity  `json:"severity" db:"severity"`
	TriggeredBy *string   `json:"triggered_by,omitempty" db:"triggered_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
