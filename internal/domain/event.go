package domain

import "time"

// EventType represents the kind of engine event.
type EventType string

const (
	EventNewIssue     EventType = "new_issue"
	EventIssueUpdated EventType = "issue_updated"
	EventOverdueIssue EventType = "overdue_issue"
)

// Event is published to the notification collaborator on lifecycle changes.
// Delivery is best-effort; engine invariants never depend on it.
type Event struct {
	Type       EventType     `json:"type"`
	IssueID    string        `json:"issue_id"`
	Status     IssueStatus   `json:"status,omitempty"`
	Overdue    time.Duration `json:"overdue,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
