package domain

import "time"

// IssueStatus represents the lifecycle state of an issue.
type IssueStatus string

const (
	IssueStatusReported   IssueStatus = "reported"
	IssueStatusAssigned   IssueStatus = "assigned"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusAwaiting   IssueStatus = "awaiting_verification"
	IssueStatusClosed     IssueStatus = "closed"
	IssueStatusReopened   IssueStatus = "reopened"
)

// transitions maps each status to the set of statuses reachable from it.
// Closed is terminal and has no outgoing edges.
var transitions = map[IssueStatus][]IssueStatus{
	IssueStatusReported:   {IssueStatusAssigned},
	IssueStatusAssigned:   {IssueStatusInProgress},
	IssueStatusInProgress: {IssueStatusAwaiting},
	IssueStatusAwaiting:   {IssueStatusClosed, IssueStatusReopened},
	IssueStatusReopened:   {IssueStatusInProgress, IssueStatusAssigned},
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s IssueStatus) bool {
	if s == IssueStatusClosed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// CanTransition checks whether moving an issue from one status to another is
// legal. It returns ErrIssueLocked for any move out of Closed and
// ErrIllegalTransition for moves not in the transition table.
func CanTransition(from, to IssueStatus) error {
	if from == IssueStatusClosed {
		return ErrIssueLocked
	}
	for _, t := range transitions[from] {
		if t == to {
			return nil
		}
	}
	return ErrIllegalTransition
}

// Issue represents one reported incident.
type Issue struct {
	ID            string      `json:"id" db:"id"`
	Category      string      `json:"category" db:"category"`
	Description   string      `json:"description" db:"description"`
	RiskScore     int         `json:"risk_score" db:"risk_score"`
	Priority      Priority    `json:"priority" db:"priority"`
	Status        IssueStatus `json:"status" db:"status"`
	AutoEscalated bool        `json:"auto_escalated" db:"auto_escalated"`
	ManualReview  bool        `json:"manual_review" db:"manual_review"`
	SLADeadline   *time.Time  `json:"sla_deadline,omitempty" db:"sla_deadline"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	Version       int64       `json:"-" db:"version"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the issue has reached its terminal state.
func (i Issue) Terminal() bool {
	return i.Status == IssueStatusClosed
}
