package domain

import "time"

// ReviewAction is the outcome of a completion review.
type ReviewAction string

const (
	ReviewApproved ReviewAction = "approved"
	ReviewRejected ReviewAction = "rejected"
)

// VerificationRecord is an append-only audit entry for one completion
// review. An issue accumulates one record per review across rework cycles;
// records are never mutated after creation.
type VerificationRecord struct {
	ID         string       `json:"id" db:"id"`
	IssueID    string       `json:"issue_id" db:"issue_id"`
	ReviewerID string       `json:"reviewer_id" db:"reviewer_id"`
	Action     ReviewAction `json:"action" db:"action"`
	Comment    string       `json:"comment" db:"comment"`
	Rating     *int         `json:"rating,omitempty" db:"rating"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
