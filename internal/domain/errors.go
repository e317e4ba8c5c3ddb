package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound              = errors.New("resource not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrIssueLocked           = errors.New("issue is closed and locked")
	ErrWorkerOnCooldown      = errors.New("worker is on cooldown")
	ErrWorkerUnavailable     = errors.New("worker is unavailable")
	ErrAssignmentConflict    = errors.New("assignment lost a concurrent race")
	ErrCommentRequired       = errors.New("rejection requires a comment")
	ErrClassifierUnavailable = errors.New("risk classifier unavailable")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// TransitionError carries the context a caller needs to render an
// actionable message for a refused status transition.
type TransitionError struct {
	IssueID   string
	Current   IssueStatus
	Requested IssueStatus
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("issue %s: %s -> %s: %v", e.IssueID, e.Current, e.Requested, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// NewTransitionError wraps a transition refusal with issue context.
func NewTransitionError(issueID string, current, requested IssueStatus, err error) *TransitionError {
	return &TransitionError{IssueID: issueID, Current: current, Requested: requested, Err: err}
}

// CooldownError reports when a worker becomes eligible again.
type CooldownError struct {
	WorkerID    string
	AvailableAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("worker %s on cooldown until %s", e.WorkerID, e.AvailableAt.Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error {
	return ErrWorkerOnCooldown
}
