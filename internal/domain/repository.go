package domain

import (
	"context"
	"time"
)

// IssueStore handles issue persistence with optimistic concurrency.
type IssueStore interface {
	// Create persists a new issue and, when escalation is non-nil, the
	// escalation ledger entry in the same transaction. Either both writes
	// commit or neither does.
	Create(ctx context.Context, issue Issue, escalation *EscalationEntry) error
	GetByID(ctx context.Context, id string) (Issue, error)
	// UpdateStatus commits a status transition against the given version.
	// It returns ErrAssignmentConflict when the version is stale, so the
	// caller never applies a transition to a snapshot it has not seen.
	UpdateStatus(ctx context.Context, id string, version int64, status IssueStatus, resolvedAt *time.Time, now time.Time) (Issue, error)
	// ListActiveWithDeadline returns issues in the given statuses that have
	// a non-nil SLA deadline, for the overdue sweep.
	ListActiveWithDeadline(ctx context.Context, statuses []IssueStatus) ([]Issue, error)
}

// WorkerStore handles worker profiles and their derived metrics.
type WorkerStore interface {
	GetByID(ctx context.Context, id string) (Worker, error)
	// ListEligible returns active workers that pass the cooldown rule at
	// now, together with their current active assignment counts.
	ListEligible(ctx context.Context, now time.Time, cooldown time.Duration) ([]WorkerLoad, error)
	GetMetrics(ctx context.Context, workerID string) (WorkerMetrics, error)
}

// AssignmentStore owns assignment records and the composite dispatch write.
type AssignmentStore interface {
	// Assign performs the full dispatch transaction: re-validates the
	// worker cooldown at write time, deactivates any prior active
	// assignment for the issue, inserts the new assignment, bumps the
	// worker's last_assigned_at and total_assigned, and commits the issue
	// status transition against the given version, setting the SLA
	// deadline when the issue does not already carry one.
	// Fails with ErrWorkerOnCooldown when the cooldown re-check loses, and
	// ErrAssignmentConflict when the issue version is stale.
	Assign(ctx context.Context, a Assignment, issueVersion int64, cooldown time.Duration, setDeadline bool) (Assignment, Issue, error)
	GetActiveByIssue(ctx context.Context, issueID string) (Assignment, error)
}

// VerificationStore owns verification records and the composite review
// writes that keep worker metrics consistent with issue transitions.
type VerificationStore interface {
	// Approve writes the record, closes the issue (setting resolved_at),
	// increments the worker's total_resolved, persists the optional rating
	// on the active assignment, and deactivates it — all in one
	// transaction.
	Approve(ctx context.Context, rec VerificationRecord, issueVersion int64, workerID string) (Issue, error)
	// Reject writes the record, reopens the issue, and increments the
	// worker's rework_count in one transaction. The SLA deadline is left
	// untouched so rework inherits the original deadline.
	Reject(ctx context.Context, rec VerificationRecord, issueVersion int64, workerID string) (Issue, error)
	ListByIssue(ctx context.Context, issueID string) ([]VerificationRecord, error)
}

// EscalationStore is the append-only escalation ledger.
type EscalationStore interface {
	Record(ctx context.Context, e EscalationEntry) (EscalationEntry, error)
	ListByIssue(ctx context.Context, issueID string) ([]EscalationEntry, error)
}
