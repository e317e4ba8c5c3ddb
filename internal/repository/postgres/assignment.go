package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/civicgrid/dispatch/internal/domain"
)

const assignmentColumns = `id, issue_id, worker_id, priority, assigned_at,
	deadline, rating, active, created_at`

// AssignmentRepository implements domain.AssignmentStore for PostgreSQL.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign runs the full dispatch write in one transaction. The worker update
// is conditional on the cooldown cutoff, so the check holds at write time:
// of two concurrent dispatches to the same worker only one row update
// succeeds and the loser observes ErrWorkerOnCooldown. The issue update is
// a compare-and-swap on version, which also protects against concurrent
// dispatches to the same issue.
func (r *AssignmentRepository) Assign(ctx context.Context, a domain.Assignment, issueVersion int64, cooldown time.Duration, setDeadline bool) (domain.Assignment, domain.Issue, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := a.AssignedAt.Add(-cooldown)
	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET last_assigned_at = $2, updated_at = $2
		 WHERE id = $1 AND active
		   AND (last_assigned_at IS NULL OR last_assigned_at <= $3)`,
		a.WorkerID, a.AssignedAt, cutoff,
	)
	if err != nil {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("claim worker %s: %w", a.WorkerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Assignment{}, domain.Issue{}, &domain.CooldownError{
			WorkerID:    a.WorkerID,
			AvailableAt: a.AssignedAt.Add(cooldown),
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET active = FALSE WHERE issue_id = $1 AND active`,
		a.IssueID,
	); err != nil {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("deactivate prior assignment: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assignments (id, issue_id, worker_id, priority, assigned_at,
		                          deadline, rating, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.IssueID, a.WorkerID, a.Priority, a.AssignedAt,
		a.Deadline, a.Rating, a.Active, a.CreatedAt,
	); err != nil {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("insert assignment: %w", err)
	}

	if err := bumpMetrics(ctx, tx, a.WorkerID, a.AssignedAt, 1, 0, 0); err != nil {
		return domain.Assignment{}, domain.Issue{}, err
	}

	var deadline *time.Time
	if setDeadline {
		deadline = &a.Deadline
	}

	var issue domain.Issue
	err = tx.QueryRowxContext(ctx,
		`UPDATE issues
		 SET status = $3, sla_deadline = COALESCE($4, sla_deadline),
		     version = version + 1, updated_at = $5
		 WHERE id = $1 AND version = $2
		 RETURNING `+issueColumns,
		a.IssueID, issueVersion, domain.IssueStatusAssigned, deadline, a.AssignedAt,
	).StructScan(&issue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Assignment{}, domain.Issue{}, fmt.Errorf("issue %s: %w", a.IssueID, domain.ErrAssignmentConflict)
		}
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("transition issue %s: %w", a.IssueID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("commit tx: %w", err)
	}
	return a, issue, nil
}

// GetActiveByIssue returns the single active assignment for an issue.
func (r *AssignmentRepository) GetActiveByIssue(ctx context.Context, issueID string) (domain.Assignment, error) {
	var a domain.Assignment
	err := r.db.GetContext(ctx, &a,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE issue_id = $1 AND active`, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Assignment{}, domain.ErrNotFound
		}
		return domain.Assignment{}, fmt.Errorf("find active assignment for issue %s: %w", issueID, err)
	}
	return a, nil
}

// bumpMetrics upserts the per-worker counters inside the caller's
// transaction so metrics stay consistent with the triggering write.
func bumpMetrics(ctx context.Context, tx *sqlx.Tx, workerID string, now time.Time, assigned, resolved, rework int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO worker_metrics (worker_id, total_assigned, total_resolved, rework_count, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (worker_id)
		 DO UPDATE SET total_assigned = worker_metrics.total_assigned + $2,
		               total_resolved = worker_metrics.total_resolved + $3,
		               rework_count = worker_metrics.rework_count + $4,
		               last_updated = $5`,
		workerID, assigned, resolved, rework, now,
	)
	if err != nil {
		return fmt.Errorf("update metrics for worker %s: %w", workerID, err)
	}
	return nil
}
