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

const issueColumns = `id, category, description, risk_score, priority, status,
	auto_escalated, manual_review, sla_deadline, resolved_at, version,
	created_at, updated_at`

// IssueRepository implements domain.IssueStore for PostgreSQL.
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository creates a new IssueRepository.
func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts the issue and, when present, its auto-escalation ledger
// entry in one transaction.
func (r *IssueRepository) Create(ctx context.Context, issue domain.Issue, escalation *domain.EscalationEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO issues (id, category, description, risk_score, priority, status,
		                     auto_escalated, manual_review, sla_deadline, resolved_at,
		                     version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		issue.ID, issue.Category, issue.Description, issue.RiskScore, issue.Priority,
		issue.Status, issue.AutoEscalated, issue.ManualReview, issue.SLADeadline,
		issue.ResolvedAt, issue.Version, issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}

	if escalation != nil {
		if err := insertEscalation(ctx, tx, *escalation); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves an issue by its id.
func (r *IssueRepository) GetByID(ctx context.Context, id string) (domain.Issue, error) {
	var issue domain.Issue
	err := r.db.GetContext(ctx, &issue,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Issue{}, domain.ErrNotFound
		}
		return domain.Issue{}, fmt.Errorf("find issue %s: %w", id, err)
	}
	return issue, nil
}

// UpdateStatus commits a status transition with compare-and-swap on the
// version column. A stale version surfaces as ErrAssignmentConflict so no
// transition is ever applied against a snapshot the caller has not seen.
func (r *IssueRepository) UpdateStatus(ctx context.Context, id string, version int64, status domain.IssueStatus, resolvedAt *time.Time, now time.Time) (domain.Issue, error) {
	var issue domain.Issue
	err := r.db.QueryRowxContext(ctx,
		`UPDATE issues
		 SET status = $3, resolved_at = COALESCE($4, resolved_at),
		     version = version + 1, updated_at = $5
		 WHERE id = $1 AND version = $2
		 RETURNING `+issueColumns,
		id, version, status, resolvedAt, now,
	).StructScan(&issue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Issue{}, r.casFailure(ctx, id)
		}
		return domain.Issue{}, fmt.Errorf("update issue %s status: %w", id, err)
	}
	return issue, nil
}

// ListActiveWithDeadline returns issues in the given statuses that carry an
// SLA deadline, for the overdue sweep.
func (r *IssueRepository) ListActiveWithDeadline(ctx context.Context, statuses []domain.IssueStatus) ([]domain.Issue, error) {
	query, args, err := sqlx.In(
		`SELECT `+issueColumns+` FROM issues
		 WHERE status IN (?) AND sla_deadline IS NOT NULL
		 ORDER BY sla_deadline`, statuses)
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	var issues []domain.Issue
	if err := r.db.SelectContext(ctx, &issues, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list active issues: %w", err)
	}
	return issues, nil
}

// casFailure distinguishes a missing row from a stale version.
func (r *IssueRepository) casFailure(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("issue %s: %w", id, domain.ErrAssignmentConflict)
}
