package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/civicgrid/dispatch/internal/domain"
)

// VerificationRepository implements domain.VerificationStore for PostgreSQL.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository creates a new VerificationRepository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Approve closes the issue and credits the worker in one transaction: the
// status compare-and-swap runs first, so if any concurrent write touched
// the issue the whole review rolls back untouched.
func (r *VerificationRepository) Approve(ctx context.Context, rec domain.VerificationRecord, issueVersion int64, workerID string) (domain.Issue, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := casTransition(ctx, tx, rec, issueVersion, domain.IssueStatusClosed, true)
	if err != nil {
		return domain.Issue{}, err
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return domain.Issue{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET active = FALSE, rating = $2
		 WHERE issue_id = $1 AND active`,
		rec.IssueID, rec.Rating,
	); err != nil {
		return domain.Issue{}, fmt.Errorf("close assignment for issue %s: %w", rec.IssueID, err)
	}

	if err := bumpMetrics(ctx, tx, workerID, rec.CreatedAt, 0, 1, 0); err != nil {
		return domain.Issue{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Issue{}, fmt.Errorf("commit tx: %w", err)
	}
	return issue, nil
}

// Reject reopens the issue for rework. The SLA deadline column is not
// touched, so rework inherits the original deadline.
func (r *VerificationRepository) Reject(ctx context.Context, rec domain.VerificationRecord, issueVersion int64, workerID string) (domain.Issue, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := casTransition(ctx, tx, rec, issueVersion, domain.IssueStatusReopened, false)
	if err != nil {
		return domain.Issue{}, err
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return domain.Issue{}, err
	}

	if err := bumpMetrics(ctx, tx, workerID, rec.CreatedAt, 0, 0, 1); err != nil {
		return domain.Issue{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Issue{}, fmt.Errorf("commit tx: %w", err)
	}
	return issue, nil
}

// ListByIssue returns an issue's verification records, oldest first.
func (r *VerificationRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.VerificationRecord, error) {
	var records []domain.VerificationRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT id, issue_id, reviewer_id, action, comment, rating, created_at
		 FROM verification_records
		 WHERE issue_id = $1
		 ORDER BY created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list verification records for issue %s: %w", issueID, err)
	}
	return records, nil
}

func casTransition(ctx context.Context, tx *sqlx.Tx, rec domain.VerificationRecord, issueVersion int64, target domain.IssueStatus, setResolved bool) (domain.Issue, error) {
	var resolvedAt any
	if setResolved {
		resolvedAt = rec.CreatedAt
	}

	var issue domain.Issue
	err := tx.QueryRowxContext(ctx,
		`UPDATE issues
		 SET status = $3, resolved_at = COALESCE($4, resolved_at),
		     version = version + 1, updated_at = $5
		 WHERE id = $1 AND version = $2
		 RETURNING `+issueColumns,
		rec.IssueID, issueVersion, target, resolvedAt, rec.CreatedAt,
	).StructScan(&issue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Issue{}, fmt.Errorf("issue %s: %w", rec.IssueID, domain.ErrAssignmentConflict)
		}
		return domain.Issue{}, fmt.Errorf("transition issue %s: %w", rec.IssueID, err)
	}
	return issue, nil
}

func insertRecord(ctx context.Context, tx *sqlx.Tx, rec domain.VerificationRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO verification_records (id, issue_id, reviewer_id, action, comment, rating, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.IssueID, rec.ReviewerID, rec.Action, rec.Comment, rec.Rating, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}
	return nil
}
