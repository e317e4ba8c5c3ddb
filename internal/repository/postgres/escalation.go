package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/civicgrid/dispatch/internal/domain"
)

// EscalationRepository implements domain.EscalationStore for PostgreSQL.
// The ledger is append-only: there is no update or delete path.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository creates a new EscalationRepository.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// Record appends one entry to the ledger.
func (r *EscalationRepository) Record(ctx context.Context, e domain.EscalationEntry) (domain.EscalationEntry, error) {
	if err := insertEscalationDB(ctx, r.db, e); err != nil {
		return domain.EscalationEntry{}, err
	}
	return e, nil
}

// ListByIssue returns the ledger entries for one issue, oldest first.
func (r *EscalationRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.EscalationEntry, error) {
	var entries []domain.EscalationEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT id, issue_id, reason, severity, triggered_by, created_at
		 FROM escalations
		 WHERE issue_id = $1
		 ORDER BY created_at`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list escalations for issue %s: %w", issueID, err)
	}
	return entries, nil
}

// insertEscalation appends an entry inside an existing transaction. Used by
// issue creation so the auto-escalation commits atomically with the issue.
func insertEscalation(ctx context.Context, tx *sqlx.Tx, e domain.EscalationEntry) error {
	return insertEscalationDB(ctx, tx, e)
}

func insertEscalationDB(ctx context.Context, ext sqlx.ExtContext, e domain.EscalationEntry) error {
	_, err := ext.ExecContext(ctx,
		`INSERT INTO escalations (id, issue_id, reason, severity, triggered_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.IssueID, e.Reason, e.Severity, e.TriggeredBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}
