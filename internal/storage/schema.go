package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema holds the idempotent DDL for the engine's tables. The version
// column on issues backs the optimistic-concurrency protocol; the partial
// unique index enforces at most one active assignment per issue at the
// database level.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS issues (
		id             TEXT PRIMARY KEY,
		category       TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		risk_score     INTEGER NOT NULL CHECK (risk_score BETWEEN 0 AND 100),
		priority       TEXT NOT NULL,
		status         TEXT NOT NULL,
		auto_escalated BOOLEAN NOT NULL DEFAULT FALSE,
		manual_review  BOOLEAN NOT NULL DEFAULT FALSE,
		sla_deadline   TIMESTAMPTZ,
		resolved_at    TIMESTAMPTZ,
		version        BIGINT NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_status_deadline
		ON issues (status) WHERE sla_deadline IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS workers (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		department       TEXT NOT NULL DEFAULT '',
		active           BOOLEAN NOT NULL DEFAULT TRUE,
		last_assigned_at TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id          TEXT PRIMARY KEY,
		issue_id    TEXT NOT NULL REFERENCES issues (id),
		worker_id   TEXT NOT NULL REFERENCES workers (id),
		priority    TEXT NOT NULL,
		assigned_at TIMESTAMPTZ NOT NULL,
		deadline    TIMESTAMPTZ NOT NULL,
		rating      INTEGER CHECK (rating BETWEEN 1 AND 5),
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_active
		ON assignments (issue_id) WHERE active`,
	`CREATE TABLE IF NOT EXISTS verification_records (
		id          TEXT PRIMARY KEY,
		issue_id    TEXT NOT NULL REFERENCES issues (id),
		reviewer_id TEXT NOT NULL,
		action      TEXT NOT NULL,
		comment     TEXT NOT NULL DEFAULT '',
		rating      INTEGER CHECK (rating BETWEEN 1 AND 5),
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS worker_metrics (
		worker_id      TEXT PRIMARY KEY REFERENCES workers (id),
		total_assigned BIGINT NOT NULL DEFAULT 0,
		total_resolved BIGINT NOT NULL DEFAULT 0,
		rework_count   BIGINT NOT NULL DEFAULT 0,
		last_updated   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escalations (
		id           TEXT PRIMARY KEY,
		issue_id     TEXT NOT NULL REFERENCES issues (id),
		reason       TEXT NOT NULL,
		severity     TEXT NOT NULL,
		triggered_by TEXT,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema applies the DDL statements in order.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
