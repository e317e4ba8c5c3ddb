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

// WorkerRepository implements domain.WorkerStore for PostgreSQL.
type WorkerRepository struct {
	db *sqlx.DB
}

// NewWorkerRepository creates a new WorkerRepository.
func NewWorkerRepository(db *sqlx.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// GetByID retrieves a worker by id.
func (r *WorkerRepository) GetByID(ctx context.Context, id string) (domain.Worker, error) {
	var worker domain.Worker
	err := r.db.GetContext(ctx, &worker,
		`SELECT id, name, department, active, last_assigned_at, created_at, updated_at
		 FROM workers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Worker{}, domain.ErrNotFound
		}
		return domain.Worker{}, fmt.Errorf("find worker %s: %w", id, err)
	}
	return worker, nil
}

// ListEligible returns active workers passing the cooldown rule together
// with their active assignment counts. The cutoff comparison mirrors the
// write-time re-check in the assignment transaction.
func (r *WorkerRepository) ListEligible(ctx context.Context, now time.Time, cooldown time.Duration) ([]domain.WorkerLoad, error) {
	cutoff := now.Add(-cooldown)

	rows, err := r.db.QueryxContext(ctx,
		`SELECT w.id, w.name, w.department, w.active, w.last_assigned_at,
		        w.created_at, w.updated_at,
		        COUNT(a.id) FILTER (WHERE a.active) AS active_count
		 FROM workers w
		 LEFT JOIN assignments a ON a.worker_id = w.id
		 WHERE w.active AND (w.last_assigned_at IS NULL OR w.last_assigned_at <= $1)
		 GROUP BY w.id
		 ORDER BY w.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list eligible workers: %w", err)
	}
	defer rows.Close()

	var loads []domain.WorkerLoad
	for rows.Next() {
		var load domain.WorkerLoad
		if err := rows.Scan(
			&load.Worker.ID, &load.Worker.Name, &load.Worker.Department,
			&load.Worker.Active, &load.Worker.LastAssignedAt,
			&load.Worker.CreatedAt, &load.Worker.UpdatedAt,
			&load.ActiveCount,
		); err != nil {
			return nil, fmt.Errorf("scan eligible worker: %w", err)
		}
		loads = append(loads, load)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible workers: %w", err)
	}
	return loads, nil
}

// GetMetrics returns the performance counters for a worker. Workers with no
// recorded activity get a zero row.
func (r *WorkerRepository) GetMetrics(ctx context.Context, workerID string) (domain.WorkerMetrics, error) {
	var metrics domain.WorkerMetrics
	err := r.db.GetContext(ctx, &metrics,
		`SELECT worker_id, total_assigned, total_resolved, rework_count, last_updated
		 FROM worker_metrics WHERE worker_id = $1`, workerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkerMetrics{WorkerID: workerID}, nil
		}
		return domain.WorkerMetrics{}, fmt.Errorf("find metrics for worker %s: %w", workerID, err)
	}
	return metrics, nil
}
