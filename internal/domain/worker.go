package domain

import "time"

// Availability describes whether a worker can take a new assignment.
// OnCooldown is derived from LastAssignedAt and never stored.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityOnCooldown  Availability = "on_cooldown"
	AvailabilityUnavailable Availability = "unavailable"
)

// Worker represents a dispatchable field agent.
type Worker struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Department     string     `json:"department" db:"department"`
	Active         bool       `json:"active" db:"active"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty" db:"last_assigned_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the worker may receive a new assignment at the
// given instant under the rolling cooldown rule.
func (w Worker) Eligible(now time.Time, cooldown time.Duration) bool {
	if !w.Active {
		return false
	}
	if w.LastAssignedAt == nil {
		return true
	}
	return now.Sub(*w.LastAssignedAt) >= cooldown
}

// AvailabilityAt derives the worker's availability at the given instant.
func (w Worker) AvailabilityAt(now time.Time, cooldown time.Duration) Availability {
	if !w.Active {
		return AvailabilityUnavailable
	}
	if w.Eligible(now, cooldown) {
		return AvailabilityAvailable
	}
	return AvailabilityOnCooldown
}

// WorkerMetrics holds derived performance counters, one row per worker.
type WorkerMetrics struct {
	WorkerID      string    `json:"worker_id" db:"worker_id"`
	TotalAssigned int64     `json:"total_assigned" db:"total_assigned"`
	TotalResolved int64     `json:"total_resolved" db:"total_resolved"`
	ReworkCount   int64     `json:"rework_count" db:"rework_count"`
	LastUpdated   time.Time `json:"last_updated" db:"last_updated"`
}
