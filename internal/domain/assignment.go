package domain

import "time"

// Assignment binds one issue to one worker at a point in time. At most one
// assignment per issue is active; creating a new active assignment
// deactivates the previous one.
type Assignment struct {
	ID         string     `json:"id" db:"id"`
	IssueID    string     `json:"issue_id" db:"issue_id"`
	WorkerID   string     `json:"worker_id" db:"worker_id"`
	Priority   Priority   `json:"priority" db:"priority"`
	AssignedAt time.Time  `json:"assigned_at" db:"assigned_at"`
	Deadline   time.Time  `json:"deadline" db:"deadline"`
	Rating     *int       `json:"rating,omitempty" db:"rating"`
	Active     bool       `json:"active" db:"active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// WorkerLoad pairs a worker with their current number of active assignments,
// used by the dispatch selection policy.
type WorkerLoad struct {
	Worker      Worker `db:"worker"`
	ActiveCount int    `db:"active_count"`
}
