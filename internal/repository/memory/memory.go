// Package memory provides an in-memory implementation of the engine's
// stores with the same conflict semantics as the PostgreSQL layer. It backs
// the service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/civicgrid/dispatch/internal/domain"
)

// Store holds all entities behind one mutex, so the composite operations
// (assign, review) are atomic exactly like their transactional
// counterparts. Per-entity views expose the domain store interfaces.
type Store struct {
	mu sync.Mutex

	issues        map[string]domain.Issue
	workers       map[string]domain.Worker
	assignments   map[string]domain.Assignment
	verifications map[string][]domain.VerificationRecord
	escalations   map[string][]domain.EscalationEntry
	metrics       map[string]domain.WorkerMetrics
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		issues:        make(map[string]domain.Issue),
		workers:       make(map[string]domain.Worker),
		assignments:   make(map[string]domain.Assignment),
		verifications: make(map[string][]domain.VerificationRecord),
		escalations:   make(map[string][]domain.EscalationEntry),
		metrics:       make(map[string]domain.WorkerMetrics),
	}
}

// Issues returns the domain.IssueStore view.
func (s *Store) Issues() *Issues { return &Issues{s: s} }

// Workers returns the domain.WorkerStore view.
func (s *Store) Workers() *Workers { return &Workers{s: s} }

// Assignments returns the domain.AssignmentStore view.
func (s *Store) Assignments() *Assignments { return &Assignments{s: s} }

// Verifications returns the domain.VerificationStore view.
func (s *Store) Verifications() *Verifications { return &Verifications{s: s} }

// Escalations returns the domain.EscalationStore view.
func (s *Store) Escalations() *Escalations { return &Escalations{s: s} }

// PutWorker inserts or replaces a worker profile.
func (s *Store) PutWorker(w domain.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
}

// Issues implements domain.IssueStore.
type Issues struct {
	s *Store
}

// Create persists the issue and its optional escalation entry atomically.
func (v *Issues) Create(_ context.Context, issue domain.Issue, escalation *domain.EscalationEntry) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.issues[issue.ID]; ok {
		return fmt.Errorf("issue %s already exists", issue.ID)
	}
	v.s.issues[issue.ID] = issue
	if escalation != nil {
		v.s.escalations[issue.ID] = append(v.s.escalations[issue.ID], *escalation)
	}
	return nil
}

// GetByID returns an issue by id.
func (v *Issues) GetByID(_ context.Context, id string) (domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.getIssue(id)
}

// UpdateStatus commits a transition with compare-and-swap on version.
func (v *Issues) UpdateStatus(_ context.Context, id string, version int64, status domain.IssueStatus, resolvedAt *time.Time, now time.Time) (domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.casUpdate(id, version, status, resolvedAt, nil, false, now)
}

// ListActiveWithDeadline returns issues in the given statuses carrying an
// SLA deadline, ordered by deadline.
func (v *Issues) ListActiveWithDeadline(_ context.Context, statuses []domain.IssueStatus) ([]domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	wanted := make(map[domain.IssueStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}

	var out []domain.Issue
	for _, issue := range v.s.issues {
		if _, ok := wanted[issue.Status]; !ok || issue.SLADeadline == nil {
			continue
		}
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SLADeadline.Before(*out[j].SLADeadline)
	})
	return out, nil
}

// Workers implements domain.WorkerStore.
type Workers struct {
	s *Store
}

// GetByID returns a worker by id.
func (v *Workers) GetByID(_ context.Context, id string) (domain.Worker, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	worker, ok := v.s.workers[id]
	if !ok {
		return domain.Worker{}, domain.ErrNotFound
	}
	return worker, nil
}

// ListEligible returns active workers passing the cooldown rule with their
// active assignment counts.
func (v *Workers) ListEligible(_ context.Context, now time.Time, cooldown time.Duration) ([]domain.WorkerLoad, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	counts := make(map[string]int)
	for _, a := range v.s.assignments {
		if a.Active {
			counts[a.WorkerID]++
		}
	}

	var loads []domain.WorkerLoad
	for _, w := range v.s.workers {
		if !w.Eligible(now, cooldown) {
			continue
		}
		loads = append(loads, domain.WorkerLoad{Worker: w, ActiveCount: counts[w.ID]})
	}
	sort.Slice(loads, func(i, j int) bool {
		return loads[i].Worker.ID < loads[j].Worker.ID
	})
	return loads, nil
}

// GetMetrics returns a worker's counters, zero-valued when untouched.
func (v *Workers) GetMetrics(_ context.Context, workerID string) (domain.WorkerMetrics, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	m, ok := v.s.metrics[workerID]
	if !ok {
		return domain.WorkerMetrics{WorkerID: workerID}, nil
	}
	return m, nil
}

// Assignments implements domain.AssignmentStore.
type Assignments struct {
	s *Store
}

// Assign mirrors the PostgreSQL dispatch transaction: every precondition is
// checked before any mutation, so a failure leaves the store untouched.
func (v *Assignments) Assign(_ context.Context, a domain.Assignment, issueVersion int64, cooldown time.Duration, setDeadline bool) (domain.Assignment, domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	issue, err := v.s.getIssue(a.IssueID)
	if err != nil {
		return domain.Assignment{}, domain.Issue{}, err
	}
	if issue.Version != issueVersion {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("issue %s: %w", a.IssueID, domain.ErrAssignmentConflict)
	}

	worker, ok := v.s.workers[a.WorkerID]
	if !ok {
		return domain.Assignment{}, domain.Issue{}, domain.ErrNotFound
	}
	if !worker.Active {
		return domain.Assignment{}, domain.Issue{}, fmt.Errorf("worker %s: %w", a.WorkerID, domain.ErrWorkerUnavailable)
	}
	if !worker.Eligible(a.AssignedAt, cooldown) {
		return domain.Assignment{}, domain.Issue{}, &domain.CooldownError{
			WorkerID:    a.WorkerID,
			AvailableAt: worker.LastAssignedAt.Add(cooldown),
		}
	}

	for id, prev := range v.s.assignments {
		if prev.IssueID == a.IssueID && prev.Active {
			prev.Active = false
			v.s.assignments[id] = prev
		}
	}
	v.s.assignments[a.ID] = a

	assignedAt := a.AssignedAt
	worker.LastAssignedAt = &assignedAt
	worker.UpdatedAt = a.AssignedAt
	v.s.workers[a.WorkerID] = worker

	v.s.bumpMetrics(a.WorkerID, a.AssignedAt, 1, 0, 0)

	deadline := a.Deadline
	updated, err := v.s.casUpdate(a.IssueID, issueVersion, domain.IssueStatusAssigned, nil, &deadline, setDeadline, a.AssignedAt)
	if err != nil {
		return domain.Assignment{}, domain.Issue{}, err
	}
	return a, updated, nil
}

// GetActiveByIssue returns the single active assignment for an issue.
func (v *Assignments) GetActiveByIssue(_ context.Context, issueID string) (domain.Assignment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, a := range v.s.assignments {
		if a.IssueID == issueID && a.Active {
			return a, nil
		}
	}
	return domain.Assignment{}, domain.ErrNotFound
}

// Verifications implements domain.VerificationStore.
type Verifications struct {
	s *Store
}

// Approve closes the issue, records the review, credits the worker, and
// deactivates the assignment atomically.
func (v *Verifications) Approve(_ context.Context, rec domain.VerificationRecord, issueVersion int64, workerID string) (domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	resolvedAt := rec.CreatedAt
	updated, err := v.s.casUpdate(rec.IssueID, issueVersion, domain.IssueStatusClosed, &resolvedAt, nil, false, rec.CreatedAt)
	if err != nil {
		return domain.Issue{}, err
	}

	v.s.verifications[rec.IssueID] = append(v.s.verifications[rec.IssueID], rec)

	for id, a := range v.s.assignments {
		if a.IssueID == rec.IssueID && a.Active {
			a.Active = false
			a.Rating = rec.Rating
			v.s.assignments[id] = a
		}
	}

	v.s.bumpMetrics(workerID, rec.CreatedAt, 0, 1, 0)
	return updated, nil
}

// Reject reopens the issue and counts the rework atomically. The SLA
// deadline is untouched.
func (v *Verifications) Reject(_ context.Context, rec domain.VerificationRecord, issueVersion int64, workerID string) (domain.Issue, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	updated, err := v.s.casUpdate(rec.IssueID, issueVersion, domain.IssueStatusReopened, nil, nil, false, rec.CreatedAt)
	if err != nil {
		return domain.Issue{}, err
	}

	v.s.verifications[rec.IssueID] = append(v.s.verifications[rec.IssueID], rec)
	v.s.bumpMetrics(workerID, rec.CreatedAt, 0, 0, 1)
	return updated, nil
}

// ListByIssue returns an issue's verification records, oldest first.
func (v *Verifications) ListByIssue(_ context.Context, issueID string) ([]domain.VerificationRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	records := make([]domain.VerificationRecord, len(v.s.verifications[issueID]))
	copy(records, v.s.verifications[issueID])
	return records, nil
}

// Escalations implements domain.EscalationStore.
type Escalations struct {
	s *Store
}

// Record appends one ledger entry.
func (v *Escalations) Record(_ context.Context, e domain.EscalationEntry) (domain.EscalationEntry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.escalations[e.IssueID] = append(v.s.escalations[e.IssueID], e)
	return e, nil
}

// ListByIssue returns the ledger entries for one issue, oldest first.
func (v *Escalations) ListByIssue(_ context.Context, issueID string) ([]domain.EscalationEntry, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	entries := make([]domain.EscalationEntry, len(v.s.escalations[issueID]))
	copy(entries, v.s.escalations[issueID])
	return entries, nil
}

func (s *Store) getIssue(id string) (domain.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return domain.Issue{}, domain.ErrNotFound
	}
	return issue, nil
}

// casUpdate applies a status change when the version matches; callers hold
// the store mutex.
func (s *Store) casUpdate(id string, version int64, status domain.IssueStatus, resolvedAt, deadline *time.Time, setDeadline bool, now time.Time) (domain.Issue, error) {
	issue, err := s.getIssue(id)
	if err != nil {
		return domain.Issue{}, err
	}
	if issue.Version != version {
		return domain.Issue{}, fmt.Errorf("issue %s: %w", id, domain.ErrAssignmentConflict)
	}

	issue.Status = status
	if resolvedAt != nil {
		issue.ResolvedAt = resolvedAt
	}
	if setDeadline && issue.SLADeadline == nil {
		issue.SLADeadline = deadline
	}
	issue.Version++
	issue.UpdatedAt = now
	s.issues[id] = issue
	return issue, nil
}

func (s *Store) bumpMetrics(workerID string, now time.Time, assigned, resolved, rework int64) {
	m, ok := s.metrics[workerID]
	if !ok {
		m = domain.WorkerMetrics{WorkerID: workerID}
	}
	m.TotalAssigned += assigned
	m.TotalResolved += resolved
	m.ReworkCount += rework
	m.LastUpdated = now
	s.metrics[workerID] = m
}
