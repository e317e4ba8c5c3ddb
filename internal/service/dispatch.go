package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicgrid/dispatch/internal/clock"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/notify"
)

// ErrNoEligibleWorker is returned when auto-selection finds no worker
// passing the cooldown rule.
var ErrNoEligibleWorker = errors.New("no eligible worker")

// SLAPolicy maps a priority tier to its service-level window.
type SLAPolicy func(priority domain.Priority) time.Duration

// DispatchService selects an eligible worker for an issue under the rolling
// cooldown constraint and sets the SLA deadline at assignment time.
type DispatchService struct {
	issues      domain.IssueStore
	workers     domain.WorkerStore
	assignments domain.AssignmentStore
	notifier    notify.Notifier
	clock       clock.Clock

	cooldown time.Duration
	slaFor   SLAPolicy
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(
	issues domain.IssueStore,
	workers domain.WorkerStore,
	assignments domain.AssignmentStore,
	notifier notify.Notifier,
	clk clock.Clock,
	cooldown time.Duration,
	slaFor SLAPolicy,
) *DispatchService {
	return &DispatchService{
		issues:      issues,
		workers:     workers,
		assignments: assignments,
		notifier:    notifier,
		clock:       clk,
		cooldown:    cooldown,
		slaFor:      slaFor,
	}
}

// Assign dispatches an issue to a worker. An empty workerID asks for the
// best available worker per the selection policy. The cooldown rule is
// checked here against the current snapshot and re-validated inside the
// assignment transaction, so of two concurrent dispatches to the same
// worker exactly one wins; the loser fails with ErrWorkerOnCooldown.
// Reassignment after a reopen deactivates the prior assignment and keeps
// both the issue's priority and its original SLA deadline.
func (s *DispatchService) Assign(ctx context.Context, issueID, workerID string) (domain.Assignment, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return domain.Assignment{}, err
	}

	if issue.Terminal() {
		return domain.Assignment{}, domain.NewTransitionError(issue.ID, issue.Status, domain.IssueStatusAssigned, domain.ErrIssueLocked)
	}
	if issue.Status != domain.IssueStatusReported && issue.Status != domain.IssueStatusReopened {
		return domain.Assignment{}, domain.NewTransitionError(issue.ID, issue.Status, domain.IssueStatusAssigned, domain.ErrIllegalTransition)
	}

	now := s.clock.Now()

	worker, err := s.pickWorker(ctx, issue, workerID, now)
	if err != nil {
		return domain.Assignment{}, err
	}

	setDeadline := issue.SLADeadline == nil
	deadline := now.Add(s.slaFor(issue.Priority))
	if !setDeadline {
		deadline = *issue.SLADeadline
	}

	assignment := domain.Assignment{
		ID:         uuid.NewString(),
		IssueID:    issue.ID,
		WorkerID:   worker.ID,
		Priority:   issue.Priority,
		AssignedAt: now,
		Deadline:   deadline,
		Active:     true,
		CreatedAt:  now,
	}

	created, updated, err := s.assignments.Assign(ctx, assignment, issue.Version, s.cooldown, setDeadline)
	if err != nil {
		return domain.Assignment{}, err
	}

	s.notifier.Notify(ctx, domain.Event{
		Type:       domain.EventIssueUpdated,
		IssueID:    updated.ID,
		Status:     updated.Status,
		OccurredAt: now,
	})

	return created, nil
}

func (s *DispatchService) pickWorker(ctx context.Context, issue domain.Issue, workerID string, now time.Time) (domain.Worker, error) {
	if workerID != "" {
		worker, err := s.workers.GetByID(ctx, workerID)
		if err != nil {
			return domain.Worker{}, err
		}
		if !worker.Active {
			return domain.Worker{}, fmt.Errorf("worker %s: %w", worker.ID, domain.ErrWorkerUnavailable)
		}
		if !worker.Eligible(now, s.cooldown) {
			// an active but ineligible worker always has a last assignment
			return domain.Worker{}, &domain.CooldownError{
				WorkerID:    worker.ID,
				AvailableAt: worker.LastAssignedAt.Add(s.cooldown),
			}
		}
		return worker, nil
	}

	candidates, err := s.workers.ListEligible(ctx, now, s.cooldown)
	if err != nil {
		return domain.Worker{}, err
	}
	if len(candidates) == 0 {
		return domain.Worker{}, ErrNoEligibleWorker
	}

	return selectWorker(candidates, issue.Category), nil
}

// selectWorker applies the dispatch selection policy: prefer a department
// matching the issue category, then fewest active assignments, then
// longest idle (never-assigned workers first).
func selectWorker(candidates []domain.WorkerLoad, category string) domain.Worker {
	sorted := make([]domain.WorkerLoad, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		aMatch := strings.EqualFold(a.Worker.Department, category)
		bMatch := strings.EqualFold(b.Worker.Department, category)
		if aMatch != bMatch {
			return aMatch
		}

		if a.ActiveCount != b.ActiveCount {
			return a.ActiveCount < b.ActiveCount
		}

		switch {
		case a.Worker.LastAssignedAt == nil && b.Worker.LastAssignedAt == nil:
			return a.Worker.ID < b.Worker.ID
		case a.Worker.LastAssignedAt == nil:
			return true
		case b.Worker.LastAssignedAt == nil:
			return false
		default:
			return a.Worker.LastAssignedAt.Before(*b.Worker.LastAssignedAt)
		}
	})

	return sorted[0].Worker
}

// Metrics returns the derived performance counters for one worker.
func (s *DispatchService) Metrics(ctx context.Context, workerID string) (domain.WorkerMetrics, error) {
	if _, err := s.workers.GetByID(ctx, workerID); err != nil {
		return domain.WorkerMetrics{}, err
	}
	return s.workers.GetMetrics(ctx, workerID)
}
