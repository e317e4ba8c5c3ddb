package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/civicgrid/dispatch/internal/clock"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/notify"
)

// activeStatuses are the states in which an issue still counts against its
// SLA deadline.
var activeStatuses = []domain.IssueStatus{
	domain.IssueStatusAssigned,
	domain.IssueStatusInProgress,
	domain.IssueStatusReopened,
}

// OverdueIssue reports one SLA breach. Overdue is a derived fact, not a
// lifecycle state.
type OverdueIssue struct {
	IssueID    string        `json:"issue_id"`
	OverdueFor time.Duration `json:"overdue_for"`
}

// SLAMonitor periodically sweeps active issues and emits one overdue event
// per deadline crossing. It is strictly read-only with respect to issue
// status.
type SLAMonitor struct {
	issues   domain.IssueStore
	notifier notify.Notifier
	clock    clock.Clock
	interval time.Duration

	mu       sync.Mutex
	notified map[string]time.Time // issue id -> deadline already notified
}

// NewSLAMonitor creates a new SLAMonitor.
func NewSLAMonitor(issues domain.IssueStore, notifier notify.Notifier, clk clock.Clock, interval time.Duration) *SLAMonitor {
	return &SLAMonitor{
		issues:   issues,
		notifier: notifier,
		clock:    clk,
		interval: interval,
		notified: make(map[string]time.Time),
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				slog.Error("sla sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass. It notifies each overdue issue once per deadline
// crossing, not once per sweep or per re-entry into the active set, and is
// cancellable between issues.
func (m *SLAMonitor) Sweep(ctx context.Context) error {
	issues, err := m.issues.ListActiveWithDeadline(ctx, activeStatuses)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	seen := make(map[string]struct{}, len(issues))

	for _, issue := range issues {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		seen[issue.ID] = struct{}{}

		if issue.SLADeadline == nil || !now.After(*issue.SLADeadline) {
			continue
		}

		if m.alreadyNotified(issue.ID, *issue.SLADeadline) {
			continue
		}

		m.notifier.Notify(ctx, domain.Event{
			Type:       domain.EventOverdueIssue,
			IssueID:    issue.ID,
			Status:     issue.Status,
			Overdue:    now.Sub(*issue.SLADeadline),
			OccurredAt: now,
		})
		m.markNotified(issue.ID, *issue.SLADeadline)
	}

	m.prune(ctx, seen)
	return nil
}

// ListOverdue recomputes the current set of overdue issues on each call.
func (m *SLAMonitor) ListOverdue(ctx context.Context) ([]OverdueIssue, error) {
	issues, err := m.issues.ListActiveWithDeadline(ctx, activeStatuses)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	overdue := make([]OverdueIssue, 0)
	for _, issue := range issues {
		if issue.SLADeadline == nil || !now.After(*issue.SLADeadline) {
			continue
		}
		overdue = append(overdue, OverdueIssue{
			IssueID:    issue.ID,
			OverdueFor: now.Sub(*issue.SLADeadline),
		})
	}
	return overdue, nil
}

func (m *SLAMonitor) alreadyNotified(issueID string, deadline time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.notified[issueID]
	return ok && at.Equal(deadline)
}

func (m *SLAMonitor) markNotified(issueID string, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[issueID] = deadline
}

// prune drops tracking only for issues that are closed or gone, so the map
// does not grow with resolved issues. An issue merely out of the active set
// (awaiting verification) keeps its entry: a rework cycle that re-enters
// the active set must not re-notify an unchanged deadline.
func (m *SLAMonitor) prune(ctx context.Context, active map[string]struct{}) {
	m.mu.Lock()
	candidates := make([]string, 0, len(m.notified))
	for id := range m.notified {
		if _, ok := active[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	m.mu.Unlock()

	for _, id := range candidates {
		issue, err := m.issues.GetByID(ctx, id)
		if err == nil && !issue.Terminal() {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			continue
		}
		m.mu.Lock()
		delete(m.notified, id)
		m.mu.Unlock()
	}
}
