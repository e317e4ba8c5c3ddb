package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civicgrid/dispatch/internal/domain"
)

func TestAssignSetsDeadlineAndCooldown(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})
	e.addWorker("w1", "roads")

	assignment, err := e.dispatch.Assign(ctx, issue.ID, "w1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if assignment.WorkerID != "w1" || !assignment.Active {
		t.Errorf("unexpected assignment: %+v", assignment)
	}
	if assignment.Priority != domain.PriorityLow {
		t.Errorf("priority copy = %s, want low", assignment.Priority)
	}

	wantDeadline := e.clock.Now().Add(testSLA)
	if !assignment.Deadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", assignment.Deadline, wantDeadline)
	}

	updated, _ := e.issues.Get(ctx, issue.ID)
	if updated.Status != domain.IssueStatusAssigned {
		t.Errorf("status = %s, want assigned", updated.Status)
	}
	if updated.SLADeadline == nil || !updated.SLADeadline.Equal(wantDeadline) {
		t.Errorf("issue deadline = %v, want %v", updated.SLADeadline, wantDeadline)
	}

	worker, _ := e.store.Workers().GetByID(ctx, "w1")
	if worker.LastAssignedAt == nil || !worker.LastAssignedAt.Equal(e.clock.Now()) {
		t.Errorf("last_assigned_at = %v, want %v", worker.LastAssignedAt, e.clock.Now())
	}

	metrics, _ := e.dispatch.Metrics(ctx, "w1")
	if metrics.TotalAssigned != 1 {
		t.Errorf("total_assigned = %d, want 1", metrics.TotalAssigned)
	}
}

func TestAssignRejectsWorkerOnCooldown(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	first, _ := e.issues.Create(ctx, CreateIssueInput{Description: "I", RiskScore: intPtr(10)})
	second, _ := e.issues.Create(ctx, CreateIssueInput{Description: "J", RiskScore: intPtr(10)})
	e.addWorker("w1", "roads")

	if _, err := e.dispatch.Assign(ctx, first.ID, "w1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}

	_, err := e.dispatch.Assign(ctx, second.ID, "w1")
	if !errors.Is(err, domain.ErrWorkerOnCooldown) {
		t.Fatalf("got %v, want ErrWorkerOnCooldown", err)
	}

	var ce *domain.CooldownError
	if !errors.As(err, &ce) {
		t.Fatal("expected a *CooldownError with availability context")
	}
	wantAvailable := e.clock.Now().Add(testCooldown)
	if !ce.AvailableAt.Equal(wantAvailable) {
		t.Errorf("available_at = %v, want %v", ce.AvailableAt, wantAvailable)
	}

	// after the window elapses the worker is eligible again
	e.clock.Advance(testCooldown)
	if _, err := e.dispatch.Assign(ctx, second.ID, "w1"); err != nil {
		t.Fatalf("assign after cooldown: %v", err)
	}
}

func TestAssignPreconditions(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})
	e.addWorker("w1", "roads")
	e.addWorker("w2", "roads")

	if _, err := e.dispatch.Assign(ctx, issue.ID, "w1"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// already assigned
	if _, err := e.dispatch.Assign(ctx, issue.ID, "w2"); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("assign on assigned issue: got %v, want ErrIllegalTransition", err)
	}

	closed := closeIssue(t, e)
	if _, err := e.dispatch.Assign(ctx, closed.ID, "w2"); !errors.Is(err, domain.ErrIssueLocked) {
		t.Errorf("assign on closed issue: got %v, want ErrIssueLocked", err)
	}

	fresh, _ := e.issues.Create(ctx, CreateIssueInput{Description: "y", RiskScore: intPtr(10)})
	if _, err := e.dispatch.Assign(ctx, fresh.ID, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("assign to unknown worker: got %v, want ErrNotFound", err)
	}
}

func TestAssignToInactiveWorkerIsNotCooldown(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})
	e.store.PutWorker(domain.Worker{ID: "retired", Name: "retired", Department: "roads", Active: false})

	_, err := e.dispatch.Assign(ctx, issue.ID, "retired")
	if !errors.Is(err, domain.ErrWorkerUnavailable) {
		t.Fatalf("assign to inactive worker: got %v, want ErrWorkerUnavailable", err)
	}
	if errors.Is(err, domain.ErrWorkerOnCooldown) {
		t.Error("an inactive worker must not be reported as on cooldown")
	}
}

func TestConcurrentAssignsToSameWorkerOnlyOneWins(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	first, _ := e.issues.Create(ctx, CreateIssueInput{Description: "I", RiskScore: intPtr(10)})
	second, _ := e.issues.Create(ctx, CreateIssueInput{Description: "J", RiskScore: intPtr(10)})
	e.addWorker("w1", "roads")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, issueID string) {
			defer wg.Done()
			_, errs[i] = e.dispatch.Assign(ctx, issueID, "w1")
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			if !errors.Is(err, domain.ErrWorkerOnCooldown) && !errors.Is(err, domain.ErrAssignmentConflict) {
				t.Errorf("loser error = %v, want cooldown or conflict", err)
			}
		}
	}
	if failures != 1 {
		t.Fatalf("%d of 2 concurrent assigns failed, want exactly 1", failures)
	}
}

func TestSelectWorkerPolicy(t *testing.T) {
	never := domain.Worker{ID: "never", Department: "parks", Active: true}
	idleLong := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	idleShort := idleLong.Add(48 * time.Hour)

	withLast := func(id, dept string, last time.Time) domain.Worker {
		return domain.Worker{ID: id, Department: dept, Active: true, LastAssignedAt: &last}
	}

	tests := []struct {
		name       string
		candidates []domain.WorkerLoad
		category   string
		want       string
	}{
		{
			name: "department match wins over load",
			candidates: []domain.WorkerLoad{
				{Worker: never, ActiveCount: 0},
				{Worker: withLast("match", "Roads", idleShort), ActiveCount: 3},
			},
			category: "roads",
			want:     "match",
		},
		{
			name: "fewest active assignments breaks department tie",
			candidates: []domain.WorkerLoad{
				{Worker: withLast("busy", "roads", idleLong), ActiveCount: 2},
				{Worker: withLast("free", "roads", idleShort), ActiveCount: 0},
			},
			category: "roads",
			want:     "free",
		},
		{
			name: "longest idle breaks load tie, never-assigned first",
			candidates: []domain.WorkerLoad{
				{Worker: withLast("recent", "roads", idleShort), ActiveCount: 1},
				{Worker: withLast("stale", "roads", idleLong), ActiveCount: 1},
				{Worker: domain.Worker{ID: "fresh", Department: "roads", Active: true}, ActiveCount: 1},
			},
			category: "roads",
			want:     "fresh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectWorker(tt.candidates, tt.category)
			if got.ID != tt.want {
				t.Errorf("selectWorker picked %s, want %s", got.ID, tt.want)
			}
		})
	}
}

func TestAutoSelectionAssignsBestWorker(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Category: "Roads", Description: "pothole", RiskScore: intPtr(40)})
	e.addWorker("parks-1", "parks")
	e.addWorker("roads-1", "roads")

	assignment, err := e.dispatch.Assign(ctx, issue.ID, "")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if assignment.WorkerID != "roads-1" {
		t.Errorf("selected %s, want roads-1 (department match)", assignment.WorkerID)
	}
}

func TestAutoSelectionWithNoEligibleWorker(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})

	if _, err := e.dispatch.Assign(ctx, issue.ID, ""); !errors.Is(err, ErrNoEligibleWorker) {
		t.Fatalf("got %v, want ErrNoEligibleWorker", err)
	}
}

func TestReassignmentAfterReopenKeepsDeadlineAndPriority(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(70)})
	e.addWorker("w1", "roads")
	e.addWorker("w2", "roads")

	if _, err := e.dispatch.Assign(ctx, issue.ID, "w1"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	originalDeadline := mustGet(t, e, issue.ID).SLADeadline

	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusInProgress); err != nil {
		t.Fatal(err)
	}
	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusAwaiting); err != nil {
		t.Fatal(err)
	}
	if _, err := e.verifications.Review(ctx, issue.ID, "rev-1", domain.ReviewRejected, "not fixed", nil); err != nil {
		t.Fatal(err)
	}

	e.clock.Advance(time.Hour)
	reassigned, err := e.dispatch.Assign(ctx, issue.ID, "w2")
	if err != nil {
		t.Fatalf("reassign after reopen: %v", err)
	}

	if reassigned.Priority != domain.PriorityHigh {
		t.Errorf("priority recomputed to %s, want high from creation", reassigned.Priority)
	}

	after := mustGet(t, e, issue.ID)
	if after.Status != domain.IssueStatusAssigned {
		t.Errorf("status = %s, want assigned", after.Status)
	}
	if after.SLADeadline == nil || !after.SLADeadline.Equal(*originalDeadline) {
		t.Errorf("deadline reset on reassignment: %v, want %v", after.SLADeadline, originalDeadline)
	}

	// prior assignment is deactivated, new one is the single active
	active, err := e.store.Assignments().GetActiveByIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetActiveByIssue: %v", err)
	}
	if active.WorkerID != "w2" {
		t.Errorf("active assignment worker = %s, want w2", active.WorkerID)
	}
}

func mustGet(t *testing.T, e *engine, id string) domain.Issue {
	t.Helper()
	issue, err := e.issues.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return issue
}
