package service

import (
	"context"
	"errors"
	"testing"

	"github.com/civicgrid/dispatch/internal/classifier"
	"github.com/civicgrid/dispatch/internal/domain"
)

func TestCreateCriticalIssueEscalates(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, err := e.issues.Create(ctx, CreateIssueInput{
		Category:    "Fire",
		Description: "transformer sparking",
		RiskScore:   intPtr(85),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if issue.Priority != domain.PriorityCritical {
		t.Errorf("priority = %s, want critical", issue.Priority)
	}
	if !issue.AutoEscalated {
		t.Error("expected auto_escalated = true")
	}
	if issue.Status != domain.IssueStatusReported {
		t.Errorf("status = %s, want reported", issue.Status)
	}

	entries, err := e.issues.Escalations(ctx, issue.ID)
	if err != nil {
		t.Fatalf("Escalations: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d escalation entries, want 1", len(entries))
	}
	if entries[0].Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want critical", entries[0].Severity)
	}
	if entries[0].Reason != "risk score 85" {
		t.Errorf("reason = %q, want %q", entries[0].Reason, "risk score 85")
	}
	if entries[0].TriggeredBy != nil {
		t.Error("auto-escalation must not carry a triggering user")
	}

	if got := e.notifier.count(domain.EventNewIssue); got != 1 {
		t.Errorf("new_issue events = %d, want 1", got)
	}
}

func TestCreateHighPriorityDoesNotEscalate(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, err := e.issues.Create(ctx, CreateIssueInput{
		Description: "leaking hydrant",
		RiskScore:   intPtr(79),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if issue.Priority != domain.PriorityHigh {
		t.Errorf("priority = %s, want high", issue.Priority)
	}
	if issue.AutoEscalated {
		t.Error("expected auto_escalated = false at risk score 79")
	}

	entries, _ := e.issues.Escalations(ctx, issue.ID)
	if len(entries) != 0 {
		t.Errorf("got %d escalation entries, want 0", len(entries))
	}
}

func TestCreateUsesClassifierResult(t *testing.T) {
	e := newEngine(stubClassifier{result: classifier.Classification{
		Category:   "Electrical",
		RiskScore:  64,
		Confidence: 91,
	}})

	issue, err := e.issues.Create(context.Background(), CreateIssueInput{
		Description: "exposed wiring",
		Image:       []byte("jpeg-bytes"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if issue.Category != "Electrical" {
		t.Errorf("category = %q, want Electrical", issue.Category)
	}
	if issue.RiskScore != 64 {
		t.Errorf("risk score = %d, want 64", issue.RiskScore)
	}
	if issue.Priority != domain.PriorityHigh {
		t.Errorf("priority = %s, want high", issue.Priority)
	}
	if issue.ManualReview {
		t.Error("manual_review must be false when classification succeeds")
	}
}

func TestCreateFallsBackWhenClassifierUnavailable(t *testing.T) {
	e := newEngine(stubClassifier{err: domain.ErrClassifierUnavailable})

	issue, err := e.issues.Create(context.Background(), CreateIssueInput{
		Description: "something burning",
		Image:       []byte("jpeg-bytes"),
	})
	if err != nil {
		t.Fatalf("ingestion must not block on a dead classifier: %v", err)
	}

	if issue.RiskScore != 0 {
		t.Errorf("fallback risk score = %d, want 0", issue.RiskScore)
	}
	if issue.Category != "Other" {
		t.Errorf("fallback category = %q, want Other", issue.Category)
	}
	if !issue.ManualReview {
		t.Error("expected manual_review = true on fallback")
	}
	if issue.Priority != domain.PriorityLow {
		t.Errorf("priority = %s, want low", issue.Priority)
	}
}

func TestCreateRequiresImageOrScore(t *testing.T) {
	e := newEngine(nil)

	_, err := e.issues.Create(context.Background(), CreateIssueInput{Description: "?"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestTransitionIsIdempotentOnSameTarget(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})

	same, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusReported)
	if err != nil {
		t.Fatalf("same-target transition must be a no-op, got %v", err)
	}
	if same.Version != issue.Version {
		t.Errorf("no-op must not bump the version: %d -> %d", issue.Version, same.Version)
	}

	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusInProgress); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("reported -> in_progress: got %v, want ErrIllegalTransition", err)
	}
	// repetition must not change the answer
	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusInProgress); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Errorf("repeated illegal transition: got %v, want ErrIllegalTransition", err)
	}
}

func TestTransitionRefusesClosureOutsideVerification(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue := awaitingIssue(t, e, "w1")

	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusClosed); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("awaiting_verification -> closed via Transition: got %v, want ErrIllegalTransition", err)
	}

	// the refusal leaves the verification protocol intact: status, the
	// active assignment, and the worker's counters are all untouched
	after := mustGet(t, e, issue.ID)
	if after.Status != domain.IssueStatusAwaiting || after.ResolvedAt != nil {
		t.Errorf("issue mutated by refused closure: %+v", after)
	}
	if _, err := e.store.Assignments().GetActiveByIssue(ctx, issue.ID); err != nil {
		t.Errorf("active assignment lost: %v", err)
	}
	metrics, _ := e.dispatch.Metrics(ctx, "w1")
	if metrics.TotalResolved != 0 {
		t.Errorf("total_resolved = %d, want 0 before any review", metrics.TotalResolved)
	}

	// an approved review is the only path to closed
	closed, err := e.verifications.Review(ctx, issue.ID, "rev-1", domain.ReviewApproved, "", nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if closed.Status != domain.IssueStatusClosed || closed.ResolvedAt == nil {
		t.Fatalf("unexpected closed issue: %+v", closed)
	}
	if _, err := e.store.Assignments().GetActiveByIssue(ctx, issue.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("assignment still active after approval: %v", err)
	}
	records, _ := e.verifications.History(ctx, issue.ID)
	if len(records) != 1 {
		t.Errorf("verification records = %d, want 1", len(records))
	}
}

func TestTransitionOnClosedIssueFailsLocked(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue := closeIssue(t, e)

	for _, target := range []domain.IssueStatus{
		domain.IssueStatusReported, domain.IssueStatusAssigned,
		domain.IssueStatusInProgress, domain.IssueStatusAwaiting,
		domain.IssueStatusReopened,
	} {
		if _, err := e.issues.Transition(ctx, issue.ID, target); !errors.Is(err, domain.ErrIssueLocked) {
			t.Errorf("closed -> %s: got %v, want ErrIssueLocked", target, err)
		}
	}
}

func TestManualEscalation(t *testing.T) {
	e := newEngine(nil)
	ctx := context.Background()

	issue, _ := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})

	entry, err := e.issues.Escalate(ctx, issue.ID, "repeat complaints", domain.SeverityWarning, "supervisor-7")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if entry.TriggeredBy == nil || *entry.TriggeredBy != "supervisor-7" {
		t.Errorf("triggered_by = %v, want supervisor-7", entry.TriggeredBy)
	}

	if _, err := e.issues.Escalate(ctx, issue.ID, "", domain.SeverityWarning, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty reason: got %v, want ErrInvalidInput", err)
	}
	if _, err := e.issues.Escalate(ctx, "missing", "r", domain.SeverityWarning, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown issue: got %v, want ErrNotFound", err)
	}
}

// closeIssue drives a fresh issue through the full happy path to Closed.
func closeIssue(t *testing.T, e *engine) domain.Issue {
	t.Helper()
	ctx := context.Background()

	issue, err := e.issues.Create(ctx, CreateIssueInput{Description: "x", RiskScore: intPtr(10)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.addWorker("closer", "roads")
	if _, err := e.dispatch.Assign(ctx, issue.ID, "closer"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusInProgress); err != nil {
		t.Fatalf("to in_progress: %v", err)
	}
	if _, err := e.issues.Transition(ctx, issue.ID, domain.IssueStatusAwaiting); err != nil {
		t.Fatalf("to awaiting_verification: %v", err)
	}
	closed, err := e.verifications.Review(ctx, issue.ID, "reviewer-1", domain.ReviewApproved, "", nil)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	return closed
}
