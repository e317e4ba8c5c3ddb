package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civicgrid/dispatch/internal/classifier"
	"github.com/civicgrid/dispatch/internal/clock"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/notify"
)

// fallbackCategory is used when the classifier is unavailable and the
// report carries no usable assessment.
const fallbackCategory = "Other"

// CreateIssueInput is the intake payload for a new incident report. Either
// Image (classified externally) or RiskScore (manual assessment) must be
// present.
type CreateIssueInput struct {
	Category    string
	Description string
	Image       []byte
	RiskScore   *int
}

// IssueService owns issue intake and the canonical lifecycle state machine.
type IssueService struct {
	issues      domain.IssueStore
	escalations domain.EscalationStore
	classifier  classifier.Classifier
	notifier    notify.Notifier
	clock       clock.Clock

	classifierTimeout time.Duration
}

// NewIssueService creates a new IssueService.
func NewIssueService(
	issues domain.IssueStore,
	escalations domain.EscalationStore,
	cls classifier.Classifier,
	notifier notify.Notifier,
	clk clock.Clock,
	classifierTimeout time.Duration,
) *IssueService {
	return &IssueService{
		issues:            issues,
		escalations:       escalations,
		classifier:        cls,
		notifier:          notifier,
		clock:             clk,
		classifierTimeout: classifierTimeout,
	}
}

// Create ingests a classified incident report. The classifier call is
// bounded by a timeout; on failure the issue is created with a zero risk
// score and flagged for manual review so ingestion is never blocked by an
// unavailable classifier. Priority is resolved exactly once here; when the
// score crosses the critical threshold the escalation ledger entry commits
// in the same transaction as the issue.
func (s *IssueService) Create(ctx context.Context, in CreateIssueInput) (domain.Issue, error) {
	category := in.Category
	riskScore := 0
	manualReview := false

	switch {
	case in.RiskScore != nil:
		if *in.RiskScore < 0 || *in.RiskScore > 100 {
			return domain.Issue{}, fmt.Errorf("%w: risk score must be in [0,100]", domain.ErrInvalidInput)
		}
		riskScore = *in.RiskScore
	case len(in.Image) > 0:
		result, err := s.classify(ctx, in.Image)
		if err != nil {
			if !errors.Is(err, domain.ErrClassifierUnavailable) {
				return domain.Issue{}, err
			}
			slog.Warn("classifier unavailable, creating issue for manual review", "error", err)
			manualReview = true
			if category == "" {
				category = fallbackCategory
			}
		} else {
			riskScore = result.RiskScore
			if category == "" {
				category = result.Category
			}
		}
	default:
		return domain.Issue{}, fmt.Errorf("%w: either an image or a risk score is required", domain.ErrInvalidInput)
	}

	if category == "" {
		category = fallbackCategory
	}

	priority, autoEscalate := domain.ResolvePriority(riskScore)

	now := s.clock.Now()
	issue := domain.Issue{
		ID:            uuid.NewString(),
		Category:      category,
		Description:   in.Description,
		RiskScore:     riskScore,
		Priority:      priority,
		Status:        domain.IssueStatusReported,
		AutoEscalated: autoEscalate,
		ManualReview:  manualReview,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var escalation *domain.EscalationEntry
	if autoEscalate {
		escalation = &domain.EscalationEntry{
			ID:        uuid.NewString(),
			IssueID:   issue.ID,
			Reason:    fmt.Sprintf("risk score %d", riskScore),
			Severity:  domain.SeverityCritical,
			CreatedAt: now,
		}
	}

	if err := s.issues.Create(ctx, issue, escalation); err != nil {
		return domain.Issue{}, err
	}

	s.notifier.Notify(ctx, domain.Event{
		Type:       domain.EventNewIssue,
		IssueID:    issue.ID,
		Status:     issue.Status,
		OccurredAt: now,
	})

	return issue, nil
}

func (s *IssueService) classify(ctx context.Context, image []byte) (classifier.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.classifierTimeout)
	defer cancel()
	return s.classifier.Classify(ctx, image)
}

// Get returns one issue by id.
func (s *IssueService) Get(ctx context.Context, id string) (domain.Issue, error) {
	return s.issues.GetByID(ctx, id)
}

// Transition moves an issue to the target status. Requesting the status the
// issue is already in is a no-op returning the unchanged issue; any move
// not in the transition table fails, with ErrIssueLocked for closed issues.
// Closed is refused as a target here: closure belongs to the verification
// workflow, which records the review, credits the worker, and releases the
// assignment in one atomic write. The commit is a compare-and-swap against
// the version the caller's snapshot was read at, so no transition applies
// to a stale status.
func (s *IssueService) Transition(ctx context.Context, issueID string, target domain.IssueStatus) (domain.Issue, error) {
	if !domain.ValidStatus(target) {
		return domain.Issue{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, target)
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}

	if issue.Status == target {
		return issue, nil
	}

	if err := domain.CanTransition(issue.Status, target); err != nil {
		return domain.Issue{}, domain.NewTransitionError(issue.ID, issue.Status, target, err)
	}

	if target == domain.IssueStatusClosed {
		return domain.Issue{}, domain.NewTransitionError(issue.ID, issue.Status, target, domain.ErrIllegalTransition)
	}

	now := s.clock.Now()
	updated, err := s.issues.UpdateStatus(ctx, issue.ID, issue.Version, target, nil, now)
	if err != nil {
		return domain.Issue{}, err
	}

	s.notifier.Notify(ctx, domain.Event{
		Type:       domain.EventIssueUpdated,
		IssueID:    updated.ID,
		Status:     updated.Status,
		OccurredAt: now,
	})

	return updated, nil
}

// Escalate appends a manually-triggered entry to the escalation ledger.
// The ledger is independent of lifecycle status, so closed issues may still
// be escalated for audit follow-up.
func (s *IssueService) Escalate(ctx context.Context, issueID, reason string, severity domain.Severity, triggeredBy string) (domain.EscalationEntry, error) {
	if reason == "" {
		return domain.EscalationEntry{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}
	if severity != domain.SeverityWarning && severity != domain.SeverityCritical {
		return domain.EscalationEntry{}, fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidInput, severity)
	}

	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return domain.EscalationEntry{}, err
	}

	entry := domain.EscalationEntry{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Reason:    reason,
		Severity:  severity,
		CreatedAt: s.clock.Now(),
	}
	if triggeredBy != "" {
		entry.TriggeredBy = &triggeredBy
	}

	return s.escalations.Record(ctx, entry)
}

// Escalations lists the ledger entries for one issue, oldest first.
func (s *IssueService) Escalations(ctx context.Context, issueID string) ([]domain.EscalationEntry, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, err
	}
	return s.escalations.ListByIssue(ctx, issueID)
}
