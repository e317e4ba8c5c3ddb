package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/civicgrid/dispatch/internal/clock"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/notify"
)

// VerificationService processes completion reviews: approval closes the
// issue and credits the worker, rejection reopens it for rework. Each
// review's writes (record, issue transition, metrics) are one atomic unit.
type VerificationService struct {
	issues        domain.IssueStore
	assignments   domain.AssignmentStore
	verifications domain.VerificationStore
	notifier      notify.Notifier
	clock         clock.Clock
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(
	issues domain.IssueStore,
	assignments domain.AssignmentStore,
	verifications domain.VerificationStore,
	notifier notify.Notifier,
	clk clock.Clock,
) *VerificationService {
	return &VerificationService{
		issues:        issues,
		assignments:   assignments,
		verifications: verifications,
		notifier:      notifier,
		clock:         clk,
	}
}

// Review admits an approve/reject decision for an issue awaiting
// verification. A rejection without a comment fails with ErrCommentRequired
// before any state is touched. On rejection the SLA deadline is left
// untouched, so rework inherits the original deadline.
func (s *VerificationService) Review(ctx context.Context, issueID, reviewerID string, action domain.ReviewAction, comment string, rating *int) (domain.Issue, error) {
	if action != domain.ReviewApproved && action != domain.ReviewRejected {
		return domain.Issue{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
	}
	if reviewerID == "" {
		return domain.Issue{}, fmt.Errorf("%w: reviewer id is required", domain.ErrInvalidInput)
	}
	if action == domain.ReviewRejected && comment == "" {
		return domain.Issue{}, domain.ErrCommentRequired
	}
	if rating != nil && (*rating < 1 || *rating > 5) {
		return domain.Issue{}, fmt.Errorf("%w: rating must be in [1,5]", domain.ErrInvalidInput)
	}

	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}

	target := domain.IssueStatusClosed
	if action == domain.ReviewRejected {
		target = domain.IssueStatusReopened
	}
	if err := domain.CanTransition(issue.Status, target); err != nil {
		return domain.Issue{}, domain.NewTransitionError(issue.ID, issue.Status, target, err)
	}

	assignment, err := s.assignments.GetActiveByIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("active assignment for issue %s: %w", issueID, err)
	}

	rec := domain.VerificationRecord{
		ID:         uuid.NewString(),
		IssueID:    issueID,
		ReviewerID: reviewerID,
		Action:     action,
		Comment:    comment,
		CreatedAt:  s.clock.Now(),
	}

	var updated domain.Issue
	if action == domain.ReviewApproved {
		rec.Rating = rating
		updated, err = s.verifications.Approve(ctx, rec, issue.Version, assignment.WorkerID)
	} else {
		updated, err = s.verifications.Reject(ctx, rec, issue.Version, assignment.WorkerID)
	}
	if err != nil {
		return domain.Issue{}, err
	}

	s.notifier.Notify(ctx, domain.Event{
		Type:       domain.EventIssueUpdated,
		IssueID:    updated.ID,
		Status:     updated.Status,
		OccurredAt: rec.CreatedAt,
	})

	return updated, nil
}

// History lists the verification records accumulated by an issue across
// rework cycles, oldest first.
func (s *VerificationService) History(ctx context.Context, issueID string) ([]domain.VerificationRecord, error) {
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, err
	}
	return s.verifications.ListByIssue(ctx, issueID)
}
