package service

import (
	"context"
	"sync"
	"time"

	"github.com/civicgrid/dispatch/internal/classifier"
	"github.com/civicgrid/dispatch/internal/domain"
	"github.com/civicgrid/dispatch/internal/repository/memory"
)

const (
	testCooldown = 72 * time.Hour
	testSLA      = 24 * time.Hour
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubClassifier struct {
	result classifier.Classification
	err    error
}

func (s stubClassifier) Classify(context.Context, []byte) (classifier.Classification, error) {
	return s.result, s.err
}

type captureNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *captureNotifier) Notify(_ context.Context, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) count(t domain.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == t {
			c++
		}
	}
	return c
}

// engine bundles the services over one shared in-memory store.
type engine struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *captureNotifier

	issues        *IssueService
	dispatch      *DispatchService
	verifications *VerificationService
	monitor       *SLAMonitor
}

func newEngine(cls classifier.Classifier) *engine {
	store := memory.NewStore()
	clk := newFakeClock()
	notifier := &captureNotifier{}

	if cls == nil {
		cls = stubClassifier{err: domain.ErrClassifierUnavailable}
	}

	return &engine{
		store:    store,
		clock:    clk,
		notifier: notifier,
		issues: NewIssueService(
			store.Issues(), store.Escalations(), cls, notifier, clk, time.Second,
		),
		dispatch: NewDispatchService(
			store.Issues(), store.Workers(), store.Assignments(),
			notifier, clk, testCooldown,
			func(domain.Priority) time.Duration { return testSLA },
		),
		verifications: NewVerificationService(
			store.Issues(), store.Assignments(), store.Verifications(),
			notifier, clk,
		),
		monitor: NewSLAMonitor(store.Issues(), notifier, clk, time.Minute),
	}
}

func (e *engine) addWorker(id, department string) {
	e.store.PutWorker(domain.Worker{
		ID:         id,
		Name:       id,
		Department: department,
		Active:     true,
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	})
}

func intPtr(n int) *int {
	return &n
}
