package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/civicgrid/dispatch/internal/domain"
)

// Notifier publishes engine events to the real-time fan-out collaborator.
// Delivery is best-effort: implementations log failures and never return
// them, so engine correctness cannot depend on the transport.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}

// LogNotifier writes events to the structured log. Used when no webhook is
// configured.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(_ context.Context, event domain.Event) {
	slog.Info("engine event",
		"type", event.Type,
		"issue_id", event.IssueID,
		"status", event.Status,
	)
}

const webhookTimeout = 5 * time.Second

// WebhookNotifier posts events as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a fire-and-forget webhook publisher.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Notify posts the event in the background and returns immediately, so a
// slow collaborator never stalls the request that produced the event.
// Delivery runs on its own deadline, detached from the caller's context,
// which may already be cancelled once the response is written.
func (n *WebhookNotifier) Notify(_ context.Context, event domain.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal event", "error", err)
		return
	}
	go n.post(event, body)
}

func (n *WebhookNotifier) post(event domain.Event, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed", "type", event.Type, "issue_id", event.IssueID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("webhook delivery rejected", "type", event.Type, "issue_id", event.IssueID, "status", resp.StatusCode)
	}
}
