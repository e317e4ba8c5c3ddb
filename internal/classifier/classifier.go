package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/civicgrid/dispatch/internal/domain"
)

// Classification is the risk assessment returned for a submitted incident
// image. RiskScore and Confidence are integers in [0, 100].
type Classification struct {
	Category   string `json:"category"`
	RiskScore  int    `json:"risk_score"`
	Confidence int    `json:"confidence"`
}

// Classifier is the risk scoring collaborator. The engine treats it as an
// opaque oracle; any transport or model failure surfaces as
// domain.ErrClassifierUnavailable.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (Classification, error)
}

// HTTPClassifier calls an external classification service over HTTP.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier client with a bounded timeout.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Classify posts the raw image to the classification service.
func (c *HTTPClassifier) Classify(ctx context.Context, image []byte) (Classification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return Classification{}, fmt.Errorf("%w: build request: %v", domain.ErrClassifierUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Classification{}, fmt.Errorf("%w: status %d", domain.ErrClassifierUnavailable, resp.StatusCode)
	}

	var result Classification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Classification{}, fmt.Errorf("%w: decode response: %v", domain.ErrClassifierUnavailable, err)
	}

	if result.RiskScore < 0 || result.RiskScore > 100 {
		return Classification{}, fmt.Errorf("%w: risk score %d out of range", domain.ErrClassifierUnavailable, result.RiskScore)
	}

	return result, nil
}
