package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
)

// Common errors returned by classifiers.
var (
	// ErrMalformedFeatures is returned when a feature vector is empty
	// or contains non-finite values. Callers skip the frame and keep going.
	ErrMalformedFeatures = errors.New("detect: malformed feature vector")

	// ErrNoClassifier is returned when no classifier is configured.
	ErrNoClassifier = errors.New("detect: no classifier configured")
)

// Classifier is the narrow contract to the external motion classifier.
// Implementations must be safe for use from a single producer goroutine;
// they are never called concurrently.
type Classifier interface {
	// Classify maps one frame's features to a label and a confidence
	// in [0, 1]. A malformed input yields ErrMalformedFeatures.
	Classify(ctx context.Context, features []float64) (Label, float64, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, features []float64) (Label, float64, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, features []float64) (Label, float64, error) {
	return f(ctx, features)
}

// ValidateFeatures rejects empty vectors and vectors containing NaN or
// infinities. HTTPClassifier calls this before going to the network;
// custom classifiers should do the same.
func ValidateFeatures(features []float64) error {
	if len(features) == 0 {
		return ErrMalformedFeatures
	}
	for _, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrMalformedFeatures
		}
	}
	return nil
}

// HTTPClassifier calls a classifier sidecar over HTTP. The sidecar owns
// the model; this process only ships features and reads back a verdict.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
// A nil client falls back to http.DefaultClient; callers should pass a
// client with timeouts set (see internal/httpc).
func NewHTTPClassifier(url string, client *http.Client) *HTTPClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClassifier{url: url, client: client}
}

type classifyRequest struct {
	Features []float64 `json:"features"`
}

type classifyResponse struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, features []float64) (Label, float64, error) {
	if err := ValidateFeatures(features); err != nil {
		return "", 0, err
	}

	body, err := json.Marshal(classifyRequest{Features: features})
	if err != nil {
		return "", 0, fmt.Errorf("detect: marshal features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("detect: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("detect: classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("detect: classifier returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("detect: decode classification: %w", err)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return "", 0, fmt.Errorf("detect: classifier confidence %.3f out of range", out.Confidence)
	}
	return out.Label, out.Confidence, nil
}

// Verify implementations at compile time.
var (
	_ Classifier = (*HTTPClassifier)(nil)
	_ Classifier = (ClassifierFunc)(nil)
)
