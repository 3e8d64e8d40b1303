// Package classify is the risk-classification stage: every chunk goes to a
// hosted text-classification model, and predictions partition the document
// into risky and safe sets.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/legalsift/legalsift/internal/contract"
)

// Classifier labels a batch of chunk texts, one prediction per text, in
// input order.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([]contract.Prediction, error)
}

// predictionSchema guards the classifier endpoint response shape before we
// trust it. The endpoint returns one prediction object per input text.
const predictionSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["label", "label_id", "confidence"],
    "properties": {
      "label":      {"type": "string"},
      "label_id":   {"type": "integer", "minimum": 0},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1}
    }
  }
}`

var compiledPredictionSchema = jsonschema.MustCompileString("prediction.json", predictionSchema)

// HTTPClassifierConfig configures the classification endpoint client.
type HTTPClassifierConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// HTTPClassifier calls a hosted text-classification pipeline.
type HTTPClassifier struct {
	cfg        HTTPClassifierConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewHTTPClassifier(cfg HTTPClassifierConfig, logger *slog.Logger) *HTTPClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &HTTPClassifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, texts []string) ([]contract.Prediction, error) {
	rid := uuid.New().String()
	start := time.Now()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + c.cfg.Model
	body, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("classify.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("classifier http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if cErr := body.Close(); cErr != nil {
			c.log.Warn("classify.body_close_error", "req_id", rid, "error", cErr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("classify.bad_status", "req_id", rid, "status", resp.StatusCode,
			"body", truncate(string(raw), 512))
		return nil, fmt.Errorf("classifier status %d", resp.StatusCode)
	}

	preds, err := parsePredictions(raw)
	if err != nil {
		c.log.Error("classify.bad_payload", "req_id", rid, "error", err,
			"body", truncate(string(raw), 512))
		return nil, err
	}
	if len(preds) != len(texts) {
		return nil, fmt.Errorf("prediction count mismatch: got %d for %d texts", len(preds), len(texts))
	}

	c.log.Debug("classify.ok", "req_id", rid, "texts", len(texts),
		"elapsed_ms", time.Since(start).Milliseconds())
	return preds, nil
}

// parsePredictions validates the payload against the schema, then unmarshals.
func parsePredictions(raw []byte) ([]contract.Prediction, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	if err := compiledPredictionSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("classifier response failed validation: %w", err)
	}
	var preds []contract.Prediction
	if err := json.Unmarshal(raw, &preds); err != nil {
		return nil, fmt.Errorf("unmarshal predictions: %w", err)
	}
	return preds, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
