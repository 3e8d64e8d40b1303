// Package index builds and queries the per-document search index: chunk
// texts embedded through an external endpoint, ranked in process by cosine
// similarity, serialized to disk as a JSON artifact.
package index

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
)

// Embedder turns texts into vectors. Implementations are expected to be safe
// for concurrent use across jobs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedderConfig configures the feature-extraction endpoint client.
type HTTPEmbedderConfig struct {
	BaseURL string // endpoint base, e.g. https://router.huggingface.co
	Model   string
	APIKey  string
	Timeout time.Duration
}

// HTTPEmbedder calls a hosted feature-extraction pipeline.
type HTTPEmbedder struct {
	cfg        HTTPEmbedderConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewHTTPEmbedder(cfg HTTPEmbedderConfig, logger *slog.Logger) *HTTPEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &HTTPEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	rid := uuid.New().String()
	start := time.Now()

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/models/" + e.cfg.Model
	body, err := json.Marshal(map[string]any{"inputs": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.log.Error("embed.http_error", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("embedding http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if cErr := body.Close(); cErr != nil {
			e.log.Warn("embed.body_close_error", "req_id", rid, "error", cErr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.log.Error("embed.bad_status", "req_id", rid, "status", resp.StatusCode,
			"body", truncate(string(raw), 512))
		return nil, fmt.Errorf("embedding status %d", resp.StatusCode)
	}

	var vectors [][]float32
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(texts))
	}

	e.log.Debug("embed.ok", "req_id", rid, "texts", len(texts),
		"elapsed_ms", time.Since(start).Milliseconds())
	return vectors, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
