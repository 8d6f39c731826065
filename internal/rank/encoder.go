package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
)

// Cross-encoder service defaults.
const (
	DefaultEncoderEndpoint = "http://localhost:9659"
	DefaultEncoderModel    = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultEncoderTimeout  = 30 * time.Second
)

// CrossEncoder scores query-document pairs jointly. Scores come back in
// input order, one per document.
type CrossEncoder interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
	// Available reports whether the encoder can serve requests.
	Available(ctx context.Context) bool
	// Close releases resources.
	Close() error
}

// =============================================================================
// HTTP cross-encoder
// =============================================================================

// EncoderConfig holds the connection settings for the scoring service.
type EncoderConfig struct {
	// Endpoint is the scoring service URL (default http://localhost:9659).
	Endpoint string
	// Model is the cross-encoder model alias sent with each request.
	Model string
	// Timeout bounds a single scoring request (default 30s).
	Timeout time.Duration
}

// HTTPCrossEncoder scores pairs through a local model server.
type HTTPCrossEncoder struct {
	client *http.Client
	cfg    EncoderConfig
	mu     sync.RWMutex
	closed bool
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

// NewHTTPCrossEncoder builds the client. No connection is attempted until
// the first Available or Score call.
func NewHTTPCrossEncoder(cfg EncoderConfig) *HTTPCrossEncoder {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEncoderEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEncoderModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEncoderTimeout
	}
	return &HTTPCrossEncoder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		cfg: cfg,
	}
}

// scoreRequest is the JSON request to the /rerank endpoint.
type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

// scoreResponse is the JSON response from the /rerank endpoint.
type scoreResponse struct {
	Scores           []float64 `json:"scores"`
	Model            string    `json:"model"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
}

// Score posts the pairs to the scoring service and returns the scores in
// input order.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest, "cross-encoder is closed", nil)
	}
	e.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(scoreRequest{
		Query:     query,
		Documents: documents,
		Model:     e.cfg.Model,
	})
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest, "marshal rerank request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest, "build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest,
			fmt.Sprintf("rerank failed (status %d): %s", resp.StatusCode, string(detail)), nil)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeRerankRequest, "decode rerank response", err)
	}

	slog.Debug("cross_encoder_scored",
		"documents", len(documents),
		"duration_ms", time.Since(start).Milliseconds(),
		"server_ms", out.ProcessingTimeMs)

	return out.Scores, nil
}

// Available probes the /health endpoint.
func (e *HTTPCrossEncoder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, e.cfg.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close marks the encoder closed and drops idle connections.
func (e *HTTPCrossEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if transport, ok := e.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// =============================================================================
// No-op cross-encoder
// =============================================================================

// NoOpCrossEncoder returns slowly decreasing scores so the stage-one order
// survives. Used when cross-encoder scoring is disabled.
type NoOpCrossEncoder struct{}

var _ CrossEncoder = (*NoOpCrossEncoder)(nil)

// Score assigns decreasing scores in input order.
func (NoOpCrossEncoder) Score(_ context.Context, _ string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = 1.0 - float64(i)*0.01
	}
	return scores, nil
}

// Available always returns true.
func (NoOpCrossEncoder) Available(_ context.Context) bool { return true }

// Close is a no-op.
func (NoOpCrossEncoder) Close() error { return nil }
