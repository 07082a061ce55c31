// Package embedding converts batches of text into fixed-dimension,
// order-preserving vectors (spec §4.4), trying a primary provider first and
// falling back to a secondary provider only on unrecoverable errors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/retryutil"
)

// Client is the contract consumed by the chunker's embedding step and the
// retrieval engine's query-embedding step.
type Client interface {
	// EmbedBatch returns one vector per input text, order-preserving,
	// length-matched (spec §4.4 contract).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the dimension the collection has committed to, or 0
	// before the first successful call.
	Dimension() int
}

// unrecoverableError marks provider failures that should trigger fallback
// rather than retry: auth failure, dimension mismatch, or a rate-limit that
// has exhausted its own retry budget.
type unrecoverableError struct{ err error }

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

// Service embeds through a primary provider, falling back to a secondary
// provider on unrecoverable error, and commits the collection's dimension
// to whichever provider succeeds first (spec §4.4, §9 Open Question:
// fallback must match dimension or the codebase fails).
type Service struct {
	primary   providerConfig
	fallback  providerConfig
	batchSize int
	policy    config.RetryPolicy
	logger    zerolog.Logger
	dimension int
	hasDim    bool
}

type providerConfig struct {
	cfg    config.EmbeddingProviderConfig
	client *http.Client
}

// NewService builds a Service from the loaded embedding configuration.
func NewService(cfg config.EmbeddingConfig, policy config.RetryPolicy, logger zerolog.Logger) *Service {
	batch := cfg.Batch
	if batch <= 0 {
		batch = 100
	}
	return &Service{
		primary:   providerConfig{cfg: cfg.Primary, client: http.DefaultClient},
		fallback:  providerConfig{cfg: cfg.Fallback, client: http.DefaultClient},
		batchSize: batch,
		policy:    policy,
		logger:    logger,
	}
}

func (s *Service) Dimension() int { return s.dimension }

func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float32
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := s.embedBatchWithFallback(ctx, texts[start:end])
		if err != nil {
			return out, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (s *Service) embedBatchWithFallback(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedViaProvider(ctx, s.primary, texts)
	if err == nil {
		return s.commitDimension(vectors)
	}

	var unrec *unrecoverableError
	if !errors.As(err, &unrec) {
		return nil, fmt.Errorf("embedding: primary provider failed: %w", err)
	}
	if s.fallback.cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding: primary provider failed and no fallback configured: %w", err)
	}

	s.logger.Warn().Err(err).Msg("embedding: falling back to secondary provider")
	vectors, err = s.embedViaProvider(ctx, s.fallback, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: fallback provider also failed: %w", err)
	}
	return s.commitDimension(vectors)
}

// commitDimension enforces that the collection commits to the first
// successful vector's dimension; a later provider whose vectors differ in
// length fails the call rather than silently mixing dimensions.
func (s *Service) commitDimension(vectors [][]float32) ([][]float32, error) {
	if len(vectors) == 0 {
		return vectors, nil
	}
	dim := len(vectors[0])
	if !s.hasDim {
		s.dimension = dim
		s.hasDim = true
	} else if dim != s.dimension {
		return nil, &unrecoverableError{err: fmt.Errorf("embedding: dimension mismatch: collection committed to %d, got %d", s.dimension, dim)}
	}
	return vectors, nil
}

func (s *Service) embedViaProvider(ctx context.Context, p providerConfig, texts []string) ([][]float32, error) {
	return retryutil.Do(ctx, s.policy, s.logger, "embed:"+p.cfg.Name, func(ctx context.Context) ([][]float32, error) {
		vectors, err := callEmbeddingEndpoint(ctx, p, texts)
		if err != nil {
			if isUnrecoverable(err) {
				return nil, retryutil.Permanent(&unrecoverableError{err: err})
			}
			return nil, err
		}
		return vectors, nil
	})
}

func isUnrecoverable(err error) bool {
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
			return true
		}
	}
	return false
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embedding endpoint returned %d: %s", e.status, e.body)
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// callEmbeddingEndpoint sends one request to provider p's embedding
// endpoint. This is the one HTTP-shaped call site in the package; both the
// primary and fallback provider speak the same OpenAI-compatible
// `{model, input}` -> `{data: [{embedding}]}` contract.
func callEmbeddingEndpoint(ctx context.Context, p providerConfig, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	timeout := time.Duration(p.cfg.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, p.cfg.BaseURL+p.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	} else if p.cfg.APIHeader != "" {
		req.Header.Set(p.cfg.APIHeader, p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(raw)}
	}

	var er embedResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(er.Data))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
