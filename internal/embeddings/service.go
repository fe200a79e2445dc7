package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/tracing"
)

// Embedder turns text into a query vector. The vector store and the
// embedding model are opaque collaborators; only the shape matters here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the embedding service client.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	DefaultModel string        `mapstructure:"default_model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// Service generates embeddings over HTTP with an optional cache in front.
type Service struct {
	cfg   Config
	http  *http.Client
	cache Cache
	log   *zap.Logger
}

// NewService builds the embedding client. cache may be nil.
func NewService(cfg Config, cache Cache, logger *zap.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://llm-service:8000"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cache,
		log:   logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for one text, consulting the cache first.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(s.cfg.DefaultModel, text)
	if s.cache != nil {
		if vec, ok := s.cache.Get(ctx, key); ok {
			return vec, nil
		}
	}

	body, err := json.Marshal(embedRequest{Texts: []string{text}, Model: s.cfg.DefaultModel})
	if err != nil {
		return nil, fmt.Errorf("embeddings: marshal request: %w", err)
	}

	url := s.cfg.BaseURL + "/embeddings"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embeddings: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embeddings: unexpected status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embeddings: decode response: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embeddings: empty embedding returned")
	}

	vec := out.Embeddings[0]
	if s.cache != nil {
		s.cache.Set(ctx, key, vec, s.cfg.CacheTTL)
	}
	return vec, nil
}
