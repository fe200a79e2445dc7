package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/tracing"
)

// Generator is the opaque LLM capability the debate agents run against.
// Failure is always signalled through the error return; a successful call
// never carries an empty completion.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (*Generation, error)
}

// Generation is one completed LLM call.
type Generation struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model,omitempty"`
}

// ErrEmptyGeneration is returned when the provider reports success but sends
// no content. Treated as a hard failure so callers never mistake a silent
// empty string for an answer.
var ErrEmptyGeneration = errors.New("llm: empty generation")

// Config configures the HTTP client for the llm-service.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

// Client is a minimal HTTP client for the llm-service /generate endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient builds an LLM client with defaults filled in.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://llm-service:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		log:     logger,
	}
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type generateResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	Model      string `json:"model"`
	Error      string `json:"error,omitempty"`
}

// Generate calls the llm-service and returns the completion. Non-2xx
// responses surface the status line and body so the caller's retry
// classification can distinguish 429/quota from 5xx/transient.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (*Generation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm: rate limiter: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	url := c.cfg.BaseURL + "/generate"
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		ometrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ometrics.LLMRequests.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
		snippet := readSnippet(resp.Body, 512)
		return nil, fmt.Errorf("llm: %s: %s", strings.ToLower(http.StatusText(resp.StatusCode)), snippet)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		ometrics.LLMRequests.WithLabelValues("decode_error").Inc()
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if out.Error != "" {
		ometrics.LLMRequests.WithLabelValues("provider_error").Inc()
		return nil, fmt.Errorf("llm: provider error: %s", out.Error)
	}
	if strings.TrimSpace(out.Text) == "" {
		ometrics.LLMRequests.WithLabelValues("empty").Inc()
		return nil, ErrEmptyGeneration
	}

	ometrics.LLMRequests.WithLabelValues("ok").Inc()
	ometrics.LLMTokensUsed.Add(float64(out.TokensUsed))

	return &Generation{Text: out.Text, TokensUsed: out.TokensUsed, Model: out.Model}, nil
}

func readSnippet(r io.Reader, n int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return strings.TrimSpace(string(b))
}
