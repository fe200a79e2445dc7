package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/tracing"
)

// Searcher is the opaque retrieval capability. An empty result set is a
// valid, non-error response.
type Searcher interface {
	Search(ctx context.Context, courseID string, vector []float32, k int) ([]Point, error)
}

// Point is one scored chunk from the vector store.
type Point struct {
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Source   string                 `json:"source,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Config configures the Qdrant-style HTTP client.
type Config struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TopK       int           `mapstructure:"top_k"`
}

// Client is a minimal vector store HTTP client.
type Client struct {
	cfg  Config
	http *http.Client
	base string
	log  *zap.Logger
}

// NewClient builds a vector store client with defaults filled in.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = "qdrant"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Collection == "" {
		cfg.Collection = "course_chunks"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		base: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		log:  logger,
	}
}

type queryRequest struct {
	Query       []float32              `json:"query"`
	Limit       int                    `json:"limit"`
	WithPayload bool                   `json:"with_payload"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
}

type queryPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type queryResponse struct {
	Result struct {
		Points []queryPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search queries the course's chunks with the given vector. Results arrive
// ordered by descending similarity score.
func (c *Client) Search(ctx context.Context, courseID string, vector []float32, k int) ([]Point, error) {
	if k <= 0 {
		k = c.cfg.TopK
	}

	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "course_id", "match": map[string]interface{}{"value": courseID}},
		},
	}
	body, _ := json.Marshal(queryRequest{Query: vector, Limit: k, WithPayload: true, Filter: filter})

	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, c.cfg.Collection)
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vectordb: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		ometrics.VectorSearches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("vectordb: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ometrics.VectorSearches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("vectordb: unexpected status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		ometrics.VectorSearches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("vectordb: decode response: %w", err)
	}

	points := make([]Point, 0, len(out.Result.Points))
	for _, p := range out.Result.Points {
		points = append(points, fromPayload(p))
	}
	ometrics.VectorSearches.WithLabelValues("ok").Inc()
	return points, nil
}

func fromPayload(p queryPoint) Point {
	pt := Point{Score: p.Score, Metadata: p.Payload}
	if p.Payload != nil {
		if t, ok := p.Payload["text"].(string); ok {
			pt.Content = t
		} else if t, ok := p.Payload["content"].(string); ok {
			pt.Content = t
		}
		if s, ok := p.Payload["source"].(string); ok {
			pt.Source = s
		}
	}
	return pt
}
