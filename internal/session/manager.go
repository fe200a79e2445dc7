package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/config"
	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
)

// ErrNotFound is returned when a session id does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Exchange is one completed question/answer round recorded on a session.
type Exchange struct {
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Rounds     int       `json:"rounds"`
	Decision   string    `json:"decision"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is the durable per-student conversation context.
type Session struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	CoursePrompt string     `json:"course_prompt,omitempty"`
	History      []Exchange `json:"history,omitempty"`
	TotalTokens  int        `json:"total_tokens"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Manager stores sessions in redis with a sliding TTL and bounded history.
type Manager struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxHistory int
	logger     *zap.Logger
}

// NewManager builds a session store. Zero config values fall back to a
// 24-hour TTL and 50 retained exchanges.
func NewManager(rdb *redis.Client, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	ttl := time.Duration(cfg.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{rdb: rdb, ttl: ttl, maxHistory: maxHistory, logger: logger}
}

// Create allocates a new session for a course.
func (m *Manager) Create(ctx context.Context, courseID, coursePrompt string) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:           uuid.New().String(),
		CourseID:     courseID,
		CoursePrompt: coursePrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	ometrics.SessionsCreated.Inc()
	ometrics.SessionsActive.Inc()
	m.logger.Info("Session created",
		zap.String("session_id", s.ID),
		zap.String("course_id", courseID),
	)
	return s, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := m.rdb.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return &s, nil
}

// AppendExchange records a completed exchange, trims history to the retention
// bound, and refreshes the TTL.
func (m *Manager) AppendExchange(ctx context.Context, id string, ex Exchange) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	s.History = append(s.History, ex)
	if len(s.History) > m.maxHistory {
		s.History = s.History[len(s.History)-m.maxHistory:]
	}
	s.TotalTokens += ex.TokensUsed
	s.UpdatedAt = time.Now().UTC()
	return m.save(ctx, s)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	n, err := m.rdb.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	if n > 0 {
		ometrics.SessionsActive.Dec()
	}
	return nil
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	if err := m.rdb.Set(ctx, key(s.ID), raw, m.ttl).Err(); err != nil {
		return fmt.Errorf("session: store %s: %w", s.ID, err)
	}
	return nil
}

func key(id string) string { return "session:" + id }
