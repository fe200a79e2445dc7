package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DebateRecord is one completed debate persisted for audit and analytics.
type DebateRecord struct {
	WorkflowID       string    `db:"workflow_id"`
	SessionID        string    `db:"session_id"`
	CourseID         string    `db:"course_id"`
	Query            string    `db:"query"`
	Answer           string    `db:"answer"`
	Decision         string    `db:"decision"`
	Rounds           int       `db:"rounds"`
	ConvergenceScore float64   `db:"convergence_score"`
	ProcessingTime   float64   `db:"processing_time"`
	CreatedAt        time.Time `db:"created_at"`
}

// Recorder writes debate audit rows to postgres.
type Recorder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRecorder wraps an open connection pool.
func NewRecorder(database *sqlx.DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: database, logger: logger}
}

const insertDebate = `
	INSERT INTO debates (
		workflow_id, session_id, course_id, query, answer,
		decision, rounds, convergence_score, processing_time, created_at
	) VALUES (
		:workflow_id, :session_id, :course_id, :query, :answer,
		:decision, :rounds, :convergence_score, :processing_time, :created_at
	)
	ON CONFLICT (workflow_id) DO UPDATE SET
		answer = EXCLUDED.answer,
		decision = EXCLUDED.decision,
		rounds = EXCLUDED.rounds,
		convergence_score = EXCLUDED.convergence_score,
		processing_time = EXCLUDED.processing_time`

// Record upserts one debate row, keyed by workflow id so activity retries
// stay idempotent.
func (r *Recorder) Record(ctx context.Context, rec DebateRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, insertDebate, rec); err != nil {
		return fmt.Errorf("db: record debate %s: %w", rec.WorkflowID, err)
	}
	return nil
}

// RecentByCourse returns the latest debates for a course, newest first.
func (r *Recorder) RecentByCourse(ctx context.Context, courseID string, limit int) ([]DebateRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []DebateRecord
	err := r.db.SelectContext(ctx, &out,
		`SELECT workflow_id, session_id, course_id, query, answer,
		        decision, rounds, convergence_score, processing_time, created_at
		   FROM debates WHERE course_id = $1
		  ORDER BY created_at DESC LIMIT $2`, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: recent debates for %s: %w", courseID, err)
	}
	return out, nil
}
