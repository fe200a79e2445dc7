package activities

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/db"
	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/session"
)

// UpdateSessionResult appends the finished exchange to the session history.
// Sessions are optional; with no store wired this is a no-op.
func (a *Activities) UpdateSessionResult(ctx context.Context, in SessionUpdateInput) error {
	if a.sessions == nil || in.SessionID == "" {
		return nil
	}
	err := a.sessions.AppendExchange(ctx, in.SessionID, session.Exchange{
		Query:      in.Query,
		Answer:     in.Answer,
		TokensUsed: in.TokensUsed,
		Rounds:     in.Rounds,
		Decision:   in.Decision,
		Score:      in.Score,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("Session update failed",
			zap.String("session_id", in.SessionID),
			zap.Error(err),
		)
	}
	return err
}

// RecordDebate persists the completed debate for audit. With no database
// wired only the metrics are recorded; the workflow treats failures as
// non-fatal either way.
func (a *Activities) RecordDebate(ctx context.Context, in RecordDebateInput) error {
	ometrics.DebatesCompleted.WithLabelValues("completed", in.Decision).Inc()
	ometrics.DebateDuration.Observe(in.ProcessingTime)
	ometrics.DebateRounds.Observe(float64(in.Rounds))

	if a.recorder == nil {
		return nil
	}
	err := a.recorder.Record(ctx, db.DebateRecord{
		WorkflowID:       in.WorkflowID,
		SessionID:        in.SessionID,
		CourseID:         in.CourseID,
		Query:            in.Query,
		Answer:           in.Answer,
		Decision:         in.Decision,
		Rounds:           in.Rounds,
		ConvergenceScore: in.ConvergenceScore,
		ProcessingTime:   in.ProcessingTime,
	})
	if err != nil {
		a.logger.Warn("Debate record insert failed",
			zap.String("workflow_id", in.WorkflowID),
			zap.Error(err),
		)
	}
	return err
}
