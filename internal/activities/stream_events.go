package activities

import (
	"context"
	"time"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

// EmitTaskUpdate publishes one progress chunk on the event stream. It never
// fails the workflow: with no stream manager wired it is a no-op.
func (a *Activities) EmitTaskUpdate(ctx context.Context, in EmitTaskUpdateInput) error {
	// Failed runs never reach RecordDebate, so completion is counted here.
	if in.Status == streaming.StatusError {
		ometrics.DebatesCompleted.WithLabelValues("failed", "none").Inc()
	}
	if a.streams == nil {
		return nil
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	a.streams.Publish(in.WorkflowID, streaming.Event{
		Status:    in.Status,
		Stage:     in.Stage,
		Message:   in.Message,
		Response:  in.Response,
		Error:     in.Error,
		Timestamp: ts,
	})
	return nil
}
