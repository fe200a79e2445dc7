package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/socraticlabs/tutor-orchestrator/internal/activities"
	"github.com/socraticlabs/tutor-orchestrator/internal/constants"
	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

// eventPayload describes one stream event before the workflow stamps id and
// time onto it.
type eventPayload struct {
	status   streaming.Status
	stage    string
	message  string
	response interface{}
	errMsg   string
}

func progressEvent(stage, message string) eventPayload {
	return eventPayload{status: streaming.StatusInProgress, stage: stage, message: message}
}

func completeEvent(result TaskResult) eventPayload {
	return eventPayload{status: streaming.StatusComplete, stage: "completed", response: result}
}

func errorEvent(stage, errMsg string) eventPayload {
	return eventPayload{status: streaming.StatusError, stage: stage, errMsg: errMsg}
}

// emitUpdate publishes one progress chunk. The call is awaited so events hit
// the stream in execution order, but a publish failure never fails the run.
func emitUpdate(ctx workflow.Context, wfID string, p eventPayload) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ectx := workflow.WithActivityOptions(ctx, ao)
	err := workflow.ExecuteActivity(ectx, constants.EmitTaskUpdateActivity, activities.EmitTaskUpdateInput{
		WorkflowID: wfID,
		Status:     p.status,
		Stage:      p.stage,
		Message:    p.message,
		Response:   p.response,
		Error:      p.errMsg,
		Timestamp:  workflow.Now(ctx),
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Event publish failed", "stage", p.stage, "error", err)
	}
}

// recordOutcome schedules the session update and the audit insert on a
// disconnected context so a slow store cannot delay the response.
func recordOutcome(ctx workflow.Context, wfID string, input TaskInput, state *debate.WorkflowState, tokensUsed int, totalTime float64) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	detached, _ := workflow.NewDisconnectedContext(ctx)
	dctx := workflow.WithActivityOptions(detached, ao)

	if input.SessionID != "" {
		workflow.ExecuteActivity(dctx, constants.UpdateSessionResultActivity, activities.SessionUpdateInput{
			SessionID:  input.SessionID,
			Query:      input.Query,
			Answer:     state.FinalAnswer.Answer,
			TokensUsed: tokensUsed,
			Rounds:     state.CurrentRound,
			Decision:   string(state.ModeratorDecision),
			Score:      state.ConvergenceScore,
		})
	}
	workflow.ExecuteActivity(dctx, constants.RecordDebateActivity, activities.RecordDebateInput{
		WorkflowID:       wfID,
		SessionID:        input.SessionID,
		CourseID:         input.CourseID,
		Query:            input.Query,
		Answer:           state.FinalAnswer.Answer,
		Decision:         string(state.ModeratorDecision),
		Rounds:           state.CurrentRound,
		ConvergenceScore: state.ConvergenceScore,
		ProcessingTime:   totalTime,
	})
}
