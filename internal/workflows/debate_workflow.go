package workflows

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/socraticlabs/tutor-orchestrator/internal/activities"
	"github.com/socraticlabs/tutor-orchestrator/internal/constants"
	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
)

// DebateWorkflow runs one student query through retrieval, the
// strategist/critic/moderator refinement loop, synthesis, and the optional
// tutoring pass. Progress is streamed as events; the stream always carries
// exactly one terminal event.
//
// Agent activities run with a single Temporal attempt: transient-failure
// retries live inside the activity's executor, and stacking a second retry
// layer on top would multiply worst-case latency.
func DebateWorkflow(ctx workflow.Context, input TaskInput) (TaskResult, error) {
	logger := workflow.GetLogger(ctx)
	wfID := workflow.GetInfo(ctx).WorkflowExecution.ID

	if strings.TrimSpace(input.Query) == "" {
		err := errors.New("query must not be empty")
		emitUpdate(ctx, wfID, errorEvent("validation", err.Error()))
		return TaskResult{Success: false, ErrorMessage: err.Error()}, err
	}
	maxRounds := defaultMaxRounds
	if input.MaxRounds != nil {
		if *input.MaxRounds < 0 {
			err := fmt.Errorf("max_rounds must be >= 0, got %d", *input.MaxRounds)
			emitUpdate(ctx, wfID, errorEvent("validation", err.Error()))
			return TaskResult{Success: false, ErrorMessage: err.Error()}, err
		}
		maxRounds = *input.MaxRounds
	}
	policy := debate.DefaultPolicy()
	if input.ConvergenceThreshold > 0 {
		policy.ConvergenceThreshold = input.ConvergenceThreshold
	}
	if input.StrictImprovementSet {
		policy.StrictImprovement = input.StrictImprovement
	}

	logger.Info("Starting DebateWorkflow",
		"query", input.Query,
		"course_id", input.CourseID,
		"session_id", input.SessionID,
		"max_rounds", maxRounds,
	)

	state := debate.NewWorkflowState(input.Query, input.CourseID, input.SessionID, input.CoursePrompt, maxRounds)
	startedAt := workflow.Now(ctx)

	// Retrieval. Failures are absorbed: the debate proceeds without context.
	emitUpdate(ctx, wfID, progressEvent("retrieving", "Searching course material"))

	retCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var retrieval activities.RetrievalOutput
	if err := workflow.ExecuteActivity(retCtx, constants.ExecuteRetrievalActivity, activities.RetrievalInput{
		Query:     input.Query,
		CourseID:  input.CourseID,
		SessionID: input.SessionID,
	}).Get(ctx, &retrieval); err != nil {
		logger.Warn("Retrieval activity failed, proceeding without context", "error", err)
		state.RecordError("retrieval unavailable: " + err.Error())
	} else {
		state.RetrievalResults = retrieval.Results
		state.RetrievalQualityScore = retrieval.QualityScore
		state.RetrievalStrategy = retrieval.Strategy
		state.SpeculativeQueries = retrieval.SpeculativeQueries
		if !retrieval.Success && retrieval.ErrorMessage != "" {
			state.RecordError("retrieval degraded: " + retrieval.ErrorMessage)
		}
	}

	agentCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	// Debate loop.
	if err := state.Advance(debate.StatusDebating); err != nil {
		return failWorkflow(ctx, wfID, state, err)
	}

	var (
		allCritiques []debate.Critique
		prevScore    float64
		hasPrev      bool
		tokensUsed   int
	)

	if maxRounds == 0 {
		// Zero-round mode: one draft, no review, flagged downstream.
		emitUpdate(ctx, wfID, progressEvent("debating", "Drafting answer without review"))
		strat, err := runStrategist(agentCtx, state, input, 1)
		if err != nil {
			return failWorkflow(ctx, wfID, state, err)
		}
		state.Draft = strat.Draft
		state.ModeratorDecision = debate.DecisionConverged
		state.ConvergenceScore = 0.5
		tokensUsed += tokensFrom(strat.Output.Metadata)
		state.AddProcessingTime("strategist", strat.Output.ProcessingTime)
		state.AppendLog("strategist", "zero-round draft", workflow.Now(ctx))
	}

	for round := 1; round <= maxRounds; round++ {
		state.CurrentRound = round
		emitUpdate(ctx, wfID, progressEvent("debating", fmt.Sprintf("Debate round %d of %d", round, maxRounds)))

		strat, err := runStrategist(agentCtx, state, input, round)
		if err != nil {
			if state.Draft == nil {
				return failWorkflow(ctx, wfID, state, err)
			}
			degradeToPartial(state, "strategist failed in round "+fmt.Sprint(round)+": "+err.Error())
			break
		}
		state.Draft = strat.Draft
		tokensUsed += tokensFrom(strat.Output.Metadata)
		state.AddProcessingTime("strategist", strat.Output.ProcessingTime)
		state.AppendLog("strategist", "draft "+strat.Draft.DraftID, workflow.Now(ctx))

		var critic activities.CriticOutput
		cerr := workflow.ExecuteActivity(agentCtx, constants.ExecuteCriticActivity, activities.CriticInput{
			Query:     input.Query,
			Draft:     state.Draft,
			Round:     round,
			SessionID: input.SessionID,
		}).Get(ctx, &critic)
		if cerr != nil || !critic.Output.Success {
			degradeToPartial(state, "critic unavailable in round "+fmt.Sprint(round)+": "+agentFailure(cerr, critic.Output.ErrorMessage))
			break
		}
		state.Critiques = critic.Critiques
		allCritiques = append(allCritiques, critic.Critiques...)
		tokensUsed += tokensFrom(critic.Output.Metadata)
		state.AddProcessingTime("critic", critic.Output.ProcessingTime)
		state.AppendLog("critic", fmt.Sprintf("%d critiques", len(critic.Critiques)), workflow.Now(ctx))

		var mod activities.ModeratorOutput
		merr := workflow.ExecuteActivity(agentCtx, constants.ExecuteModeratorActivity, activities.ModeratorInput{
			Query:     input.Query,
			Draft:     state.Draft,
			Critiques: state.Critiques,
			Round:     round,
			SessionID: input.SessionID,
		}).Get(ctx, &mod)
		if merr != nil {
			degradeToPartial(state, "moderator unavailable in round "+fmt.Sprint(round)+": "+merr.Error())
			break
		}
		tokensUsed += tokensFrom(mod.Output.Metadata)
		state.AddProcessingTime("moderator", mod.Output.ProcessingTime)

		decision, policyFeedback := policy.Decide(debate.DecisionInput{
			Critiques:        state.Critiques,
			ConvergenceScore: mod.ConvergenceScore,
			PrevScore:        prevScore,
			HasPrevRound:     hasPrev,
			Round:            round,
			MaxRounds:        maxRounds,
		})
		state.ConvergenceScore = mod.ConvergenceScore
		state.ModeratorDecision = decision
		state.AppendLog("moderator", fmt.Sprintf("score %.2f decision %s", mod.ConvergenceScore, decision), workflow.Now(ctx))
		prevScore = mod.ConvergenceScore
		hasPrev = true

		logger.Info("Debate round evaluated",
			"round", round,
			"score", mod.ConvergenceScore,
			"decision", string(decision),
		)

		if decision.Terminal() {
			break
		}
		if mod.Feedback != "" {
			state.ModeratorFeedback = mod.Feedback + "\n" + policyFeedback
		} else {
			state.ModeratorFeedback = policyFeedback
		}
	}

	if state.Draft == nil {
		return failWorkflow(ctx, wfID, state, errors.New("debate produced no draft"))
	}

	// Synthesis. A failed polish degrades to the raw accepted draft.
	if err := state.Advance(debate.StatusSynthesizing); err != nil {
		return failWorkflow(ctx, wfID, state, err)
	}
	emitUpdate(ctx, wfID, progressEvent("synthesizing", "Finalizing answer"))

	var synth activities.SynthesisOutput
	serr := workflow.ExecuteActivity(agentCtx, constants.ExecuteSynthesisActivity, activities.SynthesisInput{
		Query:            input.Query,
		Draft:            state.Draft,
		CritiqueHistory:  allCritiques,
		Decision:         state.ModeratorDecision,
		ConvergenceScore: state.ConvergenceScore,
		ZeroRound:        maxRounds == 0,
		ErrorAnnotation:  strings.Join(state.ErrorMessages, "; "),
		SessionID:        input.SessionID,
	}).Get(ctx, &synth)
	if serr != nil || synth.FinalAnswer == nil {
		logger.Warn("Synthesis unavailable, shipping raw draft", "error", serr)
		synth.FinalAnswer = &debate.FinalAnswer{
			Answer:          state.Draft.Content,
			Confidence:      state.ConvergenceScore,
			ZeroRound:       maxRounds == 0,
			ErrorAnnotation: "final polish unavailable; answer is the unedited accepted draft",
		}
	} else {
		tokensUsed += tokensFrom(synth.Output.Metadata)
		state.AddProcessingTime("synthesizer", synth.Output.ProcessingTime)
	}
	state.FinalAnswer = synth.FinalAnswer

	// Tutoring pass. Strictly best-effort: any failure drops the enrichment.
	if !input.SkipTutoring {
		if err := state.Advance(debate.StatusTutoring); err != nil {
			return failWorkflow(ctx, wfID, state, err)
		}
		emitUpdate(ctx, wfID, progressEvent("tutoring", "Adding study guidance"))

		var tutor activities.TutorOutput
		terr := workflow.ExecuteActivity(agentCtx, constants.ExecuteTutorActivity, activities.TutorInput{
			Query:        input.Query,
			Answer:       state.FinalAnswer.Answer,
			CoursePrompt: input.CoursePrompt,
			SessionID:    input.SessionID,
		}).Get(ctx, &tutor)
		if terr != nil || tutor.Tutor == nil {
			logger.Warn("Tutoring pass unavailable, answer ships without enrichment", "error", terr)
		} else {
			state.TutorInteraction = tutor.Tutor
			tokensUsed += tokensFrom(tutor.Output.Metadata)
			state.AddProcessingTime("tutor", tutor.Output.ProcessingTime)
		}
	}

	if err := state.Advance(debate.StatusCompleted); err != nil {
		return failWorkflow(ctx, wfID, state, err)
	}

	totalTime := workflow.Now(ctx).Sub(startedAt).Seconds()
	result := TaskResult{
		Success: true,
		Answer:  state.FinalAnswer.Answer,
		Caveat:  state.FinalAnswer.Caveat,
		Metadata: map[string]interface{}{
			"debate_rounds":         state.CurrentRound,
			"convergence_score":     state.ConvergenceScore,
			"moderator_decision":    string(state.ModeratorDecision),
			"retrieval_quality":     state.RetrievalQualityScore,
			"retrieval_strategy":    string(state.RetrievalStrategy),
			"zero_round":            maxRounds == 0,
			"tokens_used":           tokensUsed,
			"total_processing_time": totalTime,
		},
	}
	if state.FinalAnswer.ErrorAnnotation != "" {
		result.Metadata["error_annotation"] = state.FinalAnswer.ErrorAnnotation
	}
	if state.TutorInteraction != nil {
		result.Tutoring = state.TutorInteraction
	}

	// Bookkeeping writes never block the response.
	recordOutcome(ctx, wfID, input, state, tokensUsed, totalTime)

	emitUpdate(ctx, wfID, completeEvent(result))

	logger.Info("DebateWorkflow completed",
		"rounds", state.CurrentRound,
		"decision", string(state.ModeratorDecision),
		"tokens_used", tokensUsed,
	)
	return result, nil
}

// runStrategist executes one strategist draft and normalizes failures into a
// single error.
func runStrategist(ctx workflow.Context, state *debate.WorkflowState, input TaskInput, round int) (activities.StrategistOutput, error) {
	var out activities.StrategistOutput
	err := workflow.ExecuteActivity(ctx, constants.ExecuteStrategistActivity, activities.StrategistInput{
		Query:             input.Query,
		CoursePrompt:      input.CoursePrompt,
		Round:             round,
		RetrievalResults:  state.RetrievalResults,
		ModeratorFeedback: state.ModeratorFeedback,
		SessionID:         input.SessionID,
	}).Get(ctx, &out)
	if err != nil {
		return out, err
	}
	if !out.Output.Success || out.Draft == nil {
		return out, errors.New(agentFailure(nil, out.Output.ErrorMessage))
	}
	return out, nil
}

// degradeToPartial records an agent failure and routes the last good draft to
// synthesis with a warning instead of failing the whole workflow.
func degradeToPartial(state *debate.WorkflowState, msg string) {
	state.RecordError(msg)
	state.ModeratorDecision = debate.DecisionEscalateWithWarning
}

// failWorkflow emits the single terminal error event and returns the failure.
func failWorkflow(ctx workflow.Context, wfID string, state *debate.WorkflowState, err error) (TaskResult, error) {
	_ = state.Advance(debate.StatusFailed)
	emitUpdate(ctx, wfID, errorEvent(string(state.WorkflowStatus), err.Error()))
	return TaskResult{Success: false, ErrorMessage: err.Error()}, err
}

func agentFailure(err error, msg string) string {
	if err != nil {
		return err.Error()
	}
	if msg != "" {
		return msg
	}
	return "agent returned no result"
}

func tokensFrom(md map[string]interface{}) int {
	if md == nil {
		return 0
	}
	switch v := md["tokens_used"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
