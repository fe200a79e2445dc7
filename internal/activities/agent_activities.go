package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/agents"
	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
)

// ExecuteStrategist drafts a candidate answer with its reasoning trace.
func (a *Activities) ExecuteStrategist(ctx context.Context, in StrategistInput) (StrategistOutput, error) {
	temp := in.Temperature
	if temp <= 0 {
		temp = a.cfg.Debate.StrategistTemperature
	}

	out := a.exec.Execute(ctx, agents.RoleStrategist, agents.Input{
		Query:     in.Query,
		SessionID: in.SessionID,
	}, a.generateWork(buildStrategistPrompt(in), temp))

	result := StrategistOutput{Output: out}
	if !out.Success {
		return result, nil
	}

	content, steps := parseDraft(out.Content)
	result.Draft = &debate.DraftContent{
		DraftID:        uuid.New().String(),
		Content:        content,
		ChainOfThought: steps,
		Timestamp:      time.Now().UTC(),
	}
	return result, nil
}

// ExecuteCritic reviews the current draft for concrete flaws. An empty
// critique set is a valid convergence signal, not a failure.
func (a *Activities) ExecuteCritic(ctx context.Context, in CriticInput) (CriticOutput, error) {
	if in.Draft == nil {
		return CriticOutput{}, fmt.Errorf("critic: no draft to review")
	}
	temp := in.Temperature
	if temp <= 0 {
		temp = a.cfg.Debate.CriticTemperature
	}

	out := a.exec.Execute(ctx, agents.RoleCritic, agents.Input{
		Query:     in.Query,
		SessionID: in.SessionID,
	}, a.generateWork(buildCriticPrompt(in), temp))

	result := CriticOutput{Output: out}
	if !out.Success {
		return result, nil
	}
	result.Critiques = parseCritiques(out.Content)
	return result, nil
}

// ExecuteModerator scores how acceptable the draft is given the critiques.
// Only the score and steering feedback come from the model; the termination
// decision is applied deterministically by the workflow's policy.
func (a *Activities) ExecuteModerator(ctx context.Context, in ModeratorInput) (ModeratorOutput, error) {
	if in.Draft == nil {
		return ModeratorOutput{}, fmt.Errorf("moderator: no draft to score")
	}

	out := a.exec.Execute(ctx, agents.RoleModerator, agents.Input{
		Query:     in.Query,
		SessionID: in.SessionID,
	}, a.generateWork(buildModeratorPrompt(in), agents.RoleModerator.DefaultTemperature()))

	result := ModeratorOutput{Output: out}
	if out.Success {
		if p, ok := parseModeration(out.Content); ok {
			result.ConvergenceScore = p.Score
			result.Feedback = p.Feedback
			ometrics.ConvergenceScore.Observe(p.Score)
			return result, nil
		}
		a.logger.Warn("Moderator returned no usable score, falling back to heuristic",
			zap.Int("round", in.Round),
		)
	}

	// Quota exhaustion short-circuits: the remaining rounds would burn the
	// budget on the same failure, so the debate ends on the degrade path.
	if out.ErrorClass == agents.ErrorClassQuota {
		return result, fmt.Errorf("moderator: quota exhausted: %s", out.ErrorMessage)
	}

	// Heuristic fallback keeps the loop moving when the moderator call or
	// its parse fails: score from the critique severities alone.
	result.ConvergenceScore = fallbackScore(in.Critiques)
	result.Feedback = "Automatic assessment from critique severity; address the highest-severity issues first."
	ometrics.ConvergenceScore.Observe(result.ConvergenceScore)
	return result, nil
}

// ExecuteSynthesis polishes the accepted draft into the final answer. A
// failed synthesis still returns a usable answer built from the raw draft.
func (a *Activities) ExecuteSynthesis(ctx context.Context, in SynthesisInput) (SynthesisOutput, error) {
	if in.Draft == nil {
		return SynthesisOutput{}, fmt.Errorf("synthesis: no draft to finalize")
	}

	out := a.exec.Execute(ctx, agents.RoleSynthesizer, agents.Input{
		Query:     in.Query,
		SessionID: in.SessionID,
	}, a.generateWork(buildSynthesisPrompt(in), agents.RoleSynthesizer.DefaultTemperature()))

	answer := &debate.FinalAnswer{
		Confidence:      in.ConvergenceScore,
		Caveat:          decisionCaveat(in.Decision),
		ErrorAnnotation: in.ErrorAnnotation,
		ZeroRound:       in.ZeroRound,
	}
	if out.Success && out.Content != "" {
		answer.Answer = out.Content
	} else {
		// Degraded path: ship the unpolished draft rather than nothing.
		answer.Answer = in.Draft.Content
		if answer.ErrorAnnotation == "" {
			answer.ErrorAnnotation = "final polish unavailable; answer is the unedited accepted draft"
		}
	}
	return SynthesisOutput{Output: out, FinalAnswer: answer}, nil
}

// ExecuteTutor adds the pedagogical enrichment pass. Failure is reported in
// the output and the caller drops the enrichment; the answer is never at risk.
func (a *Activities) ExecuteTutor(ctx context.Context, in TutorInput) (TutorOutput, error) {
	out := a.exec.Execute(ctx, agents.RoleTutor, agents.Input{
		Query:     in.Query,
		SessionID: in.SessionID,
	}, a.generateWork(buildTutorPrompt(in), agents.RoleTutor.DefaultTemperature()))

	result := TutorOutput{Output: out}
	if !out.Success {
		return result, nil
	}

	raw := extractJSON(out.Content)
	if raw == "" {
		result.Tutor = &debate.TutorInteraction{Explanation: out.Content}
		return result, nil
	}
	var payload struct {
		Explanation string   `json:"explanation"`
		StudyHints  []string `json:"study_hints"`
		FollowUps   []string `json:"follow_ups"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Explanation == "" {
		result.Tutor = &debate.TutorInteraction{Explanation: out.Content}
		return result, nil
	}
	result.Tutor = &debate.TutorInteraction{
		Explanation: payload.Explanation,
		StudyHints:  payload.StudyHints,
		FollowUps:   payload.FollowUps,
	}
	return result, nil
}

// generateWork adapts one LLM completion call into an executor work unit.
func (a *Activities) generateWork(prompt string, temperature float64) agents.WorkUnit {
	return func(ctx context.Context, _ agents.Input) (string, map[string]interface{}, error) {
		gen, err := a.llm.Generate(ctx, prompt, temperature)
		if err != nil {
			return "", nil, err
		}
		md := map[string]interface{}{
			"tokens_used": gen.TokensUsed,
			"model":       gen.Model,
		}
		return gen.Text, md, nil
	}
}

// fallbackScore derives a convergence score from critique severities when the
// moderator's own assessment is unavailable. Harsher critiques pull the score
// down faster; an empty set reads as fully acceptable.
func fallbackScore(critiques []debate.Critique) float64 {
	score := 1.0
	for _, c := range critiques {
		switch c.Severity {
		case debate.SeverityCritical:
			score -= 0.4
		case debate.SeverityHigh:
			score -= 0.25
		case debate.SeverityMedium:
			score -= 0.1
		default:
			score -= 0.05
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
