package workflows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/socraticlabs/tutor-orchestrator/internal/activities"
	"github.com/socraticlabs/tutor-orchestrator/internal/agents"
	"github.com/socraticlabs/tutor-orchestrator/internal/constants"
	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

// harness stubs every activity the workflow schedules and records the event
// stream so tests can assert ordering and terminality.
type harness struct {
	mu     sync.Mutex
	events []activities.EmitTaskUpdateInput

	retrieval  func(activities.RetrievalInput) (activities.RetrievalOutput, error)
	strategist func(activities.StrategistInput) (activities.StrategistOutput, error)
	critic     func(activities.CriticInput) (activities.CriticOutput, error)
	moderator  func(activities.ModeratorInput) (activities.ModeratorOutput, error)
	synthesis  func(activities.SynthesisInput) (activities.SynthesisOutput, error)
	tutor      func(activities.TutorInput) (activities.TutorOutput, error)

	strategistCalls int
	criticCalls     int
	moderatorCalls  int
	sessionCalls    int
	recordCalls     int
}

func newHarness() *harness {
	h := &harness{}
	h.retrieval = func(in activities.RetrievalInput) (activities.RetrievalOutput, error) {
		return activities.RetrievalOutput{
			Results:      []debate.RetrievalResult{{Content: "second law of thermodynamics", Score: 0.8}},
			QualityScore: 0.8,
			Strategy:     debate.RetrievalInitial,
			Success:      true,
		}, nil
	}
	h.strategist = func(in activities.StrategistInput) (activities.StrategistOutput, error) {
		return activities.StrategistOutput{
			Output: okOutput(),
			Draft:  &debate.DraftContent{DraftID: fmt.Sprintf("d-%d", in.Round), Content: fmt.Sprintf("draft r%d", in.Round)},
		}, nil
	}
	h.critic = func(in activities.CriticInput) (activities.CriticOutput, error) {
		return activities.CriticOutput{Output: okOutput()}, nil
	}
	h.moderator = func(in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		return activities.ModeratorOutput{Output: okOutput(), ConvergenceScore: 0.9}, nil
	}
	h.synthesis = func(in activities.SynthesisInput) (activities.SynthesisOutput, error) {
		caveat := ""
		switch in.Decision {
		case debate.DecisionAbortDeadlock, debate.DecisionEscalateWithWarning:
			caveat = "unresolved concerns remain"
		}
		return activities.SynthesisOutput{
			Output: okOutput(),
			FinalAnswer: &debate.FinalAnswer{
				Answer:          "final: " + in.Draft.Content,
				Confidence:      in.ConvergenceScore,
				Caveat:          caveat,
				ErrorAnnotation: in.ErrorAnnotation,
				ZeroRound:       in.ZeroRound,
			},
		}, nil
	}
	h.tutor = func(in activities.TutorInput) (activities.TutorOutput, error) {
		return activities.TutorOutput{
			Output: okOutput(),
			Tutor:  &debate.TutorInteraction{Explanation: "think of shuffled cards"},
		}, nil
	}
	return h
}

func okOutput() agents.Output {
	return agents.Output{Success: true, Attempts: 1}
}

func (h *harness) register(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterWorkflow(DebateWorkflow)
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.RetrievalInput) (activities.RetrievalOutput, error) {
		return h.retrieval(in)
	}, activity.RegisterOptions{Name: constants.ExecuteRetrievalActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.StrategistInput) (activities.StrategistOutput, error) {
		h.mu.Lock()
		h.strategistCalls++
		h.mu.Unlock()
		return h.strategist(in)
	}, activity.RegisterOptions{Name: constants.ExecuteStrategistActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.CriticInput) (activities.CriticOutput, error) {
		h.mu.Lock()
		h.criticCalls++
		h.mu.Unlock()
		return h.critic(in)
	}, activity.RegisterOptions{Name: constants.ExecuteCriticActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		h.mu.Lock()
		h.moderatorCalls++
		h.mu.Unlock()
		return h.moderator(in)
	}, activity.RegisterOptions{Name: constants.ExecuteModeratorActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SynthesisInput) (activities.SynthesisOutput, error) {
		return h.synthesis(in)
	}, activity.RegisterOptions{Name: constants.ExecuteSynthesisActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.TutorInput) (activities.TutorOutput, error) {
		return h.tutor(in)
	}, activity.RegisterOptions{Name: constants.ExecuteTutorActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.EmitTaskUpdateInput) error {
		h.mu.Lock()
		h.events = append(h.events, in)
		h.mu.Unlock()
		return nil
	}, activity.RegisterOptions{Name: constants.EmitTaskUpdateActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.SessionUpdateInput) error {
		h.mu.Lock()
		h.sessionCalls++
		h.mu.Unlock()
		return nil
	}, activity.RegisterOptions{Name: constants.UpdateSessionResultActivity})
	env.RegisterActivityWithOptions(func(ctx context.Context, in activities.RecordDebateInput) error {
		h.mu.Lock()
		h.recordCalls++
		h.mu.Unlock()
		return nil
	}, activity.RegisterOptions{Name: constants.RecordDebateActivity})
}

func newEnv(t *testing.T, h *harness) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	h.register(env)
	return env
}

// assertSingleTerminal verifies the stream carries exactly one terminal event
// and that it is last.
func assertSingleTerminal(t *testing.T, events []activities.EmitTaskUpdateInput, want streaming.Status) {
	t.Helper()
	require.NotEmpty(t, events)
	terminals := 0
	for _, e := range events {
		if e.Status == streaming.StatusComplete || e.Status == streaming.StatusError {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "stream must carry exactly one terminal event")
	assert.Equal(t, want, events[len(events)-1].Status, "terminal event must be last")
}

var stageRank = map[string]int{
	"validation":   0,
	"retrieving":   0,
	"debating":     1,
	"synthesizing": 2,
	"tutoring":     3,
	"completed":    4,
	"failed":       5,
}

func assertMonotonicStages(t *testing.T, events []activities.EmitTaskUpdateInput) {
	t.Helper()
	prev := -1
	for _, e := range events {
		r, ok := stageRank[e.Stage]
		require.True(t, ok, "unknown stage %q", e.Stage)
		assert.GreaterOrEqual(t, r, prev, "stage %q regressed", e.Stage)
		if r > prev {
			prev = r
		}
	}
}

func TestConvergesFirstRoundOnEmptyCritiques(t *testing.T) {
	h := newHarness()
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "what is entropy?", CourseID: "c1", SessionID: "s1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "final: draft r1", result.Answer)
	assert.Empty(t, result.Caveat)
	assert.Equal(t, "converged", result.Metadata["moderator_decision"])
	assert.EqualValues(t, 1, result.Metadata["debate_rounds"])
	assert.Equal(t, 1, h.strategistCalls)
	assert.Equal(t, 1, h.criticCalls)

	assertSingleTerminal(t, h.events, streaming.StatusComplete)
	assertMonotonicStages(t, h.events)
	assert.Equal(t, 1, h.sessionCalls)
	assert.Equal(t, 1, h.recordCalls)
}

func TestFrozenScoreAbortsAsDeadlock(t *testing.T) {
	h := newHarness()
	h.critic = func(in activities.CriticInput) (activities.CriticOutput, error) {
		return activities.CriticOutput{
			Output:    okOutput(),
			Critiques: []debate.Critique{{Type: debate.CritiqueLogicFlaw, Severity: debate.SeverityHigh, Description: "circular argument"}},
		}, nil
	}
	h.moderator = func(in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		return activities.ModeratorOutput{Output: okOutput(), ConvergenceScore: 0.2}, nil
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "abort_deadlock", result.Metadata["moderator_decision"])
	assert.EqualValues(t, 2, result.Metadata["debate_rounds"])
	assert.Equal(t, 2, h.moderatorCalls, "flat score must abort on the second evaluation")
	assert.NotEmpty(t, result.Caveat)
	assertSingleTerminal(t, h.events, streaming.StatusComplete)
}

func TestImprovingScoresEscalateAtRoundLimit(t *testing.T) {
	h := newHarness()
	h.critic = func(in activities.CriticInput) (activities.CriticOutput, error) {
		return activities.CriticOutput{
			Output:    okOutput(),
			Critiques: []debate.Critique{{Type: debate.CritiqueHallucination, Severity: debate.SeverityCritical, Description: "fabricated source"}},
		}, nil
	}
	scores := []float64{0.1, 0.2, 0.3}
	h.moderator = func(in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		return activities.ModeratorOutput{Output: okOutput(), ConvergenceScore: scores[in.Round-1]}, nil
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "escalate_with_warning", result.Metadata["moderator_decision"])
	assert.EqualValues(t, 3, result.Metadata["debate_rounds"])
	assert.NotEmpty(t, result.Caveat)
}

func TestEmptyRetrievalProceedsWithoutContext(t *testing.T) {
	h := newHarness()
	h.retrieval = func(in activities.RetrievalInput) (activities.RetrievalOutput, error) {
		return activities.RetrievalOutput{Success: true, QualityScore: 0, Strategy: debate.RetrievalInitial}, nil
	}
	var sawEmptyContext bool
	base := h.strategist
	h.strategist = func(in activities.StrategistInput) (activities.StrategistOutput, error) {
		sawEmptyContext = len(in.RetrievalResults) == 0
		return base(in)
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.True(t, sawEmptyContext)
	assert.EqualValues(t, 0, result.Metadata["retrieval_quality"])
}

func TestRetrievalActivityFailureIsAbsorbed(t *testing.T) {
	h := newHarness()
	h.retrieval = func(in activities.RetrievalInput) (activities.RetrievalOutput, error) {
		return activities.RetrievalOutput{}, errors.New("vector store down")
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
}

func TestZeroRoundModeSkipsReview(t *testing.T) {
	h := newHarness()
	env := newEnv(t, h)

	zero := 0
	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1", MaxRounds: &zero})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Metadata["zero_round"])
	assert.Equal(t, 1, h.strategistCalls)
	assert.Zero(t, h.criticCalls)
	assert.Zero(t, h.moderatorCalls)
}

func TestEmptyQueryFailsWithTerminalErrorEvent(t *testing.T) {
	h := newHarness()
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "   ", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())

	assertSingleTerminal(t, h.events, streaming.StatusError)
}

func TestNegativeMaxRoundsRejected(t *testing.T) {
	h := newHarness()
	env := newEnv(t, h)

	neg := -1
	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1", MaxRounds: &neg})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestStrategistFailureFirstRoundFailsRun(t *testing.T) {
	h := newHarness()
	h.strategist = func(in activities.StrategistInput) (activities.StrategistOutput, error) {
		out := okOutput()
		out.Success = false
		return activities.StrategistOutput{Output: out}, nil
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assertSingleTerminal(t, h.events, streaming.StatusError)
}

func TestCriticFailureShipsPartialAnswer(t *testing.T) {
	h := newHarness()
	h.critic = func(in activities.CriticInput) (activities.CriticOutput, error) {
		return activities.CriticOutput{}, errors.New("critic crashed")
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "escalate_with_warning", result.Metadata["moderator_decision"])
	assert.Contains(t, result.Metadata["error_annotation"], "critic unavailable")
	assertSingleTerminal(t, h.events, streaming.StatusComplete)
}

func TestModeratorQuotaFailureEndsDebateEarly(t *testing.T) {
	h := newHarness()
	h.moderator = func(in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		return activities.ModeratorOutput{}, errors.New("moderator: quota exhausted: 429 rate limit exceeded")
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "escalate_with_warning", result.Metadata["moderator_decision"])
	assert.Contains(t, result.Metadata["error_annotation"], "moderator unavailable")
	// The round budget is not burned on further quota failures.
	assert.Equal(t, 1, h.strategistCalls)
	assert.Equal(t, 1, h.moderatorCalls)
	assertSingleTerminal(t, h.events, streaming.StatusComplete)
}

func TestTutorFailureDegradesGracefully(t *testing.T) {
	h := newHarness()
	h.tutor = func(in activities.TutorInput) (activities.TutorOutput, error) {
		return activities.TutorOutput{}, errors.New("tutor down")
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.True(t, result.Success)
	assert.Nil(t, result.Tutoring)
}

func TestSkipTutoring(t *testing.T) {
	h := newHarness()
	tutorCalled := false
	h.tutor = func(in activities.TutorInput) (activities.TutorOutput, error) {
		tutorCalled = true
		return activities.TutorOutput{Output: okOutput()}, nil
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{Query: "q", CourseID: "c1", SkipTutoring: true})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	assert.False(t, tutorCalled)
}

func TestLenientPolicyIteratesOnFlatScore(t *testing.T) {
	h := newHarness()
	h.critic = func(in activities.CriticInput) (activities.CriticOutput, error) {
		return activities.CriticOutput{
			Output:    okOutput(),
			Critiques: []debate.Critique{{Type: debate.CritiqueLogicFlaw, Severity: debate.SeverityHigh, Description: "x"}},
		}, nil
	}
	h.moderator = func(in activities.ModeratorInput) (activities.ModeratorOutput, error) {
		return activities.ModeratorOutput{Output: okOutput(), ConvergenceScore: 0.2}, nil
	}
	env := newEnv(t, h)

	env.ExecuteWorkflow(DebateWorkflow, TaskInput{
		Query: "q", CourseID: "c1",
		StrictImprovement: false, StrictImprovementSet: true,
	})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result TaskResult
	require.NoError(t, env.GetWorkflowResult(&result))
	// Flat scores are tolerated; the loop runs to the round budget instead.
	assert.Equal(t, "escalate_with_warning", result.Metadata["moderator_decision"])
	assert.EqualValues(t, 3, result.Metadata["debate_rounds"])
}
