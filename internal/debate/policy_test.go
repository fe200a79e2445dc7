package debate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func critical(desc string) Critique {
	return Critique{Type: CritiqueLogicFlaw, Severity: SeverityCritical, Description: desc}
}

func TestDecideEmptyCritiquesConverges(t *testing.T) {
	p := DefaultPolicy()
	decision, feedback := p.Decide(DecisionInput{
		Critiques:        nil,
		ConvergenceScore: 0.0,
		Round:            1,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionConverged, decision)
	assert.Empty(t, feedback)
}

func TestDecideLowSeverityOnlyConverges(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques: []Critique{
			{Type: CritiqueLogicFlaw, Severity: SeverityLow, Description: "minor wording"},
			{Type: CritiqueCalculationError, Severity: SeverityMedium, Description: "rounding"},
		},
		ConvergenceScore: 0.2, // below threshold, but nothing high-severity remains
		Round:            1,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionConverged, decision)
}

func TestDecideScoreAboveThresholdConverges(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("unresolved")},
		ConvergenceScore: 0.75,
		Round:            1,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionConverged, decision)
}

func TestDecideIterateWithFeedback(t *testing.T) {
	p := DefaultPolicy()
	decision, feedback := p.Decide(DecisionInput{
		Critiques: []Critique{
			critical("claim is unsupported"),
			{Type: CritiqueHallucination, Severity: SeverityLow, Description: "dubious date"},
		},
		ConvergenceScore: 0.4,
		Round:            1,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionIterate, decision)
	assert.True(t, strings.Contains(feedback, "Must fix:"))
	assert.True(t, strings.Contains(feedback, "claim is unsupported"))
	assert.True(t, strings.Contains(feedback, "Consider:"))
}

func TestDecideDeadlockOnFlatScore(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("still wrong")},
		ConvergenceScore: 0.2,
		PrevScore:        0.2,
		HasPrevRound:     true,
		Round:            2,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionAbortDeadlock, decision)
}

func TestDecideDeadlockOnDecreasingScore(t *testing.T) {
	p := DefaultPolicy()
	p.StrictImprovement = false
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("regressed")},
		ConvergenceScore: 0.15,
		PrevScore:        0.3,
		HasPrevRound:     true,
		Round:            2,
		MaxRounds:        5,
	})
	assert.Equal(t, DecisionAbortDeadlock, decision)
}

func TestDecideFlatScoreIteratesUnderLenientPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.StrictImprovement = false
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("still wrong")},
		ConvergenceScore: 0.2,
		PrevScore:        0.2,
		HasPrevRound:     true,
		Round:            2,
		MaxRounds:        5,
	})
	assert.Equal(t, DecisionIterate, decision)
}

func TestDecideImprovingScoreIterates(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("better but not done")},
		ConvergenceScore: 0.45,
		PrevScore:        0.2,
		HasPrevRound:     true,
		Round:            2,
		MaxRounds:        5,
	})
	assert.Equal(t, DecisionIterate, decision)
}

func TestDecideEscalatesAtRoundLimit(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("unresolved")},
		ConvergenceScore: 0.5,
		PrevScore:        0.3,
		HasPrevRound:     true,
		Round:            3,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionEscalateWithWarning, decision)
}

func TestDecideFirstRoundNeverDeadlocks(t *testing.T) {
	p := DefaultPolicy()
	decision, _ := p.Decide(DecisionInput{
		Critiques:        []Critique{critical("unresolved")},
		ConvergenceScore: 0.2,
		HasPrevRound:     false,
		Round:            1,
		MaxRounds:        3,
	})
	assert.Equal(t, DecisionIterate, decision)
}
