package debate

import (
	"fmt"
	"strings"
)

// Policy holds the moderator's termination knobs. The zero value is not
// usable; construct with DefaultPolicy and override as needed.
type Policy struct {
	// ConvergenceThreshold is the aggregate score at or above which the
	// draft is accepted regardless of remaining low-severity critiques.
	ConvergenceThreshold float64

	// StrictImprovement controls the deadlock comparison: when true, a flat
	// convergence score round-over-round counts as non-improving (deadlock);
	// when false, only a decreasing score does.
	StrictImprovement bool
}

// DefaultPolicy mirrors the session defaults: threshold 0.7, flat scores
// treated as deadlock.
func DefaultPolicy() Policy {
	return Policy{
		ConvergenceThreshold: 0.7,
		StrictImprovement:    true,
	}
}

// DecisionInput is everything the moderator policy looks at for one round.
type DecisionInput struct {
	Critiques        []Critique
	ConvergenceScore float64
	PrevScore        float64
	HasPrevRound     bool
	Round            int
	MaxRounds        int
}

// Decide applies the termination policy for one debate round and returns the
// decision plus feedback for the next strategist draft (empty unless the
// decision is iterate).
//
// Order of evaluation:
//  1. An empty critique set is a convergence signal, not an error.
//  2. No unresolved high-severity critique, or score at threshold: converged.
//  3. Unresolved critiques with a non-improving score across two consecutive
//     rounds: abort_deadlock.
//  4. Round budget exhausted: escalate_with_warning.
//  5. Otherwise iterate with steering feedback.
func (p Policy) Decide(in DecisionInput) (ModeratorDecision, string) {
	if len(in.Critiques) == 0 {
		return DecisionConverged, ""
	}

	top, _ := HighestSeverity(in.Critiques)
	if !top.AtLeast(SeverityHigh) || in.ConvergenceScore >= p.ConvergenceThreshold {
		return DecisionConverged, ""
	}

	if in.HasPrevRound && p.nonImproving(in.ConvergenceScore, in.PrevScore) {
		return DecisionAbortDeadlock, ""
	}

	if in.Round >= in.MaxRounds {
		return DecisionEscalateWithWarning, ""
	}

	return DecisionIterate, buildFeedback(in.Critiques)
}

func (p Policy) nonImproving(current, prev float64) bool {
	if p.StrictImprovement {
		return current <= prev
	}
	return current < prev
}

// buildFeedback turns the round's critiques into steering guidance for the
// next strategist draft, worst flaws first.
func buildFeedback(critiques []Critique) string {
	var high, rest []string
	for _, c := range critiques {
		line := fmt.Sprintf("[%s/%s] %s", c.Type, c.Severity, c.Description)
		if c.Claim != "" {
			line += fmt.Sprintf(" (claim: %q)", c.Claim)
		}
		if c.Severity.AtLeast(SeverityHigh) {
			high = append(high, line)
		} else {
			rest = append(rest, line)
		}
	}

	var b strings.Builder
	b.WriteString("Address the following issues in your next draft.\n")
	if len(high) > 0 {
		b.WriteString("Must fix:\n")
		for _, l := range high {
			b.WriteString("- " + l + "\n")
		}
	}
	if len(rest) > 0 {
		b.WriteString("Consider:\n")
		for _, l := range rest {
			b.WriteString("- " + l + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
