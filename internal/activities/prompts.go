package activities

import (
	"fmt"
	"strings"

	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
)

func buildStrategistPrompt(in StrategistInput) string {
	var b strings.Builder
	if in.CoursePrompt != "" {
		b.WriteString(in.CoursePrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("You are the strategist in an answer-refinement debate. ")
	b.WriteString("Draft the best possible answer to the student's question and show your reasoning.\n\n")

	if len(in.RetrievalResults) > 0 {
		b.WriteString("Course material:\n")
		for i, r := range in.RetrievalResults {
			fmt.Fprintf(&b, "[%d] (score %.2f) %s\n", i+1, r.Score, r.Content)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No course material was retrieved; answer from general knowledge and say so.\n\n")
	}

	if in.ModeratorFeedback != "" {
		fmt.Fprintf(&b, "Feedback on your previous draft (round %d):\n%s\n\n", in.Round-1, in.ModeratorFeedback)
	}

	fmt.Fprintf(&b, "Question: %s\n\n", in.Query)
	b.WriteString(`Respond with JSON: {"content": "<answer>", "chain_of_thought": [{"step": 1, "thought": "...", "confidence": 0.0-1.0}]}`)
	return b.String()
}

func buildCriticPrompt(in CriticInput) string {
	var b strings.Builder
	b.WriteString("You are the critic in an answer-refinement debate. ")
	b.WriteString("Find concrete flaws in the draft below. Be literal and conservative; do not invent problems.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nDraft:\n%s\n", in.Query, in.Draft.Content)

	if len(in.Draft.ChainOfThought) > 0 {
		b.WriteString("\nReasoning steps:\n")
		for _, s := range in.Draft.ChainOfThought {
			fmt.Fprintf(&b, "%d. %s (confidence %.2f)\n", s.Step, s.Thought, s.Confidence)
		}
	}

	b.WriteString("\nRespond with a JSON array of critiques, each ")
	b.WriteString(`{"type": "logic_flaw|fact_contradiction|hallucination|calculation_error", "severity": "low|medium|high|critical", "description": "...", "step_ref": <step or 0>, "claim": "<quoted claim, optional>"}. `)
	b.WriteString("If the draft has no flaws, respond with exactly NO_ISSUES.")
	return b.String()
}

func buildModeratorPrompt(in ModeratorInput) string {
	var b strings.Builder
	b.WriteString("You are the moderator in an answer-refinement debate. ")
	b.WriteString("Score how acceptable the draft is given the critiques, from 0.0 (unusable) to 1.0 (ready to ship), ")
	b.WriteString("and give one short paragraph of steering feedback for the next draft.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nDraft:\n%s\n\nCritiques:\n", in.Query, in.Draft.Content)
	for _, c := range in.Critiques {
		fmt.Fprintf(&b, "- [%s/%s] %s\n", c.Type, c.Severity, c.Description)
	}
	b.WriteString("\nRespond with JSON: {\"score\": 0.0-1.0, \"feedback\": \"...\"}")
	return b.String()
}

func buildSynthesisPrompt(in SynthesisInput) string {
	var b strings.Builder
	b.WriteString("You are finalizing the answer produced by an answer-refinement debate. ")
	b.WriteString("Polish the accepted draft into a clear final answer for a student. ")
	b.WriteString("Resolve any low-severity critiques listed below where possible; do not add new claims.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nAccepted draft:\n%s\n", in.Query, in.Draft.Content)
	if len(in.CritiqueHistory) > 0 {
		b.WriteString("\nCritique history:\n")
		for _, c := range in.CritiqueHistory {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", c.Type, c.Severity, c.Description)
		}
	}
	return b.String()
}

func buildTutorPrompt(in TutorInput) string {
	var b strings.Builder
	if in.CoursePrompt != "" {
		b.WriteString(in.CoursePrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("You are a tutor. Given the question and the final answer, add pedagogical framing: ")
	b.WriteString("a short intuitive explanation, up to three study hints, and up to three follow-up questions.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:\n%s\n\n", in.Query, in.Answer)
	b.WriteString(`Respond with JSON: {"explanation": "...", "study_hints": ["..."], "follow_ups": ["..."]}`)
	return b.String()
}

func buildSpeculativePrompt(query string, n int) string {
	return fmt.Sprintf(
		"The search query %q returned low-quality results from the course material. "+
			"Write %d alternative phrasings that might match the material better. "+
			"Respond with a JSON array of strings.", query, n)
}

// decisionCaveat maps a termination decision to the caveat carried on the
// final answer.
func decisionCaveat(d debate.ModeratorDecision) string {
	switch d {
	case debate.DecisionAbortDeadlock:
		return "The review process could not resolve all concerns about this answer; treat it with reduced confidence."
	case debate.DecisionEscalateWithWarning:
		return "The review process reached its round limit before all concerns were resolved; verify critical details independently."
	default:
		return ""
	}
}
