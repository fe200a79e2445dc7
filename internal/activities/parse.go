package activities

import (
	"encoding/json"
	"strings"

	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
)

// extractJSON pulls the first JSON object or array out of an LLM completion,
// tolerating markdown fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	objStart := strings.IndexAny(s, "{[")
	if objStart < 0 {
		return ""
	}
	open := s[objStart]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := objStart; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[objStart : i+1]
			}
		}
	}
	return ""
}

type critiquePayload struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	StepRef     int    `json:"step_ref,omitempty"`
	Claim       string `json:"claim,omitempty"`
}

// parseCritiques decodes the critic's completion into structured critiques.
// A completion that declares no issues yields an empty set. A completion
// that cannot be parsed yields a single medium-severity placeholder so the
// signal is not silently lost (medium does not block convergence).
func parseCritiques(text string) []debate.Critique {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if trimmed == "" || strings.HasPrefix(upper, "NO_ISSUES") || strings.HasPrefix(upper, "NO ISSUES") {
		return nil
	}

	raw := extractJSON(trimmed)
	if raw != "" {
		var payload []critiquePayload
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			out := make([]debate.Critique, 0, len(payload))
			for _, p := range payload {
				out = append(out, debate.Critique{
					Type:        normalizeCritiqueType(p.Type),
					Severity:    normalizeSeverity(p.Severity),
					Description: p.Description,
					StepRef:     p.StepRef,
					Claim:       p.Claim,
				})
			}
			return out
		}
		// Single-object form
		var one critiquePayload
		if err := json.Unmarshal([]byte(raw), &one); err == nil && one.Description != "" {
			return []debate.Critique{{
				Type:        normalizeCritiqueType(one.Type),
				Severity:    normalizeSeverity(one.Severity),
				Description: one.Description,
				StepRef:     one.StepRef,
				Claim:       one.Claim,
			}}
		}
	}

	return []debate.Critique{{
		Type:        debate.CritiqueLogicFlaw,
		Severity:    debate.SeverityMedium,
		Description: "unstructured critique: " + snippet(trimmed, 200),
	}}
}

func normalizeCritiqueType(s string) debate.CritiqueType {
	switch debate.CritiqueType(strings.ToLower(strings.TrimSpace(s))) {
	case debate.CritiqueFactContradiction:
		return debate.CritiqueFactContradiction
	case debate.CritiqueHallucination:
		return debate.CritiqueHallucination
	case debate.CritiqueCalculationError:
		return debate.CritiqueCalculationError
	default:
		return debate.CritiqueLogicFlaw
	}
}

func normalizeSeverity(s string) debate.Severity {
	switch debate.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case debate.SeverityLow:
		return debate.SeverityLow
	case debate.SeverityHigh:
		return debate.SeverityHigh
	case debate.SeverityCritical:
		return debate.SeverityCritical
	default:
		return debate.SeverityMedium
	}
}

type draftPayload struct {
	Content        string `json:"content"`
	ChainOfThought []struct {
		Step       int     `json:"step"`
		Thought    string  `json:"thought"`
		Confidence float64 `json:"confidence"`
	} `json:"chain_of_thought"`
}

// parseDraft decodes the strategist's completion. Unstructured completions
// become a draft with the whole text as content and a single reasoning step.
func parseDraft(text string) (string, []debate.ReasoningStep) {
	raw := extractJSON(text)
	if raw != "" {
		var p draftPayload
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.Content != "" {
			steps := make([]debate.ReasoningStep, 0, len(p.ChainOfThought))
			for i, st := range p.ChainOfThought {
				step := st.Step
				if step == 0 {
					step = i + 1
				}
				steps = append(steps, debate.ReasoningStep{Step: step, Thought: st.Thought, Confidence: st.Confidence})
			}
			return p.Content, steps
		}
	}
	return strings.TrimSpace(text), []debate.ReasoningStep{{Step: 1, Thought: "direct answer", Confidence: 0.5}}
}

type moderatorPayload struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// parseModeration decodes the moderator's completion; ok is false when the
// completion carries no usable score.
func parseModeration(text string) (moderatorPayload, bool) {
	raw := extractJSON(text)
	if raw == "" {
		return moderatorPayload{}, false
	}
	var p moderatorPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return moderatorPayload{}, false
	}
	if p.Score < 0 {
		p.Score = 0
	}
	if p.Score > 1 {
		p.Score = 1
	}
	return p, true
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
