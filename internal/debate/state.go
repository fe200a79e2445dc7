package debate

import (
	"fmt"
	"time"
)

// WorkflowStatus tracks the pipeline stage for one query session.
// Statuses are ordered; a session never moves backward.
type WorkflowStatus string

const (
	StatusRetrieving   WorkflowStatus = "retrieving"
	StatusDebating     WorkflowStatus = "debating"
	StatusSynthesizing WorkflowStatus = "synthesizing"
	StatusTutoring     WorkflowStatus = "tutoring"
	StatusCompleted    WorkflowStatus = "completed"
	StatusFailed       WorkflowStatus = "failed"
)

var statusRank = map[WorkflowStatus]int{
	StatusRetrieving:   0,
	StatusDebating:     1,
	StatusSynthesizing: 2,
	StatusTutoring:     3,
	StatusCompleted:    4,
	// Failed is absorbing and reachable from any stage.
	StatusFailed: 5,
}

// Rank returns the position of the status in the stage order.
// Unknown statuses rank below everything so they never mask a real stage.
func (s WorkflowStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Before reports whether s precedes other in the stage order.
func (s WorkflowStatus) Before(other WorkflowStatus) bool {
	return s.Rank() < other.Rank()
}

// ModeratorDecision is the outcome of one moderator evaluation.
type ModeratorDecision string

const (
	DecisionPending             ModeratorDecision = "pending"
	DecisionConverged           ModeratorDecision = "converged"
	DecisionIterate             ModeratorDecision = "iterate"
	DecisionAbortDeadlock       ModeratorDecision = "abort_deadlock"
	DecisionEscalateWithWarning ModeratorDecision = "escalate_with_warning"
)

// Terminal reports whether the decision ends the debate loop.
func (d ModeratorDecision) Terminal() bool {
	switch d {
	case DecisionConverged, DecisionAbortDeadlock, DecisionEscalateWithWarning:
		return true
	}
	return false
}

// RetrievalStrategy tags how the retrieval results were obtained.
type RetrievalStrategy string

const (
	RetrievalInitial     RetrievalStrategy = "initial"
	RetrievalSpeculative RetrievalStrategy = "speculative"
	RetrievalExpanded    RetrievalStrategy = "expanded"
)

// CritiqueType classifies the kind of flaw the critic found.
type CritiqueType string

const (
	CritiqueLogicFlaw         CritiqueType = "logic_flaw"
	CritiqueFactContradiction CritiqueType = "fact_contradiction"
	CritiqueHallucination     CritiqueType = "hallucination"
	CritiqueCalculationError  CritiqueType = "calculation_error"
)

// Severity grades how damaging a critique is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal of the severity (low=0 .. critical=3).
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return 0
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Critique is a structured flaw report against the current draft.
type Critique struct {
	Type        CritiqueType `json:"type"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
	StepRef     int          `json:"step_ref,omitempty"`
	Claim       string       `json:"claim,omitempty"`
}

// ReasoningStep is one entry in the strategist's chain of thought.
type ReasoningStep struct {
	Step       int     `json:"step"`
	Thought    string  `json:"thought"`
	Confidence float64 `json:"confidence"`
}

// DraftContent is the strategist's candidate answer plus its reasoning trace.
type DraftContent struct {
	DraftID        string          `json:"draft_id"`
	Content        string          `json:"content"`
	ChainOfThought []ReasoningStep `json:"chain_of_thought,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// RetrievalResult is one scored chunk returned by the retrieval capability.
type RetrievalResult struct {
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
	Source   string                 `json:"source,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// LogEntry is one append-only execution-log record for audit/debugging.
type LogEntry struct {
	Round     int       `json:"round"`
	Agent     string    `json:"agent"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// FinalAnswer is the structured output of the synthesis stage.
type FinalAnswer struct {
	Answer          string  `json:"answer"`
	Confidence      float64 `json:"confidence"`
	Caveat          string  `json:"caveat,omitempty"`
	ErrorAnnotation string  `json:"error_annotation,omitempty"`
	ZeroRound       bool    `json:"zero_round,omitempty"`
}

// TutorInteraction is the optional pedagogical enrichment of the final answer.
type TutorInteraction struct {
	Explanation   string   `json:"explanation"`
	StudyHints    []string `json:"study_hints,omitempty"`
	FollowUps     []string `json:"follow_ups,omitempty"`
	GeneratedFrom string   `json:"generated_from,omitempty"`
}

// WorkflowState is the single record threaded through one query session.
// It is exclusively owned by the in-flight workflow run; stages receive it,
// mutate their slice of it, and hand it forward. It never escapes the run
// except via emitted events and the final response.
type WorkflowState struct {
	// Identity
	Query        string `json:"query"`
	CourseID     string `json:"course_id"`
	SessionID    string `json:"session_id"`
	CoursePrompt string `json:"course_prompt,omitempty"`

	// Retrieval
	RetrievalResults      []RetrievalResult `json:"retrieval_results,omitempty"`
	RetrievalQualityScore float64           `json:"retrieval_quality_score"`
	RetrievalStrategy     RetrievalStrategy `json:"retrieval_strategy,omitempty"`
	SpeculativeQueries    []string          `json:"speculative_queries,omitempty"`

	// Debate
	CurrentRound      int               `json:"current_round"`
	MaxRounds         int               `json:"max_rounds"`
	Draft             *DraftContent     `json:"draft,omitempty"`
	Critiques         []Critique        `json:"critiques,omitempty"`
	ModeratorDecision ModeratorDecision `json:"moderator_decision"`
	ModeratorFeedback string            `json:"moderator_feedback,omitempty"`
	ConvergenceScore  float64           `json:"convergence_score"`

	// Output
	FinalAnswer      *FinalAnswer      `json:"final_answer,omitempty"`
	TutorInteraction *TutorInteraction `json:"tutor_interaction,omitempty"`

	// Bookkeeping
	ConversationHistory []LogEntry         `json:"conversation_history,omitempty"`
	ProcessingTimes     map[string]float64 `json:"processing_times,omitempty"`
	ErrorMessages       []string           `json:"error_messages,omitempty"`
	WorkflowStatus      WorkflowStatus     `json:"workflow_status"`
	ShouldContinue      bool               `json:"should_continue"`
}

// NewWorkflowState creates the session state for one query invocation.
func NewWorkflowState(query, courseID, sessionID, coursePrompt string, maxRounds int) *WorkflowState {
	return &WorkflowState{
		Query:             query,
		CourseID:          courseID,
		SessionID:         sessionID,
		CoursePrompt:      coursePrompt,
		MaxRounds:         maxRounds,
		ModeratorDecision: DecisionPending,
		WorkflowStatus:    StatusRetrieving,
		ProcessingTimes:   make(map[string]float64),
		ShouldContinue:    true,
	}
}

// Advance moves the session to the next stage. Transitions are monotonic:
// moving to an earlier stage is an error, except that Failed is reachable
// from anywhere.
func (s *WorkflowState) Advance(next WorkflowStatus) error {
	if next == StatusFailed {
		s.WorkflowStatus = StatusFailed
		s.ShouldContinue = false
		return nil
	}
	if next.Rank() < s.WorkflowStatus.Rank() {
		return fmt.Errorf("workflow status cannot move backward: %s -> %s", s.WorkflowStatus, next)
	}
	s.WorkflowStatus = next
	return nil
}

// AppendLog records an execution-log entry in strict execution order.
func (s *WorkflowState) AppendLog(agent, summary string, at time.Time) {
	s.ConversationHistory = append(s.ConversationHistory, LogEntry{
		Round:     s.CurrentRound,
		Agent:     agent,
		Summary:   summary,
		Timestamp: at,
	})
}

// AddProcessingTime accumulates wall time spent in an agent, in seconds.
func (s *WorkflowState) AddProcessingTime(agent string, seconds float64) {
	if s.ProcessingTimes == nil {
		s.ProcessingTimes = make(map[string]float64)
	}
	s.ProcessingTimes[agent] += seconds
}

// RecordError appends an error message without terminating the session.
func (s *WorkflowState) RecordError(msg string) {
	s.ErrorMessages = append(s.ErrorMessages, msg)
}

// TotalProcessingTime sums the per-agent processing times, in seconds.
func (s *WorkflowState) TotalProcessingTime() float64 {
	var total float64
	for _, v := range s.ProcessingTimes {
		total += v
	}
	return total
}

// HighestSeverity returns the most severe critique grade in the given set,
// or false if the set is empty.
func HighestSeverity(critiques []Critique) (Severity, bool) {
	if len(critiques) == 0 {
		return "", false
	}
	top := critiques[0].Severity
	for _, c := range critiques[1:] {
		if c.Severity.Rank() > top.Rank() {
			top = c.Severity
		}
	}
	return top, true
}
