package activities

import (
	"time"

	"github.com/socraticlabs/tutor-orchestrator/internal/agents"
	"github.com/socraticlabs/tutor-orchestrator/internal/debate"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

// RetrievalInput asks the retrieval stage for context chunks.
type RetrievalInput struct {
	Query     string `json:"query"`
	CourseID  string `json:"course_id"`
	TopK      int    `json:"top_k,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RetrievalOutput carries the merged, scored retrieval results. An empty
// result set is reported through QualityScore, never as an error.
type RetrievalOutput struct {
	Results            []debate.RetrievalResult `json:"results,omitempty"`
	QualityScore       float64                  `json:"quality_score"`
	Strategy           debate.RetrievalStrategy `json:"strategy"`
	SpeculativeQueries []string                 `json:"speculative_queries,omitempty"`
	Success            bool                     `json:"success"`
	ErrorMessage       string                   `json:"error_message,omitempty"`
	ProcessingTime     float64                  `json:"processing_time"`
}

// StrategistInput asks for a new draft.
type StrategistInput struct {
	Query             string                   `json:"query"`
	CoursePrompt      string                   `json:"course_prompt,omitempty"`
	Round             int                      `json:"round"`
	RetrievalResults  []debate.RetrievalResult `json:"retrieval_results,omitempty"`
	ModeratorFeedback string                   `json:"moderator_feedback,omitempty"`
	SessionID         string                   `json:"session_id,omitempty"`
	Temperature       float64                  `json:"temperature,omitempty"`
}

// StrategistOutput carries the new draft plus execution metadata.
type StrategistOutput struct {
	Output agents.Output        `json:"output"`
	Draft  *debate.DraftContent `json:"draft,omitempty"`
}

// CriticInput asks for flaw reports against the current draft.
type CriticInput struct {
	Query       string               `json:"query"`
	Draft       *debate.DraftContent `json:"draft"`
	Round       int                  `json:"round"`
	SessionID   string               `json:"session_id,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
}

// CriticOutput carries the round's critiques. An empty set is a valid
// convergence signal.
type CriticOutput struct {
	Output    agents.Output     `json:"output"`
	Critiques []debate.Critique `json:"critiques,omitempty"`
}

// ModeratorInput asks for a convergence assessment of draft vs critiques.
type ModeratorInput struct {
	Query     string               `json:"query"`
	Draft     *debate.DraftContent `json:"draft"`
	Critiques []debate.Critique    `json:"critiques,omitempty"`
	Round     int                  `json:"round"`
	SessionID string               `json:"session_id,omitempty"`
}

// ModeratorOutput carries the aggregate convergence score and steering
// feedback. The termination decision itself is applied by the workflow's
// policy, which keeps it deterministic and replay-safe.
type ModeratorOutput struct {
	Output           agents.Output `json:"output"`
	ConvergenceScore float64       `json:"convergence_score"`
	Feedback         string        `json:"feedback,omitempty"`
}

// SynthesisInput asks for the final structured answer.
type SynthesisInput struct {
	Query            string                   `json:"query"`
	Draft            *debate.DraftContent     `json:"draft"`
	CritiqueHistory  []debate.Critique        `json:"critique_history,omitempty"`
	Decision         debate.ModeratorDecision `json:"decision"`
	ConvergenceScore float64                  `json:"convergence_score"`
	ZeroRound        bool                     `json:"zero_round,omitempty"`
	ErrorAnnotation  string                   `json:"error_annotation,omitempty"`
	SessionID        string                   `json:"session_id,omitempty"`
}

// SynthesisOutput carries the final answer.
type SynthesisOutput struct {
	Output      agents.Output       `json:"output"`
	FinalAnswer *debate.FinalAnswer `json:"final_answer,omitempty"`
}

// TutorInput asks for the optional pedagogical enrichment pass.
type TutorInput struct {
	Query        string `json:"query"`
	Answer       string `json:"answer"`
	CoursePrompt string `json:"course_prompt,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// TutorOutput carries the enrichment. Failure degrades gracefully: the
// workflow keeps the final answer and drops the enrichment.
type TutorOutput struct {
	Output agents.Output            `json:"output"`
	Tutor  *debate.TutorInteraction `json:"tutor,omitempty"`
}

// EmitTaskUpdateInput is one progress chunk to publish on the event stream.
type EmitTaskUpdateInput struct {
	WorkflowID string           `json:"workflow_id"`
	Status     streaming.Status `json:"status"`
	Stage      string           `json:"stage,omitempty"`
	Message    string           `json:"message,omitempty"`
	Response   interface{}      `json:"response,omitempty"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// SessionUpdateInput records a finished exchange on the session.
type SessionUpdateInput struct {
	SessionID  string  `json:"session_id"`
	Query      string  `json:"query"`
	Answer     string  `json:"answer"`
	TokensUsed int     `json:"tokens_used,omitempty"`
	Rounds     int     `json:"rounds"`
	Decision   string  `json:"decision"`
	Score      float64 `json:"score"`
}

// RecordDebateInput persists the completed debate for audit.
type RecordDebateInput struct {
	WorkflowID       string  `json:"workflow_id"`
	SessionID        string  `json:"session_id"`
	CourseID         string  `json:"course_id"`
	Query            string  `json:"query"`
	Answer           string  `json:"answer"`
	Decision         string  `json:"decision"`
	Rounds           int     `json:"rounds"`
	ConvergenceScore float64 `json:"convergence_score"`
	ProcessingTime   float64 `json:"processing_time"`
}
