package workflows

// TaskInput is one student query submitted to the debate workflow.
type TaskInput struct {
	Query        string `json:"query"`
	CourseID     string `json:"course_id"`
	SessionID    string `json:"session_id,omitempty"`
	CoursePrompt string `json:"course_prompt,omitempty"`

	// MaxRounds overrides the debate round budget. Nil means the default;
	// an explicit 0 skips the debate entirely and ships the first draft
	// flagged as unreviewed.
	MaxRounds *int `json:"max_rounds,omitempty"`

	// ConvergenceThreshold overrides the acceptance score; <=0 means the
	// default.
	ConvergenceThreshold float64 `json:"convergence_threshold,omitempty"`

	// StrictImprovement loosens the deadlock comparison when explicitly set
	// to false by the caller along with StrictImprovementSet.
	StrictImprovement    bool `json:"strict_improvement,omitempty"`
	StrictImprovementSet bool `json:"strict_improvement_set,omitempty"`

	// SkipTutoring disables the pedagogical enrichment pass.
	SkipTutoring bool `json:"skip_tutoring,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TaskResult is the workflow's final response.
type TaskResult struct {
	Success      bool                   `json:"success"`
	Answer       string                 `json:"answer,omitempty"`
	Caveat       string                 `json:"caveat,omitempty"`
	Tutoring     interface{}            `json:"tutoring,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

const (
	defaultMaxRounds            = 3
	defaultConvergenceThreshold = 0.7
)
