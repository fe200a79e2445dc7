package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/config"
	"github.com/socraticlabs/tutor-orchestrator/internal/constants"
	"github.com/socraticlabs/tutor-orchestrator/internal/metrics"
	"github.com/socraticlabs/tutor-orchestrator/internal/session"
	"github.com/socraticlabs/tutor-orchestrator/internal/workflows"
)

// WorkflowStarter is the slice of the temporal client the task API needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun
}

// SessionCreator allocates a session for requests that omit session_id.
type SessionCreator interface {
	Create(ctx context.Context, courseID, coursePrompt string) (*session.Session, error)
}

// TaskHandler accepts student queries and hands them to the debate workflow.
// Debate knobs not set on the request are filled from the live configuration,
// so hot-reloaded policy changes apply to new submissions without a restart.
type TaskHandler struct {
	temporal WorkflowStarter
	sessions SessionCreator
	cfg      func() *config.Features
	logger   *zap.Logger
}

func NewTaskHandler(temporal WorkflowStarter, sessions SessionCreator, cfg func() *config.Features, logger *zap.Logger) *TaskHandler {
	if cfg == nil {
		cfg = func() *config.Features { return config.Defaults() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{temporal: temporal, sessions: sessions, cfg: cfg, logger: logger}
}

// RegisterRoutes registers the task endpoints on the provided mux.
func (h *TaskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", h.handleSubmit)
	mux.HandleFunc("/tasks/", h.handleResult)
}

type submitRequest struct {
	Query                string  `json:"query"`
	CourseID             string  `json:"course_id"`
	SessionID            string  `json:"session_id,omitempty"`
	CoursePrompt         string  `json:"course_prompt,omitempty"`
	MaxRounds            *int    `json:"max_rounds,omitempty"`
	ConvergenceThreshold float64 `json:"convergence_threshold,omitempty"`
	SkipTutoring         bool    `json:"skip_tutoring,omitempty"`
}

type submitResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	SessionID  string `json:"session_id"`
	StreamURL  string `json:"stream_url"`
}

// handleSubmit starts one debate workflow.
// POST /tasks
func (h *TaskHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	if strings.TrimSpace(req.CourseID) == "" {
		writeJSONError(w, http.StatusBadRequest, "course_id is required")
		return
	}
	if req.MaxRounds != nil && *req.MaxRounds < 0 {
		writeJSONError(w, http.StatusBadRequest, "max_rounds must be >= 0")
		return
	}

	// A request without a session gets a server-generated one, so follow-up
	// queries can carry context from the first.
	sessionID := req.SessionID
	if sessionID == "" {
		if h.sessions != nil {
			s, err := h.sessions.Create(r.Context(), req.CourseID, req.CoursePrompt)
			if err != nil {
				h.logger.Error("Session create failed", zap.Error(err))
				writeJSONError(w, http.StatusServiceUnavailable, "could not create session")
				return
			}
			sessionID = s.ID
		} else {
			sessionID = uuid.New().String()
		}
	}

	live := h.cfg()
	maxRounds := req.MaxRounds
	if maxRounds == nil {
		rounds := live.Debate.MaxRounds
		maxRounds = &rounds
	}
	threshold := req.ConvergenceThreshold
	if threshold <= 0 {
		threshold = live.Debate.ConvergenceThreshold
	}
	skipTutoring := req.SkipTutoring || !live.Debate.TutoringEnabled

	wfID := "debate-" + uuid.New().String()
	run, err := h.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        wfID,
		TaskQueue: constants.TaskQueue,
	}, workflows.DebateWorkflow, workflows.TaskInput{
		Query:                req.Query,
		CourseID:             req.CourseID,
		SessionID:            sessionID,
		CoursePrompt:         req.CoursePrompt,
		MaxRounds:            maxRounds,
		ConvergenceThreshold: threshold,
		StrictImprovement:    live.Debate.StrictImprovement,
		StrictImprovementSet: true,
		SkipTutoring:         skipTutoring,
	})
	if err != nil {
		h.logger.Error("Workflow start failed", zap.String("workflow_id", wfID), zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not start task")
		return
	}
	metrics.DebatesStarted.Inc()

	h.logger.Info("Debate task submitted",
		zap.String("workflow_id", wfID),
		zap.String("course_id", req.CourseID),
		zap.String("session_id", sessionID),
	)
	writeJSON(w, http.StatusAccepted, submitResponse{
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
		SessionID:  sessionID,
		StreamURL:  "/stream/sse?workflow_id=" + run.GetID(),
	})
}

// handleResult blocks until the workflow finishes and returns its result.
// GET /tasks/{workflow_id}
func (h *TaskHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wfID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if wfID == "" || strings.Contains(wfID, "/") {
		writeJSONError(w, http.StatusNotFound, "unknown task")
		return
	}

	run := h.temporal.GetWorkflow(r.Context(), wfID, "")
	var result workflows.TaskResult
	if err := run.Get(r.Context(), &result); err != nil {
		writeJSON(w, http.StatusOK, workflows.TaskResult{
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
