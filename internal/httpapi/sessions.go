package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/session"
)

// SessionHandler exposes session lifecycle endpoints.
type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers the session endpoints on the provided mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", h.handleCreate)
	mux.HandleFunc("/sessions/", h.handleGet)
}

type createSessionRequest struct {
	CourseID     string `json:"course_id"`
	CoursePrompt string `json:"course_prompt,omitempty"`
}

// handleCreate allocates a new session.
// POST /sessions
func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.CourseID) == "" {
		writeJSONError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	s, err := h.sessions.Create(r.Context(), req.CourseID, req.CoursePrompt)
	if err != nil {
		h.logger.Error("Session create failed", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// handleGet loads a session with its exchange history.
// GET /sessions/{id}
func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		return
	}

	s, err := h.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("Session load failed", zap.String("session_id", id), zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
