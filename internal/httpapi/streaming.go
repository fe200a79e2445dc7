package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

// StreamingHandler serves the progress-event stream over SSE and WebSocket.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers the stream endpoints on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream/sse", h.handleSSE)
	mux.HandleFunc("/stream/ws", h.handleWS)
}

// handleSSE streams a workflow's events via Server-Sent Events.
// GET /stream/sse?workflow_id=<id>
// The stream ends after the terminal event. Reconnecting clients resume via
// the Last-Event-ID header (or last_event_id query param).
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	wf := r.URL.Query().Get("workflow_id")
	if wf == "" {
		http.Error(w, `{"error":"workflow_id required"}`, http.StatusBadRequest)
		return
	}
	lastID := lastEventID(r)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(wf, 256)
	defer h.mgr.Unsubscribe(wf, ch)

	fmt.Fprintf(w, ": connected to workflow %s\n\n", wf)
	flusher.Flush()

	// Replay backlog, best-effort within ring capacity. A terminal event in
	// the backlog ends the stream immediately. Events published between
	// Subscribe and the replay land in both the backlog and the channel, so
	// the live loop filters on the highest seq already written.
	written := lastID
	for _, evt := range h.mgr.ReplaySince(wf, lastID) {
		writeSSE(w, evt)
		written = evt.Seq
		if evt.Terminal() {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("workflow_id", wf))
			return
		case evt := <-ch:
			if evt.Seq <= written {
				continue
			}
			written = evt.Seq
			writeSSE(w, evt)
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		case <-hb.C:
			// Keeps the connection alive through proxies.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	if evt.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", evt.Seq)
	}
	fmt.Fprintf(w, "event: %s\n", evt.Status)
	fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
}

func lastEventID(r *http.Request) uint64 {
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			return n
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
