package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
)

func publishFinishedRun(mgr *streaming.Manager, wfID string) {
	mgr.Publish(wfID, streaming.Event{Status: streaming.StatusInProgress, Stage: "retrieving"})
	mgr.Publish(wfID, streaming.Event{Status: streaming.StatusInProgress, Stage: "debating"})
	mgr.Publish(wfID, streaming.Event{Status: streaming.StatusComplete, Stage: "completed"})
}

func TestSSERequiresWorkflowID(t *testing.T) {
	h := NewStreamingHandler(streaming.NewManager(16), nil)
	rec := httptest.NewRecorder()

	h.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream/sse", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEReplaysBacklogAndEndsOnTerminal(t *testing.T) {
	mgr := streaming.NewManager(16)
	publishFinishedRun(mgr, "wf-1")
	h := NewStreamingHandler(mgr, nil)

	rec := httptest.NewRecorder()
	// The terminal event is in the backlog, so the handler returns without
	// blocking on live events.
	h.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream/sse?workflow_id=wf-1", nil))

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "id: 1\n")
	assert.Contains(t, body, "event: in_progress\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"stage":"debating"`)
}

func TestSSEResumesAfterLastEventID(t *testing.T) {
	mgr := streaming.NewManager(16)
	publishFinishedRun(mgr, "wf-1")
	h := NewStreamingHandler(mgr, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/sse?workflow_id=wf-1", nil)
	req.Header.Set("Last-Event-ID", "2")
	rec := httptest.NewRecorder()
	h.handleSSE(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "id: 1\n")
	assert.NotContains(t, body, "id: 2\n")
	assert.Contains(t, body, "id: 3\n")
	assert.Contains(t, body, "event: complete\n")
}

// flushRecorder exposes each flush so a test can publish at exact points in
// the handler's lifecycle.
type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
	onFlush func(n int)
}

func (f *flushRecorder) Flush() {
	f.flushes++
	if f.onFlush != nil {
		f.onFlush(f.flushes)
	}
}

func TestSSEDeliversEachEventOnce(t *testing.T) {
	mgr := streaming.NewManager(16)
	h := NewStreamingHandler(mgr, nil)

	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	rec.onFlush = func(n int) {
		switch n {
		case 1:
			// Between Subscribe and the backlog replay: the event lands in
			// both the replay ring and the subscriber channel.
			mgr.Publish("wf-1", streaming.Event{Status: streaming.StatusInProgress, Stage: "debating"})
		case 2:
			mgr.Publish("wf-1", streaming.Event{Status: streaming.StatusComplete, Stage: "completed"})
		}
	}

	h.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream/sse?workflow_id=wf-1", nil))

	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "id: 1\n"))
	assert.Equal(t, 1, strings.Count(body, "id: 2\n"))
}

func TestSSEErrorEventEndsStream(t *testing.T) {
	mgr := streaming.NewManager(16)
	mgr.Publish("wf-err", streaming.Event{Status: streaming.StatusError, Stage: "failed", Error: "boom"})
	h := NewStreamingHandler(mgr, nil)

	rec := httptest.NewRecorder()
	h.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/stream/sse?workflow_id=wf-err", nil))

	body := rec.Body.String()
	require.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"error":"boom"`)
}
