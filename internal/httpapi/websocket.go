package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams a workflow's events over a WebSocket.
// GET /stream/ws?workflow_id=<id>&last_event_id=<seq>
func (h *StreamingHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	wf := r.URL.Query().Get("workflow_id")
	if wf == "" {
		http.Error(w, "workflow_id required", http.StatusBadRequest)
		return
	}
	lastID := lastEventID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.mgr.Subscribe(wf, 256)
	defer h.mgr.Unsubscribe(wf, ch)

	// Filter the live loop on the highest replayed seq so events buffered
	// during the replay are not delivered twice.
	written := lastID
	for _, evt := range h.mgr.ReplaySince(wf, lastID) {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
		written = evt.Seq
		if evt.Terminal() {
			return
		}
	}

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Reader pump; client messages are discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if evt.Seq <= written {
				continue
			}
			written = evt.Seq
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.Terminal() {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
