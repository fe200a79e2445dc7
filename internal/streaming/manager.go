package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
)

// Status is the progress-chunk status consumers key off.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Event is one progress chunk for a debate session. A stream carries zero or
// more in_progress events followed by exactly one terminal event.
type Event struct {
	WorkflowID string      `json:"workflow_id"`
	Status     Status      `json:"status"`
	Stage      string      `json:"stage,omitempty"`
	Message    string      `json:"message,omitempty"`
	Response   interface{} `json:"response,omitempty"`
	Error      string      `json:"error,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Seq        uint64      `json:"seq"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

// Marshal returns the event as JSON for SSE/WS payloads.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides per-workflow pub/sub with a bounded replay ring.
// Publishing is non-blocking; slow subscribers drop events rather than stall
// the producer. An optional redis client mirrors events for consumers on
// other instances.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
	mirror      *redis.Client
}

// NewManager creates a manager with the given ring capacity per workflow.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// WithRedisMirror enables best-effort mirroring of published events to a
// redis list per workflow, trimmed to ring capacity.
func (m *Manager) WithRedisMirror(rdb *redis.Client) *Manager {
	m.mirror = rdb
	return m
}

// Subscribe registers a buffered channel for a workflow's events. The caller
// must drain it and call Unsubscribe when done.
func (m *Manager) Subscribe(workflowID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[workflowID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[workflowID] = subs
	}
	subs[ch] = struct{}{}
	ometrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (m *Manager) Unsubscribe(workflowID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[workflowID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
			ometrics.StreamSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(m.subscribers, workflowID)
		}
	}
}

// Publish assigns a sequence number, records the event in the replay ring,
// and fans it out to subscribers without blocking. The fan-out runs under the
// lock: Unsubscribe closes channels while holding it, so sending outside the
// lock would race a close.
func (m *Manager) Publish(workflowID string, evt Event) {
	evt.WorkflowID = workflowID

	m.mu.Lock()
	rg := m.history[workflowID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[workflowID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	for ch := range m.subscribers[workflowID] {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; it can recover via ReplaySince.
		}
	}
	m.mu.Unlock()

	ometrics.StreamEventsPublished.WithLabelValues(string(evt.Status)).Inc()

	if m.mirror != nil {
		go m.mirrorEvent(workflowID, evt)
	}
}

func (m *Manager) mirrorEvent(workflowID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := "stream:" + workflowID
	pipe := m.mirror.Pipeline()
	pipe.RPush(ctx, key, evt.Marshal())
	pipe.LTrim(ctx, key, int64(-m.capacity), -1)
	pipe.Expire(ctx, key, time.Hour)
	_, _ = pipe.Exec(ctx)
}

// ReplaySince returns buffered events with Seq > since, best-effort within
// ring capacity. Used for SSE Last-Event-ID resumption.
func (m *Manager) ReplaySince(workflowID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[workflowID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Drop discards a workflow's replay history once the stream is finished and
// all consumers are gone.
func (m *Manager) Drop(workflowID string) {
	m.mu.Lock()
	delete(m.history, workflowID)
	m.mu.Unlock()
}

// ring is a fixed-capacity event buffer with monotonically increasing seq.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		e := r.buf[(r.start+i)%len(r.buf)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}
