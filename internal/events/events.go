package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted by the response-size governor.
const (
	TypeSummarizeStarted    = "summarize.started"
	TypeSummarizeNormalized = "summarize.normalized"
	TypeSummarizeDirect     = "summarize.direct"
	TypeSummarizeChunking   = "summarize.chunking"
	TypeChunkCompleted      = "chunk.completed"
	TypeSummarizeCombined   = "summarize.combined"
	TypeSummarizeCompleted  = "summarize.completed"
	TypeSummarizeTimeout    = "summarize.timeout"
	TypeSummarizeError      = "summarize.error"
)

// Event is the unified event structure sent to consumers (CLI printer, ES
// shipper, etc.). Data is a json.RawMessage so consumers can decode it based
// on Type.
type Event struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates an Event, marshaling data to JSON. If marshaling fails, data is set to null.
func NewEvent(eventType string, runID string, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("null")
	}
	return Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      raw,
	}
}

// --- Typed event data structs ---

type StartedData struct {
	Query string `json:"query"`
}

type NormalizedData struct {
	Tokens int `json:"tokens"`
	Items  int `json:"items"`
}

type ChunkingData struct {
	Chunks     int `json:"chunks"`
	TotalItems int `json:"total_items"`
}

type ChunkCompletedData struct {
	ChunkNumber  int   `json:"chunk_number"`
	ItemsInChunk int   `json:"items_in_chunk"`
	ActiveItems  int   `json:"active_items"`
	DurationMs   int64 `json:"duration_ms"`
}

type CompletedData struct {
	Strategy    string `json:"strategy"`
	TotalItems  int    `json:"total_items"`
	ActiveItems int    `json:"active_items"`
	Chunks      int    `json:"chunks"`
	DurationMs  int64  `json:"duration_ms"`
}

type ErrorData struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// --- Emitter interface and channel-based implementation ---

// Emitter is the interface for publishing events. Implementations may push to
// a channel, write to ES, or stream via SSE.
type Emitter interface {
	Emit(event Event)
	Subscribe() <-chan Event
	Close()
}

// ChannelEmitter is a buffered channel-based Emitter.
type ChannelEmitter struct {
	bufSize int
	subs    []chan Event
	mu      sync.RWMutex
	closed  bool
}

// NewChannelEmitter creates a new emitter with the given per-subscriber buffer size.
func NewChannelEmitter(bufSize int) *ChannelEmitter {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &ChannelEmitter{bufSize: bufSize}
}

// Emit publishes an event to all subscribers. Non-blocking: drops if subscriber is full.
func (e *ChannelEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, sub := range e.subs {
		select {
		case sub <- event:
		default:
			// drop if subscriber can't keep up
		}
	}
}

// Subscribe returns a channel that receives all emitted events.
func (e *ChannelEmitter) Subscribe() <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan Event, e.bufSize)
	e.subs = append(e.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, sub := range e.subs {
		close(sub)
	}
}

// NopEmitter is a no-op emitter for when event reporting is not needed.
type NopEmitter struct{}

func (NopEmitter) Emit(Event)              {}
func (NopEmitter) Subscribe() <-chan Event { return make(chan Event) }
func (NopEmitter) Close()                  {}
