package logger

import (
	"time"

	"github.com/elastic/go-elasticsearch/v7"
)

const (
	MetricsIndex = "paydash_agent_logs"

	// Pipeline phases
	PhaseSummarize = "summarize"
	PhaseCombine   = "combine"

	// LogType constants — identify the reporting site for ES filtering.
	// Fine-grained per-phase progress goes through internal/events; the
	// metrics reporter only carries run-level outcomes.
	LTCombinedOutput = "summarize.combined_output" // final combined report
)

// MetricsEvent is the instrumentation document written to ES.
type MetricsEvent struct {
	Timestamp  time.Time   `json:"@timestamp"`
	LogType    string      `json:"log_type"`              // reporting site, e.g. "summarize.combined_output"
	Phase      string      `json:"phase"`                 // pipeline phase
	Event      string      `json:"event"`                 // event subtype
	ItemCount  int         `json:"item_count,omitempty"`  // records in scope
	TokenCount int         `json:"token_count,omitempty"` // measured tokens
	DurationMs int64       `json:"duration_ms,omitempty"` // elapsed milliseconds
	Error      string      `json:"error,omitempty"`       // error message
	Detail     interface{} `json:"detail,omitempty"`      // extra payload
}

// Metrics reports instrumentation events to ES.
type Metrics struct {
	es    *elasticsearch.Client
	index string
}

// NewMetrics creates a reporter; with a nil client every Emit is silently skipped.
func NewMetrics(es *elasticsearch.Client) *Metrics {
	return &Metrics{es: es, index: MetricsIndex}
}

// Emit reports one event; a write failure only warns, never blocks the pipeline.
func (m *Metrics) Emit(evt MetricsEvent) {
	if m == nil || m.es == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	logType := evt.LogType
	if logType == "" {
		logType = evt.Phase + "." + evt.Event
	}
	if err := SendWrappedLog(m.es, m.index, logType, evt); err != nil {
		Warnf("[Metrics] ES write failed (log_type=%s): %v", logType, err)
	}
}

// Timer measures elapsed time for instrumentation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ElapsedMs() int64 {
	return time.Since(t.start).Milliseconds()
}
