package authcore

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one security-relevant occurrence emitted by the engine.
// Events describe outcomes, never secrets: no passwords, codes, or token
// values appear in them.
type AuditEvent struct {
	Timestamp time.Time         `json:"ts"`
	EventType string            `json:"event"`
	Success   bool              `json:"success"`
	UserID    string            `json:"user_id,omitempty"`
	TenantID  string            `json:"tenant_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher goroutine. Write
// is called from a single goroutine, but it must not block for long: a slow
// sink backs up the buffer and, with DropIfFull set, loses events.
type AuditSink interface {
	Write(event AuditEvent)
}

// NoOpSink discards every event. It is the default sink.
type NoOpSink struct{}

func (NoOpSink) Write(AuditEvent) {}

// ChannelSink forwards events to a caller-owned channel, dropping events
// when the channel is full.
type ChannelSink struct {
	C chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Write(event AuditEvent) {
	select {
	case s.C <- event:
	default:
	}
}

// JSONWriterSink writes one JSON object per line to an io.Writer. It is
// safe for use with a writer shared across sinks.
type JSONWriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONWriterSink creates a sink that streams newline-delimited JSON
// events to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Write(event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Encode errors are swallowed: audit output must never fail the auth
	// path, and there is no caller to report to from the dispatcher.
	_ = s.enc.Encode(event)
}

// MultiSink fans each event out to every child sink in order.
type MultiSink struct {
	Sinks []AuditSink
}

func (s *MultiSink) Write(event AuditEvent) {
	for _, child := range s.Sinks {
		child.Write(event)
	}
}
