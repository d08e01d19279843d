package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is the structured audit record emitted for security-relevant
// credential operations.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	IdentityRef string            `json:"identity_ref,omitempty"`
	Handle      string            `json:"handle,omitempty"`
	DeviceID    string            `json:"device_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Event type names emitted by the engine.
const (
	EventLoginSuccess    = "login.success"
	EventLoginFailure    = "login.failure"
	EventLoginLocked     = "login.locked"
	EventRefreshSuccess  = "refresh.success"
	EventRefreshMismatch = "refresh.device_mismatch"
	EventLogout          = "logout"
	EventLogoutAll       = "logout.all"
	EventTokenRevoked    = "token.revoked"
	EventPasswordChanged = "password.changed"
	EventAccountLocked   = "account.locked"
	EventAccountUnlocked = "account.unlocked"
	EventLoginGranted    = "login.granted"
	EventLoginRevoked    = "login.revoked"
)

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
