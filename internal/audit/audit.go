package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Security event types. The set is closed on purpose: consumers alert on
// exact strings.
const (
	TypeEmailVerificationSent  = "email_verification_sent"
	TypeEmailVerified          = "email_verified"
	TypeLoginSuccess           = "login_success"
	TypeLoginFailed            = "login_failed"
	TypeAccountLocked          = "account_locked"
	TypeNewDeviceLogin         = "new_device_login"
	TypeNewIPLogin             = "new_ip_login"
	TypeLogout                 = "logout"
	TypePasswordResetRequested = "password_reset_requested"
	TypePasswordResetCompleted = "password_reset_completed"
)

// Event is one append-only security event. Events are never mutated or
// deleted after emission.
type Event struct {
	Timestamp         time.Time         `json:"timestamp"`
	EventType         string            `json:"event_type"`
	UserID            string            `json:"user_id,omitempty"`
	IP                string            `json:"ip,omitempty"`
	UserAgent         string            `json:"user_agent,omitempty"`
	DeviceFingerprint string            `json:"device_fingerprint,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel.
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
