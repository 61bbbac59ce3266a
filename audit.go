package authcore

import (
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// AuditEvent is a structured audit record emitted by the Service.
type AuditEvent struct {
	Time      time.Time         `json:"time"`
	Kind      string            `json:"kind"`
	Success   bool              `json:"success"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Error     string            `json:"error,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

const (
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterDuplicate      = "register_duplicate"
	auditEventRegisterFailure        = "register_failure"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshFailure         = "refresh_failure"
	auditEventLogout                 = "logout"
	auditEventSessionRevoked         = "session_revoked"
	auditEventSessionsRevokedAll     = "sessions_revoked_all"
	auditEventPasswordChanged        = "password_changed"
	auditEventPasswordResetRequested = "password_reset_requested"
	auditEventPasswordResetConfirmed = "password_reset_confirmed"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventTwoFactorSetupStarted  = "two_factor_setup_started"
	auditEventTwoFactorEnabled       = "two_factor_enabled"
	auditEventTwoFactorDisabled      = "two_factor_disabled"
	auditEventTwoFactorFailure       = "two_factor_failure"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodesRegenerated = "backup_codes_regenerated"
)

// AuditSink receives events from the Service's async dispatcher.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Emit(event AuditEvent)
}

// NoOpSink discards all events.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(AuditEvent) {}

// JSONWriterSink writes one JSON object per event to w.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(event AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')
	s.mu.Lock()
	_, _ = s.w.Write(data)
	s.mu.Unlock()
}

// ChannelSink forwards events to a buffered channel for consumers that
// want to drain them elsewhere.
type ChannelSink struct {
	ch chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan AuditEvent, buffer)}
}

// Emit implements AuditSink. Full buffers drop the event.
func (s *ChannelSink) Emit(event AuditEvent) {
	select {
	case s.ch <- event:
	default:
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.ch
}

// auditDispatcher decouples audit emission from request paths: events go
// through a buffered channel and a single consumer goroutine, so a slow
// sink never blocks authentication.
type auditDispatcher struct {
	sink    AuditSink
	ch      chan AuditEvent
	dropped atomic.Uint64
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
	drop    bool
}

func newAuditDispatcher(sink AuditSink, buffer int, dropIfFull bool) *auditDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &auditDispatcher{
		sink: sink,
		ch:   make(chan AuditEvent, buffer),
		drop: dropIfFull,
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.ch {
			d.sink.Emit(event)
		}
	}()
	return d
}

func (d *auditDispatcher) Dispatch(event AuditEvent) {
	if d == nil {
		return
	}
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		d.dropped.Add(1)
		return
	}
	if d.drop {
		select {
		case d.ch <- event:
		default:
			d.dropped.Add(1)
		}
		d.closeMu.Unlock()
		return
	}
	d.ch <- event
	d.closeMu.Unlock()
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.closeMu.Unlock()
	d.wg.Wait()
}
