package authcore

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AuditEvent is a structured security event emitted by the engine. Events are
// append-only facts; the engine never reads them back.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorRole  string            `json:"actor_role,omitempty"`
	TargetType string            `json:"target_type,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	OfficeID   string            `json:"office_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink is a buffered channel-based [AuditSink] for tests and
// in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events describes the events operation and its observable behavior.
//
// Events may return an error when input validation, dependency calls, or security checks fail.
// Events does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one event per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
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

// RedisStreamSink appends events to a Redis Stream via XADD. The stream is
// the production audit trail: append-only, trimmed by length, consumed by
// out-of-process readers.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a [RedisStreamSink] appending to the named
// stream. maxLen <= 0 disables trimming.
func NewRedisStreamSink(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Emit describes the emit operation and its observable behavior.
//
// Emit may return an error when input validation, dependency calls, or security checks fail.
// Emit does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisStreamSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.redis == nil {
		return
	}

	values := map[string]interface{}{
		"ts":         event.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_type": event.EventType,
		"success":    strconv.FormatBool(event.Success),
	}
	if event.ActorID != "" {
		values["actor_id"] = event.ActorID
	}
	if event.ActorRole != "" {
		values["actor_role"] = event.ActorRole
	}
	if event.TargetType != "" {
		values["target_type"] = event.TargetType
	}
	if event.TargetID != "" {
		values["target_id"] = event.TargetID
	}
	if event.OfficeID != "" {
		values["office_id"] = event.OfficeID
	}
	if event.IP != "" {
		values["ip"] = event.IP
	}
	if event.UserAgent != "" {
		values["user_agent"] = event.UserAgent
	}
	if event.Error != "" {
		values["error"] = event.Error
	}
	if len(event.Metadata) > 0 {
		if meta, err := json.Marshal(event.Metadata); err == nil {
			values["metadata"] = string(meta)
		}
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	// Audit emission is best-effort; a failed XADD must never fail the flow.
	_ = s.redis.XAdd(ctx, args).Err()
}
