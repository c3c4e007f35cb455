package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"campusd/internal/queue"
)

// Record is one audit entry. Appended fire-and-forget: a failed append is
// logged and swallowed, never surfaced to the action that produced it.
type Record struct {
	ID           string    `json:"id,omitempty"`
	ActorID      string    `json:"actor_id"`
	ActorType    string    `json:"actor_type"`
	Action       string    `json:"action"`
	Target       string    `json:"target"`
	Detail       string    `json:"detail,omitempty"`
	RoomID       string    `json:"room_id,omitempty"`
	DepartmentID string    `json:"department_id,omitempty"`
	At           time.Time `json:"at"`
}

// Sink accepts audit records.
type Sink interface {
	Append(ctx context.Context, rec Record)
}

// MessageType tags audit messages on the shared queue.
const MessageType = "audit"

// QueueSink publishes records onto the work queue for the audit worker to
// persist.
type QueueSink struct {
	q   queue.Queue
	log *logrus.Entry
}

// NewQueueSink creates a sink over a queue backend.
func NewQueueSink(q queue.Queue) *QueueSink {
	return &QueueSink{q: q, log: logrus.WithField("component", "audit")}
}

// Append enqueues the record. Errors are logged locally and dropped.
func (s *QueueSink) Append(ctx context.Context, rec Record) {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		s.log.WithError(err).Warn("audit record marshal failed")
		return
	}
	if err := s.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		s.log.WithError(err).Warn("audit publish failed")
	}
}

// NopSink discards records. Used when auditing is not configured.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, Record) {}
