// Package eventlog is the append-only system-event ingestion and query
// surface (§4.8). Two call shapes are offered — Emit for worker-thread
// callers and EmitAsync for asynchronous/web-request contexts — but both
// converge on the same store.InsertEvent row shape.
package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/store"
)

// eventStore is the subset of *store.DB the event log depends on.
type eventStore interface {
	InsertEvent(ctx context.Context, e domain.SystemEvent) (domain.SystemEvent, error)
	ListEvents(ctx context.Context, f store.EventFilter) ([]domain.SystemEvent, error)
	ResolveEvent(ctx context.Context, id int64, resolvedBy string) error
}

// sink is satisfied by *notify.Notifier; kept as an interface so the
// event log package doesn't need to import notify's Slack dependency for
// its own tests.
type sink interface {
	NotifyEvent(ctx context.Context, e domain.SystemEvent)
	NotifyWriteFailure(ctx context.Context, attempted domain.SystemEvent, writeErr error)
}

// Log is the append-only event ingestion and query surface.
type Log struct {
	store eventStore
	sink  sink
	log   *zap.Logger
}

func New(s eventStore, sink sink, log *zap.Logger) *Log {
	return &Log{store: s, sink: sink, log: log}
}

// Fields is the free-form structured context payload for one event.
type Fields map[string]any

// Emit is the synchronous ingestion path used by scheduler workers and
// the session/warming/creation runners. Insertion is never blocking
// beyond a single transaction; a write failure itself becomes an event
// via the out-of-band sink rather than being silently dropped.
func (l *Log) Emit(ctx context.Context, category domain.EventCategory, severity domain.EventSeverity, eventType, message string, deviceID, accountID string, fields Fields) domain.SystemEvent {
	e := domain.SystemEvent{
		Timestamp: time.Now(),
		Category:  category,
		Severity:  severity,
		EventType: eventType,
		DeviceID:  deviceID,
		AccountID: accountID,
		Message:   message,
		Context:   map[string]any(fields),
	}
	out, err := l.store.InsertEvent(ctx, e)
	if err != nil {
		l.log.Error("failed to insert system event",
			zap.String("event_type", eventType), zap.Error(err))
		if l.sink != nil {
			l.sink.NotifyWriteFailure(ctx, e, err)
		}
		return e
	}
	if l.sink != nil {
		l.sink.NotifyEvent(ctx, out)
	}
	return out
}

// EmitAsync is the ingestion path for asynchronous/web-request contexts
// (e.g. the ops HTTP surface). It converges on the exact same row shape
// as Emit — same struct, same store call — just invoked without a
// worker's synchronous call stack above it.
func (l *Log) EmitAsync(ctx context.Context, category domain.EventCategory, severity domain.EventSeverity, eventType, message string, deviceID, accountID string, fields Fields) {
	go l.Emit(context.WithoutCancel(ctx), category, severity, eventType, message, deviceID, accountID, fields)
}

func (l *Log) List(ctx context.Context, f store.EventFilter) ([]domain.SystemEvent, error) {
	return l.store.ListEvents(ctx, f)
}

func (l *Log) Resolve(ctx context.Context, id int64, resolvedBy string) error {
	return l.store.ResolveEvent(ctx, id, resolvedBy)
}
