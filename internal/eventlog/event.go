package eventlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

type Fields map[string]any

type Event struct {
	Severity      Severity  `json:"severity"`
	CorrelationID string    `json:"correlation_id"`
	Operation     string    `json:"operation"`
	Fields        Fields    `json:"fields,omitempty"`
	At            time.Time `json:"at"`
}

// Sink stores or forwards events.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Append(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ctxKey struct{}

// WithCorrelationID returns ctx carrying id. An empty id gets a fresh one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewCorrelationID()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

func NewCorrelationID() string { return uuid.NewString() }

// Recorder builds events from the request context. Sink failures are logged
// and never returned: the event log must not break the operation it records.
type Recorder struct {
	sink Sink
	log  *slog.Logger
	now  func() time.Time
}

func NewRecorder(sink Sink, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sink: sink, log: log, now: time.Now}
}

func (r *Recorder) Info(ctx context.Context, op string, f Fields)  { r.Record(ctx, SeverityInfo, op, f) }
func (r *Recorder) Warn(ctx context.Context, op string, f Fields)  { r.Record(ctx, SeverityWarn, op, f) }
func (r *Recorder) Error(ctx context.Context, op string, f Fields) { r.Record(ctx, SeverityError, op, f) }

func (r *Recorder) Record(ctx context.Context, sev Severity, op string, f Fields) {
	id := CorrelationID(ctx)
	if id == "" {
		id = NewCorrelationID()
	}
	e := Event{Severity: sev, CorrelationID: id, Operation: op, Fields: f, At: r.now().UTC()}
	if r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, e); err != nil {
		r.log.ErrorContext(ctx, "event log append failed", "op", op, "correlation_id", id, "err", err)
	}
}
