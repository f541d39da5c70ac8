package eventlog

import (
	"context"
	"log/slog"
)

// SlogSink mirrors events to the process log.
type SlogSink struct {
	Log *slog.Logger
}

func (s SlogSink) Append(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	switch e.Severity {
	case SeverityWarn:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	attrs := []any{"correlation_id", e.CorrelationID}
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	s.Log.Log(ctx, level, e.Operation, attrs...)
	return nil
}
