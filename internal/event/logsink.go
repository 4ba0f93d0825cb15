package event

import (
	"context"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger observability.Logger
}

// NewLogSink creates a sink logging events through logger.
func NewLogSink(logger observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, event Event) {
	fields := []observability.Field{
		observability.String("event_id", event.ID),
		observability.String("type", string(event.Type)),
		observability.Uint64("slot", uint64(event.Slot)),
	}

	if event.Project != "" {
		fields = append(fields, observability.String("project", event.Project))
	}
	if event.APIKey != "" {
		fields = append(fields, observability.String("api_key", event.APIKey))
	}
	if event.Payload.Name != "" {
		fields = append(fields, observability.String("name", event.Payload.Name))
	}
	if event.Payload.Reason != "" {
		fields = append(fields, observability.String("reason", event.Payload.Reason))
	}

	s.logger.Info("domain event", fields...)
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }
