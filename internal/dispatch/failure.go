package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// failureTextWidth bounds the message excerpt kept in a failure record,
// measured in terminal cells so CJK and emoji text stays readable in logs.
const failureTextWidth = 120

// FailureRecord describes a message dropped after its retry budget ran out
// or on a permanent error.
type FailureRecord struct {
	MessageID uuid.UUID
	Channel   string
	Text      string // truncated excerpt
	Attempts  int
	Err       error
	At        time.Time
}

// FailureSink receives exactly one record per dropped message.
type FailureSink interface {
	RecordFailure(ctx context.Context, rec FailureRecord)
}

// LogSink writes failure records to slog and to the active span.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) RecordFailure(ctx context.Context, rec FailureRecord) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("dispatch: delivery failed, message dropped",
		"message_id", rec.MessageID.String(),
		"channel", rec.Channel,
		"attempts", rec.Attempts,
		"text", rec.Text,
		"error", rec.Err,
	)
	trace.SpanFromContext(ctx).AddEvent("delivery.dropped", trace.WithAttributes(
		attribute.String("channel", rec.Channel),
		attribute.Int("attempts", rec.Attempts),
		attribute.String("error", errString(rec.Err)),
	))
}

func newFailureRecord(m *Message, attempts int, err error) FailureRecord {
	return FailureRecord{
		MessageID: m.ID,
		Channel:   m.Channel,
		Text:      runewidth.Truncate(m.Text, failureTextWidth, "…"),
		Attempts:  attempts,
		Err:       err,
		At:        time.Now(),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
