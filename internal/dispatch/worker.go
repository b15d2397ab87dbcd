package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// worker owns one channel queue and delivers its messages strictly in
// order: the next message is not attempted until the current one has been
// delivered, dropped, or discarded.
type worker struct {
	channel string
	q       *queue
	sender  Sender
	retry   RetryConfig
	sink    FailureSink
	logger  *slog.Logger
	tracer  trace.Tracer
}

// run processes messages until the queue is closed and empty, or until
// ctx is cancelled (hard stop).
func (w *worker) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, ok := w.q.pop()
		if !ok {
			if w.q.done() {
				return
			}
			select {
			case <-w.q.notify:
			case <-ctx.Done():
				return
			}
			continue
		}
		w.deliver(ctx, m)
	}
}

func (w *worker) deliver(ctx context.Context, m *Message) {
	ctx, span := w.tracer.Start(ctx, "dispatch.deliver", trace.WithAttributes(
		attribute.String("message_id", m.ID.String()),
		attribute.String("channel", m.Channel),
		attribute.String("priority", m.Priority.String()),
	))
	defer span.End()

	bo := w.retry.newBackOff()
	attempts := 0
	for {
		if ctx.Err() != nil {
			w.discard(span, m, attempts)
			return
		}

		ref, err := w.sender.Send(ctx, m.Channel, m.Text, m.Mentions)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempts+1))
			w.logger.Debug("dispatch: delivered",
				"message_id", m.ID.String(), "channel", m.Channel,
				"attempts", attempts+1, "queued_for", time.Since(m.EnqueuedAt).Round(time.Millisecond))
			m.complete(Result{Ref: ref, Attempts: attempts + 1})
			return
		}

		var rl *RateLimitError
		if errors.As(err, &rl) {
			pause := rl.RetryAfter
			if pause <= 0 {
				pause = defaultRateLimitPause
			}
			w.logger.Info("dispatch: channel rate limited, pausing",
				"channel", m.Channel, "retry_after", pause)
			span.AddEvent("rate_limited", trace.WithAttributes(attribute.String("retry_after", pause.String())))
			if sleepCtx(ctx, pause) != nil {
				w.discard(span, m, attempts)
				return
			}
			continue
		}

		if ctx.Err() != nil {
			w.discard(span, m, attempts)
			return
		}

		attempts++
		if errors.Is(err, ErrPermanent) || attempts >= w.retry.MaxAttempts {
			span.SetStatus(codes.Error, err.Error())
			w.sink.RecordFailure(ctx, newFailureRecord(m, attempts, err))
			m.complete(Result{Attempts: attempts, Err: err})
			return
		}

		wait := bo.NextBackOff()
		w.logger.Warn("dispatch: transient delivery error, retrying",
			"message_id", m.ID.String(), "channel", m.Channel,
			"attempt", attempts, "backoff", wait, "error", err)
		if sleepCtx(ctx, wait) != nil {
			w.discard(span, m, attempts)
			return
		}
	}
}

// discard ends an in-flight message aborted by a hard stop.
func (w *worker) discard(span trace.Span, m *Message, attempts int) {
	span.SetStatus(codes.Error, "discarded at shutdown")
	w.logger.Warn("dispatch: in-flight message discarded at shutdown",
		"message_id", m.ID.String(), "channel", m.Channel)
	m.complete(Result{Attempts: attempts, Err: ErrDiscarded})
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
