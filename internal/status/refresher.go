package status

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

// State is the refresher's cycle state.
type State int32

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Queue accepts the status message and reports its terminal result.
type Queue interface {
	EnqueueAwait(m dispatch.Message) (<-chan dispatch.Result, error)
}

// Deleter removes a previously posted message.
type Deleter interface {
	Delete(ctx context.Context, ref dispatch.MessageRef) error
}

// Purger removes stale messages the bot left behind in earlier runs.
type Purger interface {
	PurgeOwnMessages(ctx context.Context, channelID string, limit int) (int, error)
}

// Options configures a Refresher.
type Options struct {
	Channel    string
	Composer   Composer
	Queue      Queue
	Deleter    Deleter
	Purger     Purger // optional, used once by Run
	PurgeLimit int
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Refresher posts a status message on every tick and deletes the one it
// posted before, so at most one status message is live at a time. A tick
// that arrives while a cycle is still running is skipped, never queued.
type Refresher struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	state atomic.Int32
	wg    sync.WaitGroup

	// last is written only by the running cycle; the mutex makes it
	// readable from LastRef.
	mu   sync.Mutex
	last dispatch.MessageRef
}

// NewRefresher creates a Refresher in the Idle state.
func NewRefresher(opts Options) *Refresher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/nextlevelbuilder/hookrelay/internal/status")
	}
	return &Refresher{opts: opts, logger: logger.With("component", "status"), tracer: tracer}
}

// State returns the current cycle state.
func (r *Refresher) State() State { return State(r.state.Load()) }

// LastRef returns the reference of the live status message, if any.
func (r *Refresher) LastRef() dispatch.MessageRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Refresher) setLast(ref dispatch.MessageRef) {
	r.mu.Lock()
	r.last = ref
	r.mu.Unlock()
}

// Tick starts a refresh cycle in the background and reports whether it
// did. It returns false when the previous cycle has not finished.
func (r *Refresher) Tick(ctx context.Context) bool {
	if !r.state.CompareAndSwap(int32(Idle), int32(Refreshing)) {
		r.logger.Debug("status: previous refresh still running, tick skipped")
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.state.Store(int32(Idle))
		r.cycle(ctx)
	}()
	return true
}

// Wait blocks until the running cycle, if any, has finished.
func (r *Refresher) Wait() { r.wg.Wait() }

// Run purges leftovers when configured, refreshes immediately and then on
// every schedule tick until ctx is done. It waits for the running cycle
// before returning.
func (r *Refresher) Run(ctx context.Context, sched Schedule) error {
	defer r.Wait()

	r.purge(ctx)
	r.Tick(ctx)

	for {
		next, err := sched.Next(time.Now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.Tick(ctx)
		}
	}
}

func (r *Refresher) purge(ctx context.Context) {
	if r.opts.Purger == nil || r.opts.PurgeLimit <= 0 {
		return
	}
	n, err := r.opts.Purger.PurgeOwnMessages(ctx, r.opts.Channel, r.opts.PurgeLimit)
	if err != nil {
		r.logger.Warn("status: purge of old messages failed", "channel", r.opts.Channel, "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("status: purged old messages", "channel", r.opts.Channel, "count", n)
	}
}

// cycle composes, deletes the previous message and posts the new one.
// The new message waits on its terminal result, which the dispatcher
// always delivers (sent, failed or discarded at shutdown).
func (r *Refresher) cycle(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "status.refresh", trace.WithAttributes(
		attribute.String("channel", r.opts.Channel),
	))
	defer span.End()
	start := time.Now()

	text, err := r.opts.Composer.Compose(ctx)
	if err != nil {
		// The previous message stays live until a cycle can replace it.
		r.logger.Warn("status: compose failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		return
	}

	if prev := r.LastRef(); !prev.IsZero() {
		if err := r.opts.Deleter.Delete(ctx, prev); err != nil {
			r.logger.Warn("status: delete previous message failed",
				"message_id", prev.MessageID, "error", err)
			span.AddEvent("delete_failed", trace.WithAttributes(attribute.String("error", err.Error())))
		}
		r.setLast(dispatch.MessageRef{})
	}

	done, err := r.opts.Queue.EnqueueAwait(dispatch.Message{
		Channel:  r.opts.Channel,
		Text:     text,
		Priority: dispatch.PriorityStatus,
	})
	if err != nil {
		r.logger.Warn("status: enqueue failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return
	}

	res := <-done
	if res.Err != nil {
		level := slog.LevelWarn
		if errors.Is(res.Err, dispatch.ErrDiscarded) {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "status: message not delivered",
			"attempts", res.Attempts, "error", res.Err)
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "not delivered")
		return
	}

	r.setLast(res.Ref)
	span.SetAttributes(attribute.String("message_id", res.Ref.MessageID))
	r.logger.Debug("status: refreshed",
		"message_id", res.Ref.MessageID, "took", time.Since(start).Round(time.Millisecond))
}
