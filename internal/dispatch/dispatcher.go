package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQueueSize is the per-channel capacity when Options leaves it zero.
const DefaultQueueSize = 100

// Sender is the egress side of the chat platform. Implementations return
// *RateLimitError for rate limiting, errors wrapping ErrPermanent for
// non-retryable failures, and any other error for transient ones.
type Sender interface {
	Send(ctx context.Context, channelID, text string, mentions []string) (MessageRef, error)
}

// Options configures a Dispatcher.
type Options struct {
	QueueSize int
	Retry     RetryConfig
	Sink      FailureSink  // default LogSink
	Logger    *slog.Logger // default slog.Default()
	Tracer    trace.Tracer // default global provider
}

// Dispatcher fans messages out to one worker per destination channel.
// Workers start lazily on the first message for a channel. A slow or
// failing channel never blocks another.
type Dispatcher struct {
	sender Sender
	opts   Options

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup

	// ctx bounds every delivery; cancelled when the grace period ends.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher. Call Shutdown to stop it.
func New(sender Sender, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	opts.Retry = opts.Retry.withDefaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{Logger: opts.Logger}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/nextlevelbuilder/hookrelay/internal/dispatch")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:  sender,
		opts:    opts,
		workers: make(map[string]*worker),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue adds m to its channel queue without blocking. It returns
// ErrQueueClosed after Shutdown, and an error wrapping ErrDiscarded when a
// normal message meets a queue filled with status messages.
func (d *Dispatcher) Enqueue(m Message) error {
	_, err := d.enqueue(m, false)
	return err
}

// EnqueueAwait is Enqueue plus a channel that receives the message's
// terminal Result exactly once.
func (d *Dispatcher) EnqueueAwait(m Message) (<-chan Result, error) {
	return d.enqueue(m, true)
}

func (d *Dispatcher) enqueue(m Message, await bool) (<-chan Result, error) {
	if m.Channel == "" {
		return nil, errors.New("dispatch: message has no channel")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.EnqueuedAt = time.Now()
	msg := &m
	var done chan Result
	if await {
		done = make(chan Result, 1)
		msg.done = done
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrQueueClosed
	}
	w := d.workerLocked(m.Channel)
	shed, err := w.q.push(msg)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if shed != nil {
		d.opts.Logger.Warn("dispatch: queue full, message shed",
			"channel", shed.Channel, "message_id", shed.ID.String(), "priority", shed.Priority.String())
		shed.complete(Result{Err: ErrDiscarded})
		if shed == msg {
			return done, fmt.Errorf("%w: queue for channel %s is full", ErrDiscarded, m.Channel)
		}
	}
	return done, nil
}

// workerLocked returns the channel's worker, starting it if needed.
// Caller holds d.mu.
func (d *Dispatcher) workerLocked(channel string) *worker {
	if w, ok := d.workers[channel]; ok {
		return w
	}
	w := &worker{
		channel: channel,
		q:       newQueue(d.opts.QueueSize),
		sender:  d.sender,
		retry:   d.opts.Retry,
		sink:    d.opts.Sink,
		logger:  d.opts.Logger,
		tracer:  d.opts.Tracer,
	}
	d.workers[channel] = w
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		w.run(d.ctx)
	}()
	return w
}

// Depths returns the number of pending messages per channel.
func (d *Dispatcher) Depths() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.workers))
	for ch, w := range d.workers {
		out[ch] = w.q.len()
	}
	return out
}

// Shutdown stops accepting messages and lets workers drain until ctx is
// done. Whatever is still pending or in flight after that is discarded and
// ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	workers := make([]*worker, 0, len(d.workers))
	for _, w := range d.workers {
		w.q.close()
		workers = append(workers, w)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.cancel()
		return nil
	case <-ctx.Done():
	}

	d.cancel()
	<-drained
	discarded := 0
	for _, w := range workers {
		for _, m := range w.q.drain() {
			m.complete(Result{Err: ErrDiscarded})
			discarded++
		}
	}
	d.opts.Logger.Warn("dispatch: shutdown grace period elapsed", "discarded", discarded)
	return ctx.Err()
}
