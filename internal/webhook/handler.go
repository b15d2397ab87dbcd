// Package webhook receives GitHub webhook deliveries, authenticates them,
// and hands routed events to the dispatch queue.
package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
	"github.com/nextlevelbuilder/hookrelay/internal/events"
)

const (
	// MaxBodySize is GitHub's documented payload cap.
	MaxBodySize = 25 << 20

	// deduplicationWindow is how long delivery IDs are remembered. GitHub
	// redeliveries happen within minutes.
	deduplicationWindow = time.Hour

	eventHeader    = "X-GitHub-Event"
	deliveryHeader = "X-GitHub-Delivery"
)

// Classifier turns a raw delivery into a routed event.
type Classifier interface {
	Classify(raw events.RawEvent) events.RoutedEvent
}

// Enqueuer accepts outbound messages without blocking.
type Enqueuer interface {
	Enqueue(m dispatch.Message) error
}

// Options configures a Handler.
type Options struct {
	// Secret enables X-Hub-Signature-256 verification. Empty disables it.
	Secret     string
	Classifier Classifier
	Queue      Enqueuer
	Limiter    *RateLimiter // nil disables rate limiting
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Handler is the http.Handler for the webhook endpoint.
type Handler struct {
	secret     []byte
	classifier Classifier
	queue      Enqueuer
	limiter    *RateLimiter
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	mu         sync.Mutex
	deliveries map[string]time.Time
}

// NewHandler creates a webhook handler. Classifier and Queue are required.
func NewHandler(opts Options) *Handler {
	if opts.Classifier == nil || opts.Queue == nil {
		panic("webhook: classifier and queue are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/nextlevelbuilder/hookrelay/internal/webhook")
	}
	if opts.Secret == "" {
		logger.Warn("webhook: no secret configured, signatures are not verified")
	}
	return &Handler{
		secret:     []byte(opts.Secret),
		classifier: opts.Classifier,
		queue:      opts.Queue,
		limiter:    opts.Limiter,
		logger:     logger,
		tracer:     tracer,
		now:        time.Now,
		deliveries: make(map[string]time.Time),
	}
}

type response struct {
	Status  string `json:"status"`
	Channel string `json:"channel,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Error: "method not allowed"})
		return
	}

	if !h.limiter.Allow(remoteHost(r)) {
		h.logger.Warn("security.webhook_rate_limited", "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusTooManyRequests, response{Status: "error", Error: "rate limit exceeded"})
		return
	}

	// HMAC verification needs the raw bytes.
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		h.logger.Error("webhook: read body failed", "error", err)
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "unreadable body"})
		return
	}
	if len(body) > MaxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, response{Status: "error", Error: "payload too large"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "empty body"})
		return
	}

	if len(h.secret) > 0 {
		if err := VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)); err != nil {
			h.logger.Warn("security.webhook_signature_rejected", "error", err, "remote_addr", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, response{Status: "error", Error: "invalid signature"})
			return
		}
	}

	name := r.Header.Get(eventHeader)
	deliveryID := r.Header.Get(deliveryHeader)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "missing " + eventHeader + " header"})
		return
	}

	_, span := h.tracer.Start(r.Context(), "webhook.receive", trace.WithAttributes(
		attribute.String("event", name),
		attribute.String("delivery_id", deliveryID),
	))
	defer span.End()

	if name == "ping" {
		h.logger.Info("webhook: ping received", "delivery_id", deliveryID)
		writeJSON(w, http.StatusOK, response{Status: "pong"})
		return
	}

	if deliveryID != "" && h.seen(deliveryID) {
		h.logger.Debug("webhook: duplicate delivery ignored", "delivery_id", deliveryID, "event", name)
		writeJSON(w, http.StatusOK, response{Status: "duplicate"})
		return
	}

	ev := h.classifier.Classify(events.RawEvent{Name: name, DeliveryID: deliveryID, Payload: body})
	span.SetAttributes(attribute.String("kind", ev.Kind.String()))
	if !ev.Recognized() {
		writeJSON(w, http.StatusAccepted, response{Status: "ignored"})
		return
	}

	msg := dispatch.Message{Channel: ev.Channel, Text: ev.Body, Mentions: ev.Mentions}
	// GitHub delivery IDs are UUIDs; reuse them to correlate logs end to end.
	if id, err := uuid.Parse(deliveryID); err == nil {
		msg.ID = id
	}
	if err := h.queue.Enqueue(msg); err != nil {
		// Let a manual redelivery through.
		h.forget(deliveryID)
		status := http.StatusServiceUnavailable
		if !errors.Is(err, dispatch.ErrQueueClosed) && !errors.Is(err, dispatch.ErrDiscarded) {
			status = http.StatusInternalServerError
		}
		h.logger.Warn("webhook: enqueue failed",
			"delivery_id", deliveryID, "kind", ev.Kind.String(), "channel", ev.Channel, "error", err)
		span.RecordError(err)
		writeJSON(w, status, response{Status: "error", Error: "queue unavailable"})
		return
	}

	h.logger.Info("webhook: event queued",
		"event", name, "action", ev.Action, "kind", ev.Kind.String(),
		"channel", ev.Channel, "delivery_id", deliveryID, "mentions", len(ev.Mentions))
	writeJSON(w, http.StatusAccepted, response{Status: "queued", Channel: ev.Channel, Kind: ev.Kind.String()})
}

// seen records a delivery ID and reports whether it was already recorded
// within the deduplication window. Expired entries are pruned on each call.
func (h *Handler) seen(deliveryID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for id, at := range h.deliveries {
		if now.Sub(at) > deduplicationWindow {
			delete(h.deliveries, id)
		}
	}
	if _, ok := h.deliveries[deliveryID]; ok {
		return true
	}
	h.deliveries[deliveryID] = now
	return false
}

func (h *Handler) forget(deliveryID string) {
	if deliveryID == "" {
		return
	}
	h.mu.Lock()
	delete(h.deliveries, deliveryID)
	h.mu.Unlock()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
