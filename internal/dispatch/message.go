// Package dispatch delivers outbound chat messages through one bounded,
// ordered queue per destination channel.
package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders messages within a channel queue.
type Priority int

const (
	PriorityNormal Priority = iota
	// PriorityStatus messages go ahead of pending normal messages and are
	// never shed when the queue is full.
	PriorityStatus
)

func (p Priority) String() string {
	if p == PriorityStatus {
		return "status"
	}
	return "normal"
}

// Message is one outbound notification. ID is assigned on enqueue when
// left zero and doubles as the correlation ID in logs and spans.
type Message struct {
	ID         uuid.UUID
	Channel    string
	Text       string
	Mentions   []string
	Priority   Priority
	EnqueuedAt time.Time

	done chan Result // buffered, set only for awaited messages
}

// MessageRef identifies a delivered message so it can be deleted later.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the ref points at nothing.
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

// Result is the terminal outcome of a message. Err is nil on delivery,
// ErrDiscarded when the message was shed or dropped at shutdown, and the
// last delivery error when the retry budget ran out.
type Result struct {
	Ref      MessageRef
	Attempts int
	Err      error
}

// complete publishes the outcome exactly once. The channel has capacity 1
// and each message reaches a terminal state once, so this never blocks.
func (m *Message) complete(r Result) {
	if m.done == nil {
		return
	}
	m.done <- r
	close(m.done)
	m.done = nil
}
