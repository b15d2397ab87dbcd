// Package channels defines the chat-platform egress abstraction and the
// manager that owns channel lifecycles.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/nextlevelbuilder/hookrelay/internal/dispatch"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "discord").
	Name() string

	// Start connects to the platform. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send posts text to a destination channel. Errors follow the
	// dispatch taxonomy: *dispatch.RateLimitError, dispatch.ErrPermanent,
	// or transient.
	Send(ctx context.Context, channelID, text string, mentions []string) (dispatch.MessageRef, error)

	// Delete removes a previously sent message.
	Delete(ctx context.Context, ref dispatch.MessageRef) error

	// IsRunning returns whether the channel is connected.
	IsRunning() bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	running atomic.Bool
}

// NewBaseChannel creates a new BaseChannel with the given name.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }
