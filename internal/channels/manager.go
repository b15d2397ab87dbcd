package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager manages all registered channels and their lifecycle.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewManager creates a new channel manager.
// Channels are registered externally via RegisterChannel.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// StartAll starts every registered channel. A channel that fails to start
// is an error: the relay cannot deliver anything without its egress.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for _, name := range m.namesLocked() {
		slog.Info("starting channel", "channel", name)
		if err := m.channels[name].Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}

	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels, returning every stop error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slog.Info("stopping all channels")

	var errs []error
	for _, name := range m.namesLocked() {
		if err := m.channels[name].Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("stop channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.channels))
	for name, channel := range m.channels {
		status[name] = channel.IsRunning()
	}
	return status
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
