// Package core defines the channel adapter contract shared by the
// orchestrator and the platform adapters: the Channel interface,
// connection health tracking, and send pacing.
package core

import (
	"context"
	"sync"
	"time"

	"tendbot/pkg/bus"
)

// State is the connection state of a channel adapter.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

// Health is a point-in-time view of an adapter's connection.
type Health struct {
	State  State
	Detail string // last error or degradation reason, if any
	Since  time.Time
}

// Channel represents a communication channel (Discord, Telegram, email).
type Channel interface {
	// ID returns the unique channel identifier, which doubles as the
	// channel type key for command registries.
	ID() string

	// Name returns the human-readable channel name.
	Name() string

	// Start connects the channel and begins listening for messages.
	Start(ctx context.Context) error

	// Stop stops the channel gracefully.
	Stop(ctx context.Context) error

	// IsEnabled returns whether the channel is enabled in configuration.
	IsEnabled() bool

	// Send delivers an outbound message. Errors are classified with the
	// delivery failure taxonomy before being returned.
	Send(ctx context.Context, msg *bus.Message) error

	// Health returns the current connection state.
	Health() Health
}

// StatusTracker is embedded by adapters to report connection state.
type StatusTracker struct {
	mu     sync.RWMutex
	health Health
}

// NewStatusTracker starts in the disconnected state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{health: Health{State: StateDisconnected, Since: time.Now()}}
}

// SetState records a state transition. Re-reporting the current state
// updates the detail without touching the transition time.
func (t *StatusTracker) SetState(state State, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.health.State != state {
		t.health.Since = time.Now()
	}
	t.health.State = state
	t.health.Detail = detail
}

// Health returns the current state.
func (t *StatusTracker) Health() Health {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.health
}
