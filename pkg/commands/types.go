// Package commands provides per-channel command registries.
package commands

import (
	"context"
	"time"

	"tendbot/pkg/bus"
)

// Handler executes a command and produces a channel-agnostic response.
type Handler func(ctx context.Context, req Request) (*bus.Response, error)

// Request contains information about a command invocation.
type Request struct {
	// Channel is the channel type the command arrived on (discord,
	// telegram, email).
	Channel string
	// ChatID identifies the conversation or recipient.
	ChatID string
	// UserID identifies the user who invoked the command.
	UserID string
	// Username is the display name of the user.
	Username string
	// Command is the resolved command name.
	Command string
	// Action is the canonical mapped action from the routing table.
	Action string
	// Args is the raw text after the command token.
	Args string
	// Metadata contains channel-specific metadata.
	Metadata map[string]string
}

// Definition describes a registered command. A definition is owned by
// exactly one registry and mutated only through Register/Unregister.
type Definition struct {
	// Name is the command name (without prefix), unique per registry.
	Name string
	// Description is a short description of what the command does.
	Description string
	// Usage shows how to use the command.
	Usage string
	// Handler executes the command.
	Handler Handler
	// Aliases are alternative names. An alias points at exactly one
	// command; re-registering an alias overwrites with a warning.
	Aliases []string
	// Permissions the invoking user must hold (empty = everyone).
	Permissions []string
	// Cooldown is the minimum interval between invocations per user.
	Cooldown time.Duration
	// Enabled gates execution without unregistering.
	Enabled bool
}

// PlatformBinder registers commands natively with a platform. Chat
// platforms create real slash commands; channels that resolve commands
// purely by parsing (email) use NopBinder.
type PlatformBinder interface {
	// BindCommand registers a command with the platform.
	BindCommand(ctx context.Context, def *Definition) error
	// UnbindCommand removes a platform-registered command.
	UnbindCommand(ctx context.Context, name string) error
}

// NopBinder is a PlatformBinder that succeeds without doing anything.
type NopBinder struct{}

// BindCommand implements PlatformBinder.
func (NopBinder) BindCommand(ctx context.Context, def *Definition) error { return nil }

// UnbindCommand implements PlatformBinder.
func (NopBinder) UnbindCommand(ctx context.Context, name string) error { return nil }
