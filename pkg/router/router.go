// Package router classifies raw user text into typed routing decisions.
// Routing is pure: no side effects beyond logging malformed input.
package router

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// Kind is the routing classification of an inbound message.
type Kind string

const (
	// KindSlashCommand is a "/name" prefixed command.
	KindSlashCommand Kind = "slash_command"
	// KindBangCommand is a "!name" prefixed command.
	KindBangCommand Kind = "bang_command"
	// KindStructuredCommand is unprefixed text that may still parse as a
	// structured instruction downstream.
	KindStructuredCommand Kind = "structured_command"
	// KindConversational is free text handled by the conversational
	// responder. The router never produces it directly; the interaction
	// pipeline downgrades structured commands that fail to parse.
	KindConversational Kind = "conversational"
	// KindFlowCommand hands control to the conversation flow manager.
	KindFlowCommand Kind = "flow_command"
	// KindUnknown is empty or unusable input.
	KindUnknown Kind = "unknown"
)

// CancelCommand is reserved: it always routes to the flow manager so an
// active flow can be aborted even when the table omits it.
const CancelCommand = "cancel"

// Result is the typed routing decision for one inbound message.
type Result struct {
	Kind Kind
	// CommandName is the recognized command, lower-cased, without prefix.
	// Empty when the name is not in the table.
	CommandName string
	// MappedAction is the canonical action string from the table.
	MappedAction string
	// Args is the remainder after the command token, unparsed.
	Args string
	// ContinueParsing reports whether downstream structured parsing may
	// still apply. Flow commands terminate parsing.
	ContinueParsing bool
	// IsFlow reports whether the matched entry starts a multi-turn flow.
	IsFlow bool
}

type tableEntry struct {
	action string
	isFlow bool
}

// Router maps free text to routing decisions using a fixed,
// channel-agnostic command table. The table is replaceable at runtime
// for hot reload; Route itself holds only a read lock.
type Router struct {
	log   *logger.Logger
	mu    sync.RWMutex
	table map[string]tableEntry
}

// New creates a router over the given command table.
func New(log *logger.Logger, entries []config.CommandEntry) *Router {
	r := &Router{log: log}
	r.SetTable(entries)
	return r
}

// SetTable replaces the command table. Entries naming the reserved
// cancel command are dropped with a warning.
func (r *Router) SetTable(entries []config.CommandEntry) {
	table := make(map[string]tableEntry, len(entries))
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			continue
		}
		if name == CancelCommand {
			r.log.Warn("Command table entry shadows reserved command, ignoring",
				zap.String("name", name))
			continue
		}
		if _, exists := table[name]; exists {
			r.log.Warn("Duplicate command table entry, last one wins",
				zap.String("name", name))
		}
		table[name] = tableEntry{action: e.Action, isFlow: e.Flow}
	}

	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
}

// GetMapping returns the mapped action for a command name, if present.
func (r *Router) GetMapping(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", false
	}
	return entry.action, true
}

// Route classifies text into a routing decision. Empty or
// whitespace-only input yields Unknown; malformed input never panics.
func (r *Router) Route(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		r.log.Debug("Routing empty input")
		return Result{Kind: KindUnknown}
	}

	var kind Kind
	switch trimmed[0] {
	case '/':
		kind = KindSlashCommand
	case '!':
		kind = KindBangCommand
	default:
		// Unprefixed text flows into structured parsing, then the
		// conversational responder, both downstream.
		return Result{Kind: KindStructuredCommand, ContinueParsing: true}
	}

	token, args := splitToken(trimmed[1:])
	name := strings.ToLower(token)

	if name == CancelCommand {
		// Cancellation must be interceptable even mid-flow.
		return Result{
			Kind:        KindFlowCommand,
			CommandName: CancelCommand,
			Args:        args,
			IsFlow:      true,
		}
	}

	r.mu.RLock()
	entry, known := r.table[name]
	r.mu.RUnlock()

	if !known {
		// Unknown commands degrade to general handling; keep the prefix
		// kind but leave the name unset.
		return Result{Kind: kind, Args: args, ContinueParsing: true}
	}

	if entry.isFlow {
		return Result{
			Kind:         KindFlowCommand,
			CommandName:  name,
			MappedAction: entry.action,
			Args:         args,
			IsFlow:       true,
		}
	}

	return Result{
		Kind:            kind,
		CommandName:     name,
		MappedAction:    entry.action,
		Args:            args,
		ContinueParsing: true,
	}
}

// splitToken splits off the first whitespace-delimited token.
func splitToken(s string) (token, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}
