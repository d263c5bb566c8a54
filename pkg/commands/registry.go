package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tendbot/pkg/logger"
)

// Registry manages command registration and lookup for one channel type.
// Maps are mutated during startup registration and read-mostly afterward.
type Registry struct {
	log         *logger.Logger
	channelType string

	commands map[string]*Definition
	aliases  map[string]string // alias -> command name
	mu       sync.RWMutex

	binder   PlatformBinder
	binderMu sync.RWMutex

	// lastUse tracks per-user cooldowns, keyed by "command\x00user".
	lastUse   map[string]time.Time
	lastUseMu sync.Mutex

	now func() time.Time
}

// NewRegistry creates a command registry for a channel type.
func NewRegistry(log *logger.Logger, channelType string) *Registry {
	return &Registry{
		log:         log,
		channelType: channelType,
		commands:    make(map[string]*Definition),
		aliases:     make(map[string]string),
		binder:      NopBinder{},
		lastUse:     make(map[string]time.Time),
		now:         time.Now,
	}
}

// ChannelType returns the channel type this registry serves.
func (r *Registry) ChannelType() string {
	return r.channelType
}

// SetBinder installs the platform binder. Adapters call this at startup
// before BindPlatform.
func (r *Registry) SetBinder(binder PlatformBinder) {
	r.binderMu.Lock()
	defer r.binderMu.Unlock()
	if binder == nil {
		binder = NopBinder{}
	}
	r.binder = binder
}

// Register inserts a command by name, then maps each alias to it. An
// alias collision overwrites the previous mapping with a logged warning;
// it is not an error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("command cannot be nil")
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	name := normalize(def.Name)
	def.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; exists {
		r.log.Warn("Command already registered, replacing",
			zap.String("channel_type", r.channelType),
			zap.String("command", name))
	}
	r.commands[name] = def

	for _, alias := range def.Aliases {
		alias = normalize(alias)
		if alias == "" || alias == name {
			continue
		}
		if prev, exists := r.aliases[alias]; exists && prev != name {
			r.log.Warn("Alias collision, last registration wins",
				zap.String("channel_type", r.channelType),
				zap.String("alias", alias),
				zap.String("previous", prev),
				zap.String("now", name))
		}
		r.aliases[alias] = name
	}

	return nil
}

// Unregister removes a command and every alias pointing to it. It
// returns false when the name is unknown.
func (r *Registry) Unregister(name string) bool {
	name = normalize(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; !exists {
		return false
	}

	delete(r.commands, name)
	for alias, target := range r.aliases {
		if target == name {
			delete(r.aliases, alias)
		}
	}
	return true
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(nameOrAlias string) (*Definition, bool) {
	name := normalize(nameOrAlias)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.commands[name]; ok {
		return def, true
	}
	if target, ok := r.aliases[name]; ok {
		def, ok := r.commands[target]
		return def, ok
	}
	return nil, false
}

// IsRegistered reports whether a name or alias resolves to a command.
func (r *Registry) IsRegistered(nameOrAlias string) bool {
	_, ok := r.Get(nameOrAlias)
	return ok
}

// List returns all registered commands.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.commands))
	for _, def := range r.commands {
		defs = append(defs, def)
	}
	return defs
}

// ListEnabled returns all enabled commands.
func (r *Registry) ListEnabled() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.commands))
	for _, def := range r.commands {
		if def.Enabled {
			defs = append(defs, def)
		}
	}
	return defs
}

// Authorized reports whether a user holding the given permissions may
// run the command. Commands without permissions are open to everyone.
func (r *Registry) Authorized(def *Definition, userPerms []string) bool {
	if len(def.Permissions) == 0 {
		return true
	}
	held := make(map[string]struct{}, len(userPerms))
	for _, p := range userPerms {
		held[p] = struct{}{}
	}
	for _, need := range def.Permissions {
		if _, ok := held[need]; !ok {
			return false
		}
	}
	return true
}

// ReserveCooldown checks and claims the per-user cooldown slot for a
// command. It returns the remaining wait when the command is still
// cooling down.
func (r *Registry) ReserveCooldown(def *Definition, userID string) (time.Duration, bool) {
	if def.Cooldown <= 0 {
		return 0, true
	}

	key := def.Name + "\x00" + userID
	now := r.now()

	r.lastUseMu.Lock()
	defer r.lastUseMu.Unlock()

	if last, ok := r.lastUse[key]; ok {
		if remaining := def.Cooldown - now.Sub(last); remaining > 0 {
			return remaining, false
		}
	}
	r.lastUse[key] = now
	return 0, true
}

// BindPlatform registers every enabled command natively with the
// platform through the installed binder.
func (r *Registry) BindPlatform(ctx context.Context) error {
	r.binderMu.RLock()
	binder := r.binder
	r.binderMu.RUnlock()

	for _, def := range r.ListEnabled() {
		if err := binder.BindCommand(ctx, def); err != nil {
			return fmt.Errorf("binding command %s: %w", def.Name, err)
		}
	}
	return nil
}

// UnbindPlatform removes every command from the platform.
func (r *Registry) UnbindPlatform(ctx context.Context) error {
	r.binderMu.RLock()
	binder := r.binder
	r.binderMu.RUnlock()

	for _, def := range r.List() {
		if err := binder.UnbindCommand(ctx, def.Name); err != nil {
			return fmt.Errorf("unbinding command %s: %w", def.Name, err)
		}
	}
	return nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
}
