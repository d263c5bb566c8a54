package commands

import (
	"sync"

	"go.uber.org/zap"

	"tendbot/pkg/logger"
)

// Registries owns one command registry per channel type. Registration
// semantics differ per channel (platform-registered slash commands vs.
// parse-only), so channel types never share a registry instance.
type Registries struct {
	log  *logger.Logger
	mu   sync.Mutex
	set  map[string]*Registry
	deps Dependencies

	health *healthProxy
}

// NewRegistries creates the registry set.
func NewRegistries(log *logger.Logger, deps Dependencies) *Registries {
	proxy := &healthProxy{}
	if deps.Health != nil {
		proxy.Set(deps.Health)
	}
	deps.Health = proxy

	return &Registries{
		log:    log,
		set:    make(map[string]*Registry),
		deps:   deps,
		health: proxy,
	}
}

// SetHealth installs the health reporter after construction. The channel
// orchestrator self-registers here to avoid a startup dependency cycle.
func (r *Registries) SetHealth(reporter HealthReporter) {
	r.health.Set(reporter)
}

// ForChannel returns the registry for a channel type, creating it with
// the builtin commands on first use.
func (r *Registries) ForChannel(channelType string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.set[channelType]; ok {
		return reg
	}

	reg := NewRegistry(r.log, channelType)
	if err := RegisterBuiltins(reg, r.deps); err != nil {
		r.log.Error("Failed to register builtin commands",
			zap.String("channel_type", channelType),
			zap.Error(err))
	}
	r.set[channelType] = reg
	return reg
}

// healthProxy lets the status handler observe a reporter installed after
// the registries were built.
type healthProxy struct {
	mu    sync.RWMutex
	inner HealthReporter
}

func (p *healthProxy) Set(reporter HealthReporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner = reporter
}

// Statuses implements HealthReporter.
func (p *healthProxy) Statuses() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.inner == nil {
		return nil
	}
	return p.inner.Statuses()
}
