package interaction

import (
	"context"

	"go.uber.org/fx"

	"tendbot/pkg/bus"
	"tendbot/pkg/commands"
	"tendbot/pkg/flow"
	"tendbot/pkg/logger"
	"tendbot/pkg/router"
)

// Module is the fx module for the interaction pipeline.
var Module = fx.Module("interaction",
	fx.Provide(NewInteractionManager),
	fx.Invoke(func(*Manager) {}),
)

// NewInteractionManager creates the interaction manager for fx.
func NewInteractionManager(
	lc fx.Lifecycle,
	log *logger.Logger,
	messageBus bus.Bus,
	r *router.Router,
	flows *flow.Manager,
	registries *commands.Registries,
) *Manager {
	manager := NewManager(log, messageBus, r, flows, registries, nil)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return manager.Start()
		},
		OnStop: func(ctx context.Context) error {
			return manager.Stop()
		},
	})

	return manager
}
