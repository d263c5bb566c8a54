package commands

import (
	"go.uber.org/fx"

	"tendbot/pkg/logger"
)

// Module provides the command system.
var Module = fx.Module("commands",
	fx.Provide(ProvideRegistries),
)

// ProvideRegistries creates the per-channel registry set. Task storage
// is an external collaborator; until one is wired the tasks command
// reports an empty day.
func ProvideRegistries(log *logger.Logger) *Registries {
	return NewRegistries(log, Dependencies{
		Tasks: EmptyTaskSource{},
	})
}
