package flow

import (
	"go.uber.org/fx"

	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// Module is the fx module for conversation flows.
var Module = fx.Module("flow",
	fx.Provide(NewFromConfig),
)

// NewFromConfig creates a flow manager with the built-in flows
// registered.
func NewFromConfig(log *logger.Logger, cfg *config.Config) (*Manager, error) {
	m := NewManager(log, cfg.Flow.Timeout())
	if err := m.RegisterFlow(NewCheckinFlow()); err != nil {
		return nil, err
	}
	return m, nil
}
