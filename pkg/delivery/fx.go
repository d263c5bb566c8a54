package delivery

import (
	"context"

	"go.uber.org/fx"

	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// Module provides the outbound retry queue.
var Module = fx.Module("delivery",
	fx.Provide(NewFromConfig),
)

// NewFromConfig builds the retry manager from application config.
func NewFromConfig(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) *Manager {
	m := NewManager(log, Config{
		MaxAttempts:     cfg.Delivery.MaxAttempts,
		BaseDelay:       cfg.Delivery.BaseDelay(),
		MaxDelay:        cfg.Delivery.MaxDelay(),
		DeadLetterLimit: cfg.Delivery.DeadLetterLimit,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			m.Stop()
			return nil
		},
	})

	return m
}
