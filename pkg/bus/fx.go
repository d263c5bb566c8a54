package bus

import (
	"context"

	"go.uber.org/fx"

	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// Module is the fx module for the message bus.
var Module = fx.Module("bus",
	fx.Provide(NewMessageBus),
)

// NewMessageBus creates a new message bus for fx.
func NewMessageBus(
	lc fx.Lifecycle,
	log *logger.Logger,
	cfg *config.Config,
) (Bus, error) {
	busConfig := &Config{
		Type:       BusTypeLocal,
		BufferSize: cfg.Bus.BufferSize,
	}

	if cfg.Bus.Type != "" {
		busConfig.Type = BusType(cfg.Bus.Type)
	}
	if cfg.Redis.Addr != "" {
		busConfig.RedisAddr = cfg.Redis.Addr
		busConfig.RedisPassword = cfg.Redis.Password
		busConfig.RedisDB = cfg.Redis.DB
		if cfg.Bus.Prefix != "" {
			busConfig.RedisPrefix = cfg.Bus.Prefix
		}
	}
	if busConfig.BufferSize <= 0 {
		busConfig.BufferSize = 100
	}

	b, err := NewBus(log, busConfig)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return b.Start()
		},
		OnStop: func(ctx context.Context) error {
			return b.Stop()
		},
	})

	return b, nil
}
