package channels

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/commands"
	"tendbot/pkg/config"
	"tendbot/pkg/delivery"
	"tendbot/pkg/logger"
)

// Module is the fx module for channels.
var Module = fx.Module("channels",
	fx.Provide(NewChannelManager),
	fx.Invoke(RegisterChannels),
)

// NewChannelManager creates a channel manager for fx.
func NewChannelManager(
	lc fx.Lifecycle,
	log *logger.Logger,
	messageBus bus.Bus,
	retries *delivery.Manager,
) *Manager {
	manager := NewManager(log, messageBus, retries)

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

// RegisterChannels registers all enabled channels with the manager and
// hooks each one into its command registry as the platform binder.
func RegisterChannels(
	lc fx.Lifecycle,
	manager *Manager,
	log *logger.Logger,
	messageBus bus.Bus,
	registries *commands.Registries,
	cfg *config.Config,
) error {
	var bound []core.Channel

	for _, name := range ChannelNames() {
		enabled, err := IsChannelEnabled(name, cfg)
		if err != nil {
			return err
		}
		if !enabled {
			continue
		}

		channel, err := BuildChannel(name, log, messageBus, cfg)
		if err != nil {
			log.Warn("Failed to create channel, skipping",
				zap.String("channel", name),
				zap.Error(err))
			continue
		}

		if err := manager.Register(channel); err != nil {
			return err
		}

		// Channels without native command registration (email) keep the
		// registry's nop binder.
		if binder, ok := channel.(commands.PlatformBinder); ok {
			registries.ForChannel(channel.ID()).SetBinder(binder)
			bound = append(bound, channel)
		}
	}

	registries.SetHealth(manager)

	// Native command registration needs a live platform session, and the
	// manager starts channels asynchronously. Bind once each channel
	// first reports connected.
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, ch := range bound {
				channel := ch // Capture for goroutine
				go bindWhenConnected(log, registries, channel)
			}
			return nil
		},
	})

	return nil
}

func bindWhenConnected(log *logger.Logger, registries *commands.Registries, channel core.Channel) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		if channel.Health().State == core.StateConnected {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := registries.ForChannel(channel.ID()).BindPlatform(ctx)
			cancel()
			if err != nil {
				log.Warn("Failed to bind platform commands",
					zap.String("channel", channel.ID()),
					zap.Error(err))
			}
			return
		}
		time.Sleep(time.Second)
	}

	log.Warn("Channel never connected, skipping platform command binding",
		zap.String("channel", channel.ID()))
}
