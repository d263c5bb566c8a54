package channels

import (
	"fmt"
	"strings"

	"tendbot/pkg/bus"
	"tendbot/pkg/channels/core"
	"tendbot/pkg/channels/discord"
	"tendbot/pkg/channels/email"
	"tendbot/pkg/channels/telegram"
	"tendbot/pkg/config"
	"tendbot/pkg/logger"
)

// ChannelNames lists the channel adapters this build knows how to
// construct.
func ChannelNames() []string {
	return []string{"discord", "telegram", "email"}
}

// BuildChannel creates a channel instance from the current config.
func BuildChannel(
	name string,
	log *logger.Logger,
	messageBus bus.Bus,
	cfg *config.Config,
) (core.Channel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "discord":
		return discord.New(log, cfg.Channels.Discord, messageBus)
	case "telegram":
		return telegram.New(log, cfg.Channels.Telegram, messageBus)
	case "email":
		return email.New(log, cfg.Channels.Email, messageBus)
	default:
		return nil, fmt.Errorf("unknown channel: %s", name)
	}
}

// IsChannelEnabled checks whether a channel is enabled in config.
func IsChannelEnabled(name string, cfg *config.Config) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "discord":
		return cfg.Channels.Discord.Enabled, nil
	case "telegram":
		return cfg.Channels.Telegram.Enabled, nil
	case "email":
		return cfg.Channels.Email.Enabled, nil
	default:
		return false, fmt.Errorf("unknown channel: %s", name)
	}
}
