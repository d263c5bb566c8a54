// Package config provides configuration management for tendbot.
// It uses Viper for flexible configuration loading with support for
// multiple formats, environment variables, defaults, and hot reload of
// the command table.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete tendbot configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" json:"log"`
	Bus      BusConfig      `mapstructure:"bus" json:"bus"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis"`
	Channels ChannelsConfig `mapstructure:"channels" json:"channels"`
	Delivery DeliveryConfig `mapstructure:"delivery" json:"delivery"`
	Flow     FlowConfig     `mapstructure:"flow" json:"flow"`
	Commands CommandsConfig `mapstructure:"commands" json:"commands"`
	Schedule ScheduleConfig `mapstructure:"schedule" json:"schedule"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	Development bool   `mapstructure:"development" json:"development"`
}

// BusConfig selects the message bus backend.
type BusConfig struct {
	Type       string `mapstructure:"type" json:"type"` // "local" or "redis"
	BufferSize int    `mapstructure:"buffer_size" json:"buffer_size"`
	Prefix     string `mapstructure:"prefix" json:"prefix"`
}

// RedisConfig is shared Redis connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
}

// ChannelsConfig contains all channel adapter configurations.
type ChannelsConfig struct {
	Discord  DiscordConfig  `mapstructure:"discord" json:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`
	Email    EmailConfig    `mapstructure:"email" json:"email"`
}

// DiscordConfig for the Discord channel.
type DiscordConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Token   string `mapstructure:"token" json:"token"`
	GuildID string `mapstructure:"guild_id" json:"guild_id"` // scope for slash command registration; empty = global
	// MinSendIntervalMS is the minimum delay between outbound API calls.
	MinSendIntervalMS int      `mapstructure:"min_send_interval_ms" json:"min_send_interval_ms"`
	AllowFrom         []string `mapstructure:"allow_from" json:"allow_from"`
}

// TelegramConfig for the Telegram channel.
type TelegramConfig struct {
	Enabled           bool     `mapstructure:"enabled" json:"enabled"`
	Token             string   `mapstructure:"token" json:"token"`
	TimeoutSeconds    int      `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	MinSendIntervalMS int      `mapstructure:"min_send_interval_ms" json:"min_send_interval_ms"`
	AllowFrom         []string `mapstructure:"allow_from" json:"allow_from"`
}

// EmailConfig for the email channel (SMTP out, IMAP in).
type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	From    string `mapstructure:"from" json:"from"`

	SMTPHost     string `mapstructure:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port" json:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username" json:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password" json:"smtp_password"`

	IMAPHost     string `mapstructure:"imap_host" json:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port" json:"imap_port"`
	IMAPUsername string `mapstructure:"imap_username" json:"imap_username"`
	IMAPPassword string `mapstructure:"imap_password" json:"imap_password"`
	Mailbox      string `mapstructure:"mailbox" json:"mailbox"`

	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds" json:"poll_interval_seconds"`
	MinSendIntervalMS   int      `mapstructure:"min_send_interval_ms" json:"min_send_interval_ms"`
	AllowFrom           []string `mapstructure:"allow_from" json:"allow_from"`
}

// DeliveryConfig tunes the outbound retry queue.
type DeliveryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`
	// BaseDelayMS is the initial backoff delay; it doubles per attempt.
	BaseDelayMS int `mapstructure:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMS  int `mapstructure:"max_delay_ms" json:"max_delay_ms"`
	// DeadLetterLimit caps the in-memory dead-letter log.
	DeadLetterLimit int `mapstructure:"dead_letter_limit" json:"dead_letter_limit"`
}

// BaseDelay returns the initial backoff delay as a duration.
func (d DeliveryConfig) BaseDelay() time.Duration {
	return time.Duration(d.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (d DeliveryConfig) MaxDelay() time.Duration {
	return time.Duration(d.MaxDelayMS) * time.Millisecond
}

// FlowConfig tunes multi-turn conversation flows.
type FlowConfig struct {
	// TimeoutMinutes is how long a flow may wait for a reply before it
	// lazily expires on the next interaction.
	TimeoutMinutes int `mapstructure:"timeout_minutes" json:"timeout_minutes"`
}

// Timeout returns the flow expiry window as a duration.
func (f FlowConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMinutes) * time.Minute
}

// CommandEntry declares one command-table entry for the message router.
// "cancel" is reserved and entries naming it are ignored at load time.
type CommandEntry struct {
	Name        string `mapstructure:"name" json:"name" yaml:"name"`
	Action      string `mapstructure:"action" json:"action" yaml:"action"`
	Description string `mapstructure:"description" json:"description" yaml:"description"`
	Flow        bool   `mapstructure:"flow" json:"flow" yaml:"flow"`
}

// CommandsConfig configures the routing command table.
type CommandsConfig struct {
	// TableFile optionally points at a YAML file with extra entries;
	// the file is hot-reloaded when it changes.
	TableFile string         `mapstructure:"table_file" json:"table_file"`
	Table     []CommandEntry `mapstructure:"table" json:"table"`
}

// ScheduledPrompt triggers a proactive flow prompt on a cron spec.
type ScheduledPrompt struct {
	Cron    string `mapstructure:"cron" json:"cron"`
	Channel string `mapstructure:"channel" json:"channel"`
	ChatID  string `mapstructure:"chat_id" json:"chat_id"`
	UserID  string `mapstructure:"user_id" json:"user_id"`
	Flow    string `mapstructure:"flow" json:"flow"`
}

// ScheduleConfig configures proactive prompts.
type ScheduleConfig struct {
	Prompts []ScheduledPrompt `mapstructure:"prompts" json:"prompts"`
}

// Validate checks the configuration for inconsistencies that would only
// surface at runtime otherwise.
func (c *Config) Validate() error {
	if c.Channels.Discord.Enabled && strings.TrimSpace(c.Channels.Discord.Token) == "" {
		return fmt.Errorf("channels.discord: token is required when enabled")
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram: token is required when enabled")
	}
	if c.Channels.Email.Enabled {
		if strings.TrimSpace(c.Channels.Email.SMTPHost) == "" {
			return fmt.Errorf("channels.email: smtp_host is required when enabled")
		}
		if strings.TrimSpace(c.Channels.Email.From) == "" {
			return fmt.Errorf("channels.email: from address is required when enabled")
		}
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("delivery: max_attempts must be positive")
	}
	for _, e := range c.Commands.Table {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("commands.table: entry with empty name")
		}
	}
	return nil
}
