package config

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Bus: BusConfig{
			Type:       "local",
			BufferSize: 100,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				MinSendIntervalMS: 500,
			},
			Telegram: TelegramConfig{
				TimeoutSeconds:    30,
				MinSendIntervalMS: 500,
			},
			Email: EmailConfig{
				SMTPPort:            587,
				IMAPPort:            993,
				Mailbox:             "INBOX",
				PollIntervalSeconds: 60,
				MinSendIntervalMS:   2000,
			},
		},
		Delivery: DeliveryConfig{
			MaxAttempts:     4,
			BaseDelayMS:     500,
			MaxDelayMS:      30000,
			DeadLetterLimit: 200,
		},
		Flow: FlowConfig{
			TimeoutMinutes: 30,
		},
		Commands: CommandsConfig{
			Table: DefaultCommandTable(),
		},
	}
}

// DefaultCommandTable is the built-in routing table. Entries here pair a
// command name with the canonical action handlers dispatch on.
func DefaultCommandTable() []CommandEntry {
	return []CommandEntry{
		{Name: "help", Action: "show help", Description: "Show available commands"},
		{Name: "start", Action: "start interaction", Description: "Start interacting with the bot"},
		{Name: "status", Action: "show status", Description: "Show bot and channel health"},
		{Name: "tasks", Action: "list tasks", Description: "List today's tasks"},
		{Name: "checkin", Action: "start checkin", Description: "Begin a guided check-in", Flow: true},
	}
}
