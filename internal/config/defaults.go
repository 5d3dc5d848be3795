package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			BotName:       "streambot",
			CommandPrefix: "!",
			LogLevel:      "info",
		},
		Pipeline: PipelineConfig{
			BatchSize:            5,
			BatchPollTimeoutMs:   100,
			IdleIntervalMs:       250,
			MaxHistoryTurns:      3,
			MaxHistoryAgeSeconds: 3600,
			OutboundChunkSize:    500,
			MaxTokens:            100,
			BusBuffer:            100,
		},
		Provider: ProviderConfig{
			Backend:        "local",
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 120,
		},
		Channels: ChannelsConfig{
			Twitch: TwitchConfig{
				Enabled: false,
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Registry: RegistryConfig{
			DBPath: "~/.streambot/channels.db",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}
