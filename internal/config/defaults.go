package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:            "info",
			MaxConcurrentEvents: 16,
			MaxReplyRunes:       4000,
			VisionPrompt:        "Describe this image.",
		},
		Telegram: TelegramConfig{
			ParseMode:          "Markdown",
			PollTimeoutSeconds: 30,
			MaxDownloadBytes:   20 << 20,
		},
		Gemini: GeminiConfig{
			APIBase:        "https://generativelanguage.googleapis.com/v1beta",
			Model:          "gemini-2.0-flash",
			TimeoutSeconds: 120,
		},
		Image: ImageConfig{
			Enabled:        true,
			Backend:        "pollinations",
			Width:          1024,
			Height:         1024,
			TimeoutSeconds: 30,
			SeedMax:        1_000_000,
			Translate:      true,
			MaxPromptRunes: 1000,
		},
		Health: HealthConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
		Journal: JournalConfig{
			Enabled: false,
			DBPath:  "~/.relaybot/journal.db",
		},
	}
}
