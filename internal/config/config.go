package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"relaybot/internal/domain"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// maxReplyRunes leaves room for the truncation marker within one message.
var maxReplyRunes = domain.MaxTextRunes - utf8.RuneCountInString(domain.TruncationMarker)

// Config is the root configuration for relaybot.
type Config struct {
	General  GeneralConfig  `json:"general" yaml:"general"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Gemini   GeminiConfig   `json:"gemini" yaml:"gemini"`
	Image    ImageConfig    `json:"image" yaml:"image"`
	Health   HealthConfig   `json:"health" yaml:"health"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
}

type GeneralConfig struct {
	LogLevel            string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFile             string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"`
	MaxConcurrentEvents int    `json:"maxConcurrentEvents" yaml:"maxConcurrentEvents"`
	MaxReplyRunes       int    `json:"maxReplyRunes" yaml:"maxReplyRunes"`
	VisionPrompt        string `json:"visionPrompt" yaml:"visionPrompt"`
}

type TelegramConfig struct {
	Token              string `json:"token" yaml:"token" env:"BOT_TOKEN"`
	ParseMode          string `json:"parseMode" yaml:"parseMode" env:"TELEGRAM_PARSE_MODE"`
	PollTimeoutSeconds int    `json:"pollTimeoutSeconds" yaml:"pollTimeoutSeconds"`
	MaxDownloadBytes   int64  `json:"maxDownloadBytes" yaml:"maxDownloadBytes"`
	APIEndpoint        string `json:"apiEndpoint,omitempty" yaml:"apiEndpoint,omitempty"`
}

type GeminiConfig struct {
	APIKey         string `json:"apiKey" yaml:"apiKey" env:"GEMINI_API_KEY"`
	APIBase        string `json:"apiBase" yaml:"apiBase"`
	Model          string `json:"model" yaml:"model" env:"GEMINI_MODEL"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// ImageConfig selects and configures the text-to-image backend.
// Backend "inference" is a bearer-token POST endpoint; "pollinations" is an
// unauthenticated URL-templated GET endpoint.
type ImageConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Backend        string `json:"backend" yaml:"backend" env:"IMAGE_BACKEND"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"IMAGE_API_KEY"`
	APIBase        string `json:"apiBase" yaml:"apiBase"`
	Model          string `json:"model" yaml:"model" env:"IMAGE_MODEL"`
	Width          int    `json:"width" yaml:"width"`
	Height         int    `json:"height" yaml:"height"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	SeedMax        int    `json:"seedMax" yaml:"seedMax"`
	Translate      bool   `json:"translate" yaml:"translate"`
	MaxPromptRunes int    `json:"maxPromptRunes" yaml:"maxPromptRunes"`
}

type HealthConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port" env:"PORT"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath" env:"JOURNAL_PATH"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path (if it exists), overlays the process
// environment and validates the result. A missing file is not an error:
// the bot is normally configured from the environment alone.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("cannot parse environment: %w", err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFile reads only the config file on top of the defaults, without the
// environment overlay or validation. Used by the config subcommands so that
// saving never copies secrets from the environment into the file.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses data into cfg, choosing YAML or JSON by file extension.
func decode(path string, data []byte, cfg *Config) error {
	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg to path as YAML or JSON, by extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. Missing secrets are
// reported here so the process refuses to start without them.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, "telegram.token is required (set BOT_TOKEN)")
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		errs = append(errs, "gemini.apiKey is required (set GEMINI_API_KEY)")
	}
	if cfg.Gemini.Model == "" {
		errs = append(errs, "gemini.model must not be empty")
	}

	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		errs = append(errs, "telegram.parseMode must be one of: Markdown, MarkdownV2, HTML (or empty)")
	}
	if cfg.Telegram.PollTimeoutSeconds < 1 {
		errs = append(errs, "telegram.pollTimeoutSeconds must be >= 1")
	}
	if cfg.Telegram.MaxDownloadBytes < 1 {
		errs = append(errs, "telegram.maxDownloadBytes must be >= 1")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentEvents < 1 || cfg.General.MaxConcurrentEvents > 1000 {
		errs = append(errs, "general.maxConcurrentEvents must be between 1 and 1000")
	}
	if cfg.General.MaxReplyRunes < 1 || cfg.General.MaxReplyRunes > maxReplyRunes {
		errs = append(errs, fmt.Sprintf("general.maxReplyRunes must be between 1 and %d", maxReplyRunes))
	}

	if cfg.Image.Enabled {
		switch cfg.Image.Backend {
		case "inference":
			if cfg.Image.APIKey == "" {
				errs = append(errs, "image.apiKey is required for the inference backend (set IMAGE_API_KEY)")
			}
		case "pollinations":
		default:
			errs = append(errs, "image.backend must be one of: inference, pollinations")
		}
		if cfg.Image.TimeoutSeconds < 1 {
			errs = append(errs, "image.timeoutSeconds must be >= 1")
		}
		if cfg.Image.SeedMax < 1 {
			errs = append(errs, "image.seedMax must be >= 1")
		}
		if cfg.Image.MaxPromptRunes < 1 {
			errs = append(errs, "image.maxPromptRunes must be >= 1")
		}
		if cfg.Image.Width < 64 || cfg.Image.Height < 64 {
			errs = append(errs, "image.width and image.height must be >= 64")
		}
	}

	if cfg.Health.Port < 0 || cfg.Health.Port > 65535 {
		errs = append(errs, "health.port must be between 0 and 65535")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
