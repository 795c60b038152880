package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"relaybot/internal/domain"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Gemini.APIKey = "AIzaSyTestKey1234567890"
	return cfg
}

// clearSecrets keeps the developer's shell environment out of Load tests.
func clearSecrets(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BOT_TOKEN", "GEMINI_API_KEY", "GEMINI_MODEL", "IMAGE_API_KEY", "IMAGE_BACKEND", "IMAGE_MODEL", "PORT", "LOG_LEVEL", "LOG_FILE", "JOURNAL_PATH", "TELEGRAM_PARSE_MODE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MissingSecrets(t *testing.T) {
	cfg := Defaults()
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing token and key")
	}
	for _, want := range []string{"BOT_TOKEN", "GEMINI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_InferenceRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.Image.Backend = "inference"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for inference backend without api key")
	}

	cfg.Image.APIKey = "hf_abcdefghijklmnop"
	if err := Validate(cfg); err != nil {
		t.Fatalf("inference with key should be valid: %v", err)
	}
}

func TestValidate_ImageChecksSkippedWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Image.Enabled = false
	cfg.Image.Backend = "nonsense"
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled image backend should not be validated: %v", err)
	}
}

func TestValidate_InvalidBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Image.Backend = "dalle"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidate_InvalidParseMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.ParseMode = "BBCode"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown parse mode")
	}

	for _, mode := range []string{"", "Markdown", "MarkdownV2", "HTML"} {
		cfg.Telegram.ParseMode = mode
		if err := Validate(cfg); err != nil {
			t.Fatalf("parse mode %q should be valid: %v", mode, err)
		}
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Health.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Health.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_ReplyRunesBoundary(t *testing.T) {
	cfg := validConfig()

	// A truncated reply is maxReplyRunes runes plus the marker and must
	// still fit in one Telegram message.
	limit := domain.MaxTextRunes - utf8.RuneCountInString(domain.TruncationMarker)
	if limit != 4073 {
		t.Fatalf("unexpected reply limit %d", limit)
	}

	cfg.General.MaxReplyRunes = limit
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxReplyRunes=%d should be valid: %v", limit, err)
	}

	cfg.General.MaxReplyRunes = limit + 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for maxReplyRunes=%d", limit+1)
	}

	cfg.General.MaxReplyRunes = 4096
	if err := Validate(cfg); err == nil {
		t.Fatal("maxReplyRunes=4096 overflows a message once the marker is added")
	}
}

func TestValidate_JournalNeedsPath(t *testing.T) {
	cfg := validConfig()
	cfg.Journal.Enabled = true
	cfg.Journal.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled journal without path")
	}
}

// --- Load ---

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearSecrets(t)
	t.Setenv("BOT_TOKEN", "123:tok")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("PORT", "9191")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:tok" {
		t.Errorf("token: got %q", cfg.Telegram.Token)
	}
	if cfg.Gemini.APIKey != "gem-key" {
		t.Errorf("gemini key: got %q", cfg.Gemini.APIKey)
	}
	if cfg.Health.Port != 9191 {
		t.Errorf("port: got %d", cfg.Health.Port)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("default model lost: %q", cfg.Gemini.Model)
	}
}

func TestLoad_MissingSecretsIsFatal(t *testing.T) {
	clearSecrets(t)
	_, err := Load("")
	if err == nil {
		t.Fatal("expected configuration error without secrets")
	}
}

func TestLoad_JSONFileWithEnvExpansion(t *testing.T) {
	clearSecrets(t)
	t.Setenv("MY_TG_TOKEN", "999:from-file")
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"telegram": {"token": "${MY_TG_TOKEN}", "parseMode": "HTML"},
		"gemini": {"apiKey": "file-key", "model": "gemini-1.5-pro"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "999:from-file" {
		t.Errorf("token: got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ParseMode != "HTML" {
		t.Errorf("parseMode: got %q", cfg.Telegram.ParseMode)
	}
	if cfg.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("model: got %q", cfg.Gemini.Model)
	}
	if cfg.Telegram.PollTimeoutSeconds != 30 {
		t.Errorf("defaults should survive partial file, got poll timeout %d", cfg.Telegram.PollTimeoutSeconds)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
telegram:
  token: "111:yaml"
gemini:
  apiKey: yaml-key
image:
  enabled: true
  backend: pollinations
  seedMax: 42
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "111:yaml" || cfg.Gemini.APIKey != "yaml-key" {
		t.Errorf("secrets not loaded from yaml: %+v", cfg.Telegram)
	}
	if cfg.Image.SeedMax != 42 {
		t.Errorf("seedMax: got %d", cfg.Image.SeedMax)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"telegram": {"token": "file-token"}, "gemini": {"apiKey": "file-key"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("env should win, got %q", cfg.Telegram.Token)
	}
	if cfg.Gemini.APIKey != "file-key" {
		t.Errorf("unset env must not clobber file value, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	clearSecrets(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := validConfig()
	original.Image.Backend = "inference"
	original.Image.APIKey = "hf_roundtrip_key"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Image.Backend != "inference" || loaded.Image.APIKey != "hf_roundtrip_key" {
		t.Fatalf("round trip lost image config: %+v", loaded.Image)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPath(t *testing.T) {
	val, err := GetByPath(Defaults(), "image.backend")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "pollinations" {
		t.Fatalf("expected 'pollinations', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "image.seedMax", "500"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Image.SeedMax != 500 {
		t.Fatalf("expected 500, got %d", cfg.Image.SeedMax)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "image.translate", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Image.Translate {
		t.Fatal("expected image.translate=false")
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Image.APIKey = "hf_1234567890abcdef"

	sanitized := Sanitize(cfg)

	if sanitized.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	if sanitized.Gemini.APIKey == cfg.Gemini.APIKey {
		t.Fatal("gemini key should be masked")
	}
	if sanitized.Image.APIKey == cfg.Image.APIKey {
		t.Fatal("image key should be masked")
	}
	if cfg.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "short"
	if got := Sanitize(cfg).Telegram.Token; got != "***" {
		t.Fatalf("short secret should be '***', got %q", got)
	}
}

func TestSetByPath_OmitemptyField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "telegram.apiEndpoint", "https://bots.example.com/bot%s/%s"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if cfg.Telegram.APIEndpoint != "https://bots.example.com/bot%s/%s" {
		t.Fatalf("unexpected endpoint %q", cfg.Telegram.APIEndpoint)
	}
}

func TestSetByPath_Errors(t *testing.T) {
	cfg := Defaults()
	tests := []struct{ path, value string }{
		{"health.port", "eighty"},
		{"image.enabled", "maybe"},
		{"image", "x"},
		{"image.nope", "1"},
		{"", "1"},
	}
	for _, tt := range tests {
		if err := SetByPath(cfg, tt.path, tt.value); err == nil {
			t.Errorf("SetByPath(%q, %q): expected error", tt.path, tt.value)
		}
	}
	if cfg.Health.Port != 8080 {
		t.Errorf("failed set must not modify config, port=%d", cfg.Health.Port)
	}
}

func TestListPaths_ReturnsLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "image.backend", "health.port"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	result := ExpandEnvVars(`{"apiKey": "${TEST_API_KEY}"}`)
	if result != `{"apiKey": "sk-abc123"}` {
		t.Fatalf("got %q", result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	if result != `{"port": "8080"}` {
		t.Fatalf("got %q", result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	if result != `"${TOTALLY_UNSET_VAR_XYZ}"` {
		t.Fatalf("got %q", result)
	}
}

func TestLoadFile_IgnoresEnvironment(t *testing.T) {
	clearSecrets(t)
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Telegram.Token != "" {
		t.Errorf("LoadFile must not read the environment, got token %q", cfg.Telegram.Token)
	}
	if cfg.Health.Port != 8080 {
		t.Errorf("expected defaults, got port %d", cfg.Health.Port)
	}
}
