package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults_AreValid(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDefaults_PipelineValues(t *testing.T) {
	cfg := Defaults()
	if cfg.Pipeline.BatchSize != 5 {
		t.Fatalf("batchSize = %d", cfg.Pipeline.BatchSize)
	}
	if got := cfg.Pipeline.BatchPollTimeout(); got != 100*time.Millisecond {
		t.Fatalf("poll timeout = %v", got)
	}
	if got := cfg.Pipeline.MaxHistoryAge(); got != time.Hour {
		t.Fatalf("history age = %v", got)
	}
	if cfg.Pipeline.OutboundChunkSize != 500 {
		t.Fatalf("chunk size = %d", cfg.Pipeline.OutboundChunkSize)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"general": {"botName": "MyBot"},
		"pipeline": {"batchSize": 2},
		"channels": {"twitch": {"enabled": true, "token": "oauth:abc", "nick": "mybot"}}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.BotName != "MyBot" {
		t.Fatalf("botName = %q", cfg.General.BotName)
	}
	if cfg.Pipeline.BatchSize != 2 {
		t.Fatalf("batchSize = %d", cfg.Pipeline.BatchSize)
	}
	// Untouched values keep their defaults.
	if cfg.Pipeline.OutboundChunkSize != 500 {
		t.Fatalf("chunk size = %d, want default", cfg.Pipeline.OutboundChunkSize)
	}
	if !cfg.Channels.Twitch.Enabled || cfg.Channels.Twitch.Nick != "mybot" {
		t.Fatalf("twitch config = %+v", cfg.Channels.Twitch)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"pipeline": {"batchSize": 0}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("batchSize 0 must be rejected")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("STREAMBOT_TEST_TOKEN", "secret123")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set var", `"${STREAMBOT_TEST_TOKEN}"`, `"secret123"`},
		{"unset var kept", `"${STREAMBOT_TEST_NOPE}"`, `"${STREAMBOT_TEST_NOPE}"`},
		{"unset with default", `"${STREAMBOT_TEST_NOPE:-fallback}"`, `"fallback"`},
		{"set beats default", `"${STREAMBOT_TEST_TOKEN:-fallback}"`, `"secret123"`},
		{"plain text untouched", `"no vars here"`, `"no vars here"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnvVars(tt.in); got != tt.want {
				t.Fatalf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("STREAMBOT_TEST_TW_TOKEN", "oauth:fromenv")

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"channels": {"twitch": {"enabled": true, "token": "${STREAMBOT_TEST_TW_TOKEN}", "nick": "bot"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels.Twitch.Token != "oauth:fromenv" {
		t.Fatalf("token = %q", cfg.Channels.Twitch.Token)
	}
}

func TestValidate_BotName(t *testing.T) {
	cfg := Defaults()
	cfg.General.BotName = "@bad name"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "botName") {
		t.Fatalf("expected botName error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Defaults()
	cfg.General.BotName = "roundtrip"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.General.BotName != "roundtrip" {
		t.Fatalf("botName = %q", got.General.BotName)
	}
}
