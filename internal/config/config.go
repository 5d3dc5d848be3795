package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration for StreamBot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Pipeline PipelineConfig `json:"pipeline"`
	Provider ProviderConfig `json:"provider"`
	Channels ChannelsConfig `json:"channels"`
	Registry RegistryConfig `json:"registry"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	BotName       string `json:"botName"`       // mention token is "@<botName>"
	CommandPrefix string `json:"commandPrefix"` // chat command prefix, e.g. "!"
	LogLevel      string `json:"logLevel"`
	PersonaFile   string `json:"personaFile,omitempty"`
	Persona       string `json:"persona,omitempty"`
}

type PipelineConfig struct {
	BatchSize            int `json:"batchSize"`
	BatchPollTimeoutMs   int `json:"batchPollTimeoutMs"`
	IdleIntervalMs       int `json:"idleIntervalMs"`
	MaxHistoryTurns      int `json:"maxHistoryTurns"` // user/assistant exchanges kept per author
	MaxHistoryAgeSeconds int `json:"maxHistoryAgeSeconds"`
	OutboundChunkSize    int `json:"outboundChunkSize"`
	MaxTokens            int `json:"maxTokens"`
	BusBuffer            int `json:"busBuffer"`
}

func (p PipelineConfig) BatchPollTimeout() time.Duration {
	return time.Duration(p.BatchPollTimeoutMs) * time.Millisecond
}

func (p PipelineConfig) IdleInterval() time.Duration {
	return time.Duration(p.IdleIntervalMs) * time.Millisecond
}

func (p PipelineConfig) MaxHistoryAge() time.Duration {
	return time.Duration(p.MaxHistoryAgeSeconds) * time.Second
}

type ProviderConfig struct {
	Backend        string `json:"backend"` // "local" | "openai"
	BaseURL        string `json:"baseUrl,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type ChannelsConfig struct {
	Twitch   TwitchConfig   `json:"twitch"`
	Telegram TelegramConfig `json:"telegram"`
	CLI      CLIConfig      `json:"cli"`
}

type TwitchConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"` // OAuth token, with or without the "oauth:" prefix
	Nick    string `json:"nick"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type RegistryConfig struct {
	DBPath string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.streambot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".streambot"
	}
	return filepath.Join(home, ".streambot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Registry.DBPath = expandPath(cfg.Registry.DBPath)
	cfg.General.PersonaFile = expandPath(cfg.General.PersonaFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
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

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.BotName == "" {
		errs = append(errs, "general.botName is required")
	}
	if strings.ContainsAny(cfg.General.BotName, " \t@") {
		errs = append(errs, "general.botName must be a bare name without spaces or @")
	}
	if cfg.Pipeline.BatchSize < 1 || cfg.Pipeline.BatchSize > 100 {
		errs = append(errs, "pipeline.batchSize must be between 1 and 100")
	}
	if cfg.Pipeline.BatchPollTimeoutMs < 1 {
		errs = append(errs, "pipeline.batchPollTimeoutMs must be positive")
	}
	if cfg.Pipeline.IdleIntervalMs < 1 {
		errs = append(errs, "pipeline.idleIntervalMs must be positive")
	}
	if cfg.Pipeline.MaxHistoryTurns < 1 {
		errs = append(errs, "pipeline.maxHistoryTurns must be positive")
	}
	if cfg.Pipeline.MaxHistoryAgeSeconds < 1 {
		errs = append(errs, "pipeline.maxHistoryAgeSeconds must be positive")
	}
	if cfg.Pipeline.OutboundChunkSize < 1 {
		errs = append(errs, "pipeline.outboundChunkSize must be positive")
	}
	switch cfg.Provider.Backend {
	case "", "local", "openai":
	default:
		errs = append(errs, fmt.Sprintf("provider.backend %q is not supported", cfg.Provider.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
