package provider

import (
	"fmt"
	"log/slog"
	"time"

	"streambot/internal/domain"
)

// Settings selects and configures a generation backend.
type Settings struct {
	Backend        string // "local" | "openai"
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// New constructs the configured generator.
func New(s Settings, logger *slog.Logger) (domain.Generator, error) {
	timeout := time.Duration(s.TimeoutSeconds) * time.Second

	switch s.Backend {
	case "", "local":
		return NewLocal(LocalConfig{
			BaseURL: s.BaseURL,
			Timeout: timeout,
			Logger:  logger,
		}), nil
	case "openai":
		if s.APIKey == "" {
			return nil, fmt.Errorf("provider openai: apiKey is required")
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:  s.APIKey,
			APIBase: s.BaseURL,
			Model:   s.Model,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider backend %q", s.Backend)
	}
}
