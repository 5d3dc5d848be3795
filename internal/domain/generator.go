package domain

import "context"

// Generator is the interface all text-generation backends must implement.
type Generator interface {
	// Generate produces a completion for the given conversation. Any
	// non-success status, transport error, or malformed payload is
	// returned as an error; callers never retry.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Name() string
	// Info describes the backing model, for the !aiinfo command.
	Info(ctx context.Context) (ModelInfo, error)
	Healthy(ctx context.Context) error
}

type GenerateRequest struct {
	Messages  []Turn
	Author    string
	MaxTokens int
}

type GenerateResponse struct {
	Content   string
	LatencyMs int64
}

type ModelInfo struct {
	Model      string `json:"model_name"`
	Device     string `json:"device"`
	Parameters string `json:"model_parameters"`
}
