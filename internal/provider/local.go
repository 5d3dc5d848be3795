package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"streambot/internal/domain"
)

// Local implements domain.Generator against the local llama inference
// service: POST /generate with {prompt, user}, success payload
// {"response": "..."}. Any non-200 status or payload without a response
// field is a generation failure.
type Local struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type LocalConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewLocal(cfg LocalConfig) *Local {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	return &Local{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  SharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

func (l *Local) Name() string { return "local" }

type generatePayload struct {
	Prompt string `json:"prompt"`
	User   string `json:"user"`
}

func (l *Local) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResponse, error) {
	start := time.Now()

	body, err := json.Marshal(generatePayload{
		Prompt: formatPrompt(req.Messages),
		User:   req.Author,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate backend %d: %s", resp.StatusCode, string(respBody))
	}

	text := gjson.GetBytes(respBody, "response")
	if !text.Exists() {
		return nil, fmt.Errorf("malformed generate payload: %s", string(respBody))
	}

	return &domain.GenerateResponse{
		Content:   strings.TrimSpace(text.String()),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// formatPrompt flattens conversation turns into the inference server's
// chat template.
func formatPrompt(turns []domain.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&sb, "<|%s|> %s<|end|>", t.Role, t.Content)
	}
	sb.WriteString("<|assistant|>")
	return sb.String()
}

// Info fetches model metadata from the backend's /model_info endpoint.
func (l *Local) Info(ctx context.Context) (domain.ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/model_info", nil)
	if err != nil {
		return domain.ModelInfo{}, err
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return domain.ModelInfo{}, fmt.Errorf("model info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ModelInfo{}, fmt.Errorf("model info backend %d", resp.StatusCode)
	}

	var info domain.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.ModelInfo{}, fmt.Errorf("decode model info: %w", err)
	}
	return info, nil
}

func (l *Local) Healthy(ctx context.Context) error {
	_, err := l.Info(ctx)
	if err != nil {
		return fmt.Errorf("local backend not reachable: %w", err)
	}
	return nil
}
