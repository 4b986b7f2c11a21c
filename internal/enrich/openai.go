package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadscout/internal/logging"
)

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

// OpenAIClient talks to an OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger
	backoff    func(attempt int) time.Duration
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a client. Zero config fields take their defaults.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	def := DefaultOpenAIConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.For(logger, logging.CategoryEnrich),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
	}
}

// CompleteJSON implements Completer using response_format json_object.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("API key not configured")
	}

	reqBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.1,
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff(i)):
			}
		}

		content, retry, err := c.do(ctx, jsonData)
		if err == nil {
			c.logger.Debug("completion finished",
				zap.String("model", c.model),
				zap.Duration("took", time.Since(start)),
				zap.Int("response_len", len(content)))
			return content, nil
		}
		if !retry {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one request and reports whether a failure is worth retrying.
func (c *OpenAIClient) do(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, errors.New("rate limit exceeded (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("API request failed with status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out openAIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return "", false, fmt.Errorf("API error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", false, errors.New("no completion returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), false, nil
}
