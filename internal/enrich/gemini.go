package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient implements Completer with Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini completer.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// CompleteJSON implements Completer.
func (g *GeminiClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.1),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", errors.New("no completion returned")
	}
	return text, nil
}
