// Package gemini wraps the Gemini API as the model service: one
// synchronous, single-shot text generation call.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// Client generates text completions with a fixed generation config.
type Client struct {
	logger *slog.Logger
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewClient creates a Gemini client. The generation config is tuned for
// deterministic-ish plain-text analysis output.
func NewClient(ctx context.Context, logger *slog.Logger, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		logger: logger,
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.5),
			TopP:             genai.Ptr[float32](0.95),
			TopK:             genai.Ptr[float32](40),
			MaxOutputTokens:  8192,
			ResponseMIMEType: "text/plain",
		},
	}, nil
}

// Generate sends one prompt and returns the raw response text. No
// streaming, no conversation state.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("Sending prompt to Gemini.", "model", c.model, "promptChars", len(prompt))
	response, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), c.config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	c.logger.Debug("Gemini response received.")
	return response.Text(), nil
}
