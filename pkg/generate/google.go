package generate

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// defaultGoogleModel is used when the session config names none.
const defaultGoogleModel = "gemini-2.5-pro"

// GoogleGenerator wraps the Gemini API client. The client is created lazily
// on first call because genai.NewClient needs a context.
type GoogleGenerator struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGoogleGenerator creates a Gemini-backed generator.
func NewGoogleGenerator(apiKey, model string) *GoogleGenerator {
	if model == "" {
		model = defaultGoogleModel
	}
	return &GoogleGenerator{
		apiKey: apiKey,
		model:  model,
	}
}

// Backend returns the backend identifier.
func (g *GoogleGenerator) Backend() string {
	return BackendGoogle
}

// Generate performs one content-generation call.
func (g *GoogleGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		g.client = client
	}

	//nolint:gosec // MaxTokens is bounded by session config validation
	maxTokens := int32(req.budget())
	config := &genai.GenerateContentConfig{
		Temperature:     &req.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("gemini generation failed: %w", err)
	}
	if result == nil || result.Text() == "" {
		return Result{}, fmt.Errorf("gemini returned an empty response")
	}

	return Result{
		Output: result.Text(),
		Model:  g.model,
	}, nil
}
