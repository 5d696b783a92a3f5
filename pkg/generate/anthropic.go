package generate

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicModel is used when the session config names none.
const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicGenerator wraps the Anthropic SDK.
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicGenerator creates an Anthropic-backed generator.
func NewAnthropicGenerator(apiKey, model string) *AnthropicGenerator {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Backend returns the backend identifier.
func (g *AnthropicGenerator) Backend() string {
	return BackendAnthropic
}

// Generate performs one completion call.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: int64(req.budget()),
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
			},
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic generation failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return Result{}, fmt.Errorf("anthropic returned an empty response")
	}

	var text string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return Result{
		Output:     text,
		StopReason: string(resp.StopReason),
		Model:      string(g.model),
	}, nil
}
