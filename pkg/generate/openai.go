package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// defaultOpenAIModel is used when the session config names none.
const defaultOpenAIModel = "gpt-5"

// OpenAIGenerator wraps the official OpenAI Go SDK using the responses API.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI-backed generator.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Backend returns the backend identifier.
func (g *OpenAIGenerator) Backend() string {
	return BackendOpenAI
}

// Generate performs one completion call.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	var input strings.Builder
	if req.System != "" {
		input.WriteString(req.System)
		input.WriteString("\n\n")
	}
	input.WriteString(req.Prompt)

	params := responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(int64(req.budget())),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai generation failed: %w", err)
	}

	text := resp.OutputText()
	if text == "" {
		return Result{}, fmt.Errorf("openai returned an empty response")
	}

	return Result{
		Output: text,
		Model:  g.model,
	}, nil
}
