package generate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5-coder"
)

// OllamaGenerator wraps the Ollama API client for local model serving.
type OllamaGenerator struct {
	client *api.Client
	model  string
}

// NewOllamaGenerator creates an Ollama-backed generator. An unparsable host
// URL falls back to the local default.
func NewOllamaGenerator(hostURL, model string) *OllamaGenerator {
	if hostURL == "" {
		hostURL = defaultOllamaHost
	}
	if model == "" {
		model = defaultOllamaModel
	}

	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse(defaultOllamaHost)
	}

	return &OllamaGenerator{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Backend returns the backend identifier.
func (g *OllamaGenerator) Backend() string {
	return BackendOllama
}

// Generate performs one chat call against the local Ollama server.
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	stream := false
	chatReq := &api.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.budget(),
		},
	}

	var response api.ChatResponse
	err := g.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("ollama generation failed: %w", err)
	}
	if response.Message.Content == "" {
		return Result{}, fmt.Errorf("ollama returned an empty response")
	}

	return Result{
		Output: response.Message.Content,
		Model:  g.model,
	}, nil
}
