package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dshills/delegate/internal/agent"
)

// Gemini runs tasks through the Google Gemini API.
type Gemini struct {
	client *genai.Client
	config Config
	logger zerolog.Logger

	// generate sends the prompt; replaced in tests.
	generate func(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)
}

// NewGemini creates a Gemini executor. Close releases the client.
func NewGemini(ctx context.Context, config Config, logger zerolog.Logger) (*Gemini, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := client.GenerativeModel(config.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(config.system())},
	}
	model.SetMaxOutputTokens(int32(config.maxTokens()))

	return &Gemini{
		client: client,
		config: config,
		logger: logger.With().Str("component", "gemini").Logger(),
		generate: func(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
			return model.GenerateContent(ctx, genai.Text(prompt))
		},
	}, nil
}

// Execute implements agent.Executor.
func (g *Gemini) Execute(ctx context.Context, task agent.Task) (string, error) {
	resp, err := g.generate(ctx, UserPrompt(task))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	g.logger.Debug().
		Str("task_id", task.ID).
		Str("model", g.config.Model).
		Int("candidates", len(resp.Candidates)).
		Msg("completion received")

	return joinText(geminiText(resp))
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// geminiText returns the text parts of the first candidate with content.
func geminiText(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var parts []string
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				parts = append(parts, string(text))
			}
		}
		return parts
	}
	return nil
}
