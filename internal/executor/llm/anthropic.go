package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
)

// Anthropic runs tasks through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	config Config
	logger zerolog.Logger
}

// NewAnthropic creates an Anthropic executor.
func NewAnthropic(config Config, logger zerolog.Logger) (*Anthropic, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(opts...),
		config: config,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

// Execute implements agent.Executor.
func (a *Anthropic) Execute(ctx context.Context, task agent.Task) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: a.config.maxTokens(),
		System: []anthropic.TextBlockParam{
			{Text: a.config.system()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(task))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	parts := make([]string, 0, len(msg.Content))
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}

	a.logger.Debug().
		Str("task_id", task.ID).
		Str("model", a.config.Model).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Str("stop_reason", string(msg.StopReason)).
		Msg("completion received")

	return joinText(parts)
}
