package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
)

// OpenAI runs tasks through the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	config Config
	logger zerolog.Logger
}

// NewOpenAI creates an OpenAI executor.
func NewOpenAI(config Config, logger zerolog.Logger) (*OpenAI, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		config: config,
		logger: logger.With().Str("component", "openai").Logger(),
	}, nil
}

// Execute implements agent.Executor.
func (o *OpenAI) Execute(ctx context.Context, task agent.Task) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(o.config.system()),
			openai.UserMessage(UserPrompt(task)),
		},
		MaxCompletionTokens: openai.Int(o.config.maxTokens()),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	o.logger.Debug().
		Str("task_id", task.ID).
		Str("model", resp.Model).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("completion received")

	return joinText([]string{text})
}
