package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are PromptBoost, an assistant specialized in enhancing user prompts.
Your goal is to take a user's vague idea and transform it into a clear, detailed, and effective prompt for another AI.
Do NOT answer the prompt directly. Instead, rewrite it to be better.

RULES:
- Add specific details and context.
- Suggest a format if appropriate (e.g., "in a JSON format").
- Incorporate best practices like asking the AI to "think step-by-step".
- The output MUST be only the enhanced prompt, with no preamble or explanation.`

// OpenAIConfig configures an OpenAI-compatible chat completions provider.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint
// (Groq, OpenAI, local servers).
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewOpenAIProvider creates a provider. BaseURL is optional.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	logger.Info("Initializing generation provider", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Generate implements Gateway.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.logger.Debug("Generating enhancement", "model", p.model, "is_reroll", req.IsReroll)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages:    buildMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion (%s): %w", p.model, errEmptyCompletion)
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("chat completion (%s): %w", p.model, errEmptyCompletion)
	}
	p.logger.Debug("Received enhancement", "finish_reason", resp.Choices[0].FinishReason)
	return out, nil
}

func buildMessages(req Request) []openai.ChatCompletionMessage {
	var user strings.Builder
	user.WriteString("VAGUE USER PROMPT:\n")
	user.WriteString(req.Text)
	if req.IsReroll && req.PreviousOutput != "" {
		user.WriteString("\n\nThe user rejected this previous enhancement. Write a noticeably different one:\n")
		user.WriteString(req.PreviousOutput)
	}
	user.WriteString("\n\nENHANCED PROMPT:")

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: user.String()},
	}
}
