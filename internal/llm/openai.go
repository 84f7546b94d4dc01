package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/tgwarmup/tgwarmup/internal/retry"
)

type openAIProvider struct {
	client *openai.Client
}

func newOpenAIProvider(apiKey, baseURL string) *openAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *openAIProvider) name() string { return "openai" }

func (p *openAIProvider) complete(ctx context.Context, model string, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	// Reasoning models reject temperature and max_tokens.
	if isReasoningModel(model) {
		chatReq.MaxCompletionTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = req.MaxTokens
		if req.Temperature != nil {
			chatReq.Temperature = float32(*req.Temperature)
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	return &Response{
		Text:     resp.Choices[0].Message.Content,
		Provider: p.name(),
		Model:    model,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func isReasoningModel(model string) bool {
	return strings.Contains(model, "gpt-5") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

func classifyOpenAIError(err error) error {
	wrapped := fmt.Errorf("openai api error: %w", err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return retry.Transient(wrapped)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return retry.Transient(wrapped)
	}
	return wrapped
}
