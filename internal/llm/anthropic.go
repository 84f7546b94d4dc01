package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tgwarmup/tgwarmup/internal/retry"
)

type anthropicProvider struct {
	client anthropic.Client
}

func newAnthropicProvider(apiKey, baseURL string) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) name() string { return "anthropic" }

func (p *anthropicProvider) complete(ctx context.Context, model string, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		wrapped := fmt.Errorf("anthropic api error: %w", err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && retryableStatus(apiErr.StatusCode) {
			return nil, retry.Transient(wrapped)
		}
		return nil, wrapped
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no response from anthropic")
	}

	return &Response{
		Text:     text.String(),
		Provider: p.name(),
		Model:    model,
		Usage: Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}
