// Package llm wraps the chat-completion providers used to generate plans,
// personas and chat suggestions.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/retry"
)

// Operation names recorded with every call.
const (
	OperationWarmupPlan    = "warmup_plan"
	OperationPersona       = "persona"
	OperationChatDiscovery = "chat_discovery"
)

// Request is one completion request.
type Request struct {
	Operation   string
	AccountID   *int64
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

// Usage reports token counts returned by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the text a provider returned.
type Response struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Completer is implemented by anything that can answer a Request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Call describes one finished provider call for auditing.
type Call struct {
	Provider  string
	Model     string
	Operation string
	AccountID *int64
	Usage     Usage
	Latency   time.Duration
	Attempts  int
	Err       error
}

// Recorder receives one Call per Complete.
type Recorder interface {
	RecordCall(ctx context.Context, call Call)
}

type provider interface {
	name() string
	complete(ctx context.Context, model string, req Request) (*Response, error)
}

// Client sends requests to the configured provider with retries.
type Client struct {
	provider    provider
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	policy      retry.Policy
	recorder    Recorder
	logger      *slog.Logger
}

// New builds a Client for cfg.Provider. recorder may be nil.
func New(cfg config.LLMConfig, recorder Recorder, logger *slog.Logger) (*Client, error) {
	var p provider
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		p = newOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	case "anthropic":
		p = newAnthropicProvider(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	return newClient(p, cfg, recorder, logger), nil
}

func newClient(p provider, cfg config.LLMConfig, recorder Recorder, logger *slog.Logger) *Client {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Client{
		provider:    p,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.Timeout,
		policy:      DefaultRetryPolicy(),
		recorder:    recorder,
		logger:      logger,
	}
}

// DefaultRetryPolicy retries rate limits and server errors three times.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// WithRetryPolicy replaces the retry policy.
func (c *Client) WithRetryPolicy(policy retry.Policy) *Client {
	c.policy = policy
	return c
}

// Complete sends req, retrying transient provider failures, and records
// the outcome.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Temperature == nil {
		t := c.temperature
		req.Temperature = &t
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}

	start := time.Now()
	attempts := 0
	var resp *Response
	err := retry.Do(ctx, c.policy, func() error {
		attempts++
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		r, err := c.provider.complete(callCtx, c.model, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	call := Call{
		Provider:  c.provider.name(),
		Model:     c.model,
		Operation: req.Operation,
		AccountID: req.AccountID,
		Latency:   time.Since(start),
		Attempts:  attempts,
		Err:       err,
	}
	if resp != nil {
		call.Usage = resp.Usage
	}
	if c.recorder != nil {
		c.recorder.RecordCall(ctx, call)
	}

	if err != nil {
		c.logger.Warn("llm call failed",
			"provider", call.Provider, "operation", req.Operation, "attempts", attempts, "error", err)
		return nil, err
	}

	c.logger.Debug("llm call completed",
		"provider", call.Provider, "operation", req.Operation,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens,
		"latency_ms", call.Latency.Milliseconds())
	return resp, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return c.provider.name()
}

// Model returns the configured model.
func (c *Client) Model() string {
	return c.model
}

// retryableStatus reports whether an HTTP status from a provider is worth retrying.
func retryableStatus(status int) bool {
	return status == 429 || status == 408 || status >= 500
}
