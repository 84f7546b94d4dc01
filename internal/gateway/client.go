// Package gateway talks to the remote session gateway that executes
// Telegram RPCs on behalf of stored sessions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/retry"
)

const maxResponseBytes = 4 << 20

// Client is a rate-limited JSON client for the gateway's external API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Policy
	logger     *slog.Logger
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	policy := retry.Policy{
		MaxRetries:     max(cfg.MaxRetries, 0),
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
	if cfg.RetryBackoff > 0 {
		policy.InitialBackoff = cfg.RetryBackoff
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		retry:      policy,
		logger:     logger,
	}
}

// JoinChat joins a channel or group by username or invite link.
func (c *Client) JoinChat(ctx context.Context, sessionID, chat string) error {
	_, err := c.rpc(ctx, sessionID, "rpc/join_chat", "join_chat", map[string]any{
		"chat_id": chat,
	})
	return err
}

// SendMessage sends a silent text message to a chat, user or bot.
func (c *Client) SendMessage(ctx context.Context, sessionID, chat, text string) error {
	_, err := c.rpc(ctx, sessionID, "rpc/send_message", "send_message", map[string]any{
		"chat_id":              chat,
		"text":                 text,
		"disable_notification": true,
	})
	return err
}

// SendReaction puts emoji on a message.
func (c *Client) SendReaction(ctx context.Context, sessionID, chat string, messageID int64, emoji string) error {
	_, err := c.rpc(ctx, sessionID, "rpc/send_reaction", "send_reaction", map[string]any{
		"chat_id":    chat,
		"message_id": messageID,
		"emoji":      emoji,
		"big":        false,
	})
	return err
}

// GetChatMessages returns up to limit recent messages of a chat. Transient
// gateway failures are retried.
func (c *Client) GetChatMessages(ctx context.Context, sessionID, chat string, limit int) ([]Message, error) {
	var result json.RawMessage
	err := retry.Do(ctx, c.retry, func() error {
		var err error
		result, err = c.rpc(ctx, sessionID, "rpc", "get_chat_messages", map[string]any{
			"chat_id": chat,
			"limit":   limit,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return decodeMessages(result)
}

// CreateGroup creates a basic group with the given title.
func (c *Client) CreateGroup(ctx context.Context, sessionID, title string) error {
	_, err := c.rpc(ctx, sessionID, "rpc", "create_group", map[string]any{
		"title":    title,
		"user_ids": []string{},
	})
	return err
}

// ForwardMessages forwards the latest message of fromChat to toChat.
func (c *Client) ForwardMessages(ctx context.Context, sessionID, fromChat, toChat string) error {
	messages, err := c.GetChatMessages(ctx, sessionID, fromChat, 1)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return &APIError{Method: "forward_messages", Message: "no message to forward in " + fromChat}
	}

	_, err = c.rpc(ctx, sessionID, "rpc", "forward_messages", map[string]any{
		"from_chat_id": fromChat,
		"chat_id":      toChat,
		"message_ids":  []int64{messages[0].ID},
	})
	return err
}

// GetDialogs lists the session's dialogs, which is what a client does when
// the user opens the chat list.
func (c *Client) GetDialogs(ctx context.Context, sessionID string, limit int) error {
	query := fmt.Sprintf(
		"functions.messages.GetDialogs(offset_date=0, offset_id=0, offset_peer=types.InputPeerEmpty(), limit=%d, hash=0)",
		limit)
	return retry.Do(ctx, c.retry, func() error {
		_, err := c.Invoke(ctx, sessionID, query)
		return err
	})
}

// UpdateProfile changes name and bio.
func (c *Client) UpdateProfile(ctx context.Context, sessionID string, p ProfileUpdate) error {
	var args []string
	if p.FirstName != "" {
		args = append(args, "first_name="+strconv.Quote(p.FirstName))
	}
	if p.LastName != "" {
		args = append(args, "last_name="+strconv.Quote(p.LastName))
	}
	if p.About != "" {
		args = append(args, "about="+strconv.Quote(p.About))
	}
	if len(args) == 0 {
		return &APIError{Method: "update_profile", Message: "no profile fields to update"}
	}

	_, err := c.Invoke(ctx, sessionID, "functions.account.UpdateProfile("+strings.Join(args, ", ")+")")
	return err
}

// Invoke runs a raw TL query through the gateway.
func (c *Client) Invoke(ctx context.Context, sessionID, query string) (json.RawMessage, error) {
	return c.rpc(ctx, sessionID, "rpc/invoke", "invoke", map[string]any{
		"query":   query,
		"retries": 10,
		"timeout": 15,
	})
}

// GetSession fetches the gateway's record of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var body []byte
	err := retry.Do(ctx, c.retry, func() error {
		b, status, err := c.do(ctx, http.MethodGet, c.sessionURL(sessionID, ""), nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return markTransient(status, parseError("get_session", status, string(b)))
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var info SessionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("gateway get_session: failed to decode response: %w", err)
	}
	if info.ID == "" {
		info.ID = sessionID
	}
	return &info, nil
}

func (c *Client) rpc(ctx context.Context, sessionID, path, method string, params map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(RPCRequest{Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("gateway %s: failed to marshal request: %w", method, err)
	}

	c.logger.Debug("gateway rpc", "session_id", sessionID, "method", method)

	body, status, err := c.do(ctx, http.MethodPost, c.sessionURL(sessionID, path), payload)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", method, err)
	}

	var resp RPCResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		if status >= 400 {
			return nil, markTransient(status, parseError(method, status, string(body)))
		}
		return nil, fmt.Errorf("gateway %s: failed to decode response: %w", method, jsonErr)
	}

	if status >= 400 || resp.Error != "" {
		msg := resp.Error
		if msg == "" {
			msg = string(body)
		}
		err := markTransient(status, parseError(method, status, msg))
		c.logger.Warn("gateway rpc failed", "session_id", sessionID, "method", method, "status", status, "error", err)
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) do(ctx context.Context, httpMethod, endpoint string, payload []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to send request: %w", err)
		if ctx.Err() == nil {
			err = retry.Transient(err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func transientStatus(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func markTransient(status int, err error) error {
	if transientStatus(status) {
		return retry.Transient(err)
	}
	return err
}

func (c *Client) sessionURL(sessionID, path string) string {
	u := c.baseURL + "/api/external/sessions/" + url.PathEscape(sessionID)
	if path != "" {
		u += "/" + path
	}
	return u
}

// decodeMessages accepts both a bare message list and {"messages": [...]}.
func decodeMessages(raw json.RawMessage) ([]Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var messages []Message
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, fmt.Errorf("gateway get_chat_messages: failed to decode messages: %w", err)
		}
		return messages, nil
	}

	var wrapped struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("gateway get_chat_messages: failed to decode messages: %w", err)
	}
	return wrapped.Messages, nil
}
