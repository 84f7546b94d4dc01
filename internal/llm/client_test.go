package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/retry"
)

type recordingRecorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recordingRecorder) RecordCall(_ context.Context, call Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "llama", Model: "x"}, nil, discardLogger())
	require.Error(t, err)

	_, err = New(config.LLMConfig{Provider: "openai"}, nil, discardLogger())
	require.Error(t, err)
}

func TestOpenAICompleteRetriesRateLimit(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var lastBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
			return
		}
		mu.Lock()
		json.NewDecoder(r.Body).Decode(&lastBody)
		mu.Unlock()
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"[{\"type\":\"idle\"}]"}}],"usage":{"prompt_tokens":40,"completion_tokens":8,"total_tokens":48}}`))
	}))
	defer srv.Close()

	recorder := &recordingRecorder{}
	client, err := New(config.LLMConfig{
		Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: srv.URL + "/v1",
		Temperature: 0.8, MaxTokens: 512, Timeout: 5 * time.Second,
	}, recorder, discardLogger())
	require.NoError(t, err)
	client.WithRetryPolicy(retry.Policy{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1})

	accountID := int64(9)
	resp, err := client.Complete(context.Background(), Request{
		Operation: OperationWarmupPlan, AccountID: &accountID, System: "sys", Prompt: "plan",
	})
	require.NoError(t, err)
	require.Equal(t, `[{"type":"idle"}]`, resp.Text)
	require.Equal(t, 40, resp.Usage.InputTokens)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)

	messages, _ := lastBody["messages"].([]any)
	require.Len(t, messages, 2)
	require.EqualValues(t, 512, lastBody["max_tokens"])

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	require.Equal(t, "openai", call.Provider)
	require.Equal(t, OperationWarmupPlan, call.Operation)
	require.Equal(t, 2, call.Attempts)
	require.NoError(t, call.Err)
	require.Equal(t, int64(9), *call.AccountID)
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	recorder := &recordingRecorder{}
	client, err := New(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"}, recorder, discardLogger())
	require.NoError(t, err)
	client.WithRetryPolicy(retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1})

	_, err = client.Complete(context.Background(), Request{Operation: OperationPersona, Prompt: "p"})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, recorder.calls, 1)
	require.Error(t, recorder.calls[0].Err)
}

func TestAnthropicComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
			"content":[{"type":"text","text":"{\"name\":\"Olena\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":6}}`))
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{
		Provider: "anthropic", Model: "claude-sonnet-4-20250514", APIKey: "k", BaseURL: srv.URL,
		Temperature: 0.5, MaxTokens: 256,
	}, nil, discardLogger())
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{Operation: OperationPersona, System: "be brief", Prompt: "persona"})
	require.NoError(t, err)
	require.Equal(t, `{"name":"Olena"}`, resp.Text)
	require.Equal(t, 6, resp.Usage.OutputTokens)
	require.Equal(t, "anthropic", client.Provider())

	require.EqualValues(t, 256, body["max_tokens"])
	require.NotNil(t, body["system"])
}
