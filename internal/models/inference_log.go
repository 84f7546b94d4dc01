package models

import "time"

// InferenceLog represents a single LLM API call
type InferenceLog struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`       // 'openai', 'anthropic'
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`      // 'warmup_plan', 'persona', 'chat_discovery'
	AccountID    *int64    `json:"account_id,omitempty"`
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  *int      `json:"input_tokens"`
	OutputTokens *int      `json:"output_tokens"`
	CostUSD      *float64  `json:"cost_usd"`
	LatencyMs    *int      `json:"latency_ms"`
	Status       string    `json:"status"` // 'success', 'error'
	ErrorMessage *string   `json:"error_message"`
	Metadata     string    `json:"metadata"` // JSON text
	CreatedAt    time.Time `json:"created_at"`
}

// InferenceLogStats represents aggregated statistics
type InferenceLogStats struct {
	TotalCalls      int     `json:"total_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

// InferenceLogQuery represents query parameters for filtering logs
type InferenceLogQuery struct {
	Provider  string
	Operation string
	Status    string
	AccountID *int64
	Since     *time.Time
	Limit     int
}
