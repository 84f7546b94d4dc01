// Package inference records every LLM call in the inference_logs table.
package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// Store persists inference log rows.
type Store interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger logs inference calls to the database
type Logger struct {
	repo   Store
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewLogger creates a new inference logger
func NewLogger(repo Store, logger *slog.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// RecordCall implements llm.Recorder.
func (l *Logger) RecordCall(ctx context.Context, call llm.Call) {
	input, output := call.Usage.InputTokens, call.Usage.OutputTokens
	latencyMs := int(call.Latency.Milliseconds())
	cost := EstimateCost(call.Provider, call.Model, input, output)

	log := models.InferenceLog{
		Provider:     call.Provider,
		Model:        call.Model,
		Operation:    call.Operation,
		AccountID:    call.AccountID,
		TokensUsed:   input + output,
		InputTokens:  &input,
		OutputTokens: &output,
		CostUSD:      &cost,
		LatencyMs:    &latencyMs,
		Status:       "success",
		CreatedAt:    l.now().UTC(),
	}
	if call.Err != nil {
		log.Status = "error"
		msg := call.Err.Error()
		log.ErrorMessage = &msg
	}
	if call.Attempts > 1 {
		if raw, err := json.Marshal(map[string]any{"attempts": call.Attempts}); err == nil {
			log.Metadata = string(raw)
		}
	}

	// Log asynchronously to avoid blocking the main operation
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.repo.Create(context.WithoutCancel(ctx), log); err != nil {
			l.logger.Error("failed to log inference call", "operation", log.Operation, "error", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	l.wg.Wait()
}

// EstimateCost provides rough per-call cost estimates in USD.
func EstimateCost(provider, model string, inputTokens, outputTokens int) float64 {
	var inputCostPer1M, outputCostPer1M float64

	switch provider {
	case "openai":
		switch model {
		case "gpt-4o":
			inputCostPer1M, outputCostPer1M = 2.50, 10.00
		case "gpt-4o-mini":
			inputCostPer1M, outputCostPer1M = 0.15, 0.60
		case "gpt-4.1-mini":
			inputCostPer1M, outputCostPer1M = 0.40, 1.60
		case "gpt-4-turbo", "gpt-4-turbo-preview":
			inputCostPer1M, outputCostPer1M = 10.00, 30.00
		default:
			inputCostPer1M, outputCostPer1M = 5.00, 15.00
		}
	case "anthropic":
		switch model {
		case "claude-3-5-haiku-20241022":
			inputCostPer1M, outputCostPer1M = 0.80, 4.00
		case "claude-3-opus-20240229":
			inputCostPer1M, outputCostPer1M = 15.00, 75.00
		default:
			inputCostPer1M, outputCostPer1M = 3.00, 15.00
		}
	default:
		return 0
	}

	inputCost := (float64(inputTokens) / 1_000_000) * inputCostPer1M
	outputCost := (float64(outputTokens) / 1_000_000) * outputCostPer1M
	return inputCost + outputCost
}
