package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// InferenceLogStore reads the LLM call ledger.
type InferenceLogStore interface {
	List(ctx context.Context, query models.InferenceLogQuery) ([]models.InferenceLog, error)
	GetStats(ctx context.Context, since *time.Time) (*models.InferenceLogStats, error)
}

// InferenceLogHandler handles HTTP requests for inference log management
type InferenceLogHandler struct {
	repo   InferenceLogStore
	logger *slog.Logger
}

// NewInferenceLogHandler creates a new handler
func NewInferenceLogHandler(repo InferenceLogStore, logger *slog.Logger) *InferenceLogHandler {
	return &InferenceLogHandler{
		repo:   repo,
		logger: logger,
	}
}

// ListInferenceLogs handles GET /api/inference-logs
func (h *InferenceLogHandler) ListInferenceLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := models.InferenceLogQuery{
		Provider:  r.URL.Query().Get("provider"),
		Operation: r.URL.Query().Get("operation"),
		Status:    r.URL.Query().Get("status"),
		Limit:     queryInt(r, "limit", 100),
	}

	if s := r.URL.Query().Get("account_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid account_id")
			return
		}
		query.AccountID = &id
	}

	if s := r.URL.Query().Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		query.Since = &since
	}

	logs, err := h.repo.List(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to list inference logs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list inference logs")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"limit": query.Limit,
	})
}

// GetInferenceStats handles GET /api/inference-logs/stats
func (h *InferenceLogHandler) GetInferenceStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var since *time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			since = &parsed
		}
	}

	stats, err := h.repo.GetStats(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to get inference stats", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to get inference stats")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, stats)
}
