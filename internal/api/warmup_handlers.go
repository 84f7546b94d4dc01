package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

// WarmupService is the orchestration surface behind the warmup endpoints.
type WarmupService interface {
	TriggerSync(ctx context.Context, accountID int64) (*warmup.RunSummary, error)
	TriggerAsync(ctx context.Context, accountID int64) (string, error)
	Eligibility(ctx context.Context, accountID int64) (bool, warmup.SkipReason, error)
	History(ctx context.Context, accountID int64, sinceDays int) (*warmup.HistoryView, error)
}

// WarmupHandler triggers runs and reports eligibility and history.
type WarmupHandler struct {
	service WarmupService
	logger  *slog.Logger
}

// NewWarmupHandler creates a new warmup handler
func NewWarmupHandler(service WarmupService, logger *slog.Logger) *WarmupHandler {
	return &WarmupHandler{service: service, logger: logger}
}

// TriggerWarmup handles POST /api/accounts/{id}/warmup and blocks until the run ends.
func (h *WarmupHandler) TriggerWarmup(w http.ResponseWriter, r *http.Request, id int64) {
	summary, err := h.service.TriggerSync(r.Context(), id)
	if err != nil {
		writeWarmupError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, summary)
}

// TriggerWarmupAsync handles POST /api/accounts/{id}/warmup/async
func (h *WarmupHandler) TriggerWarmupAsync(w http.ResponseWriter, r *http.Request, id int64) {
	runID, err := h.service.TriggerAsync(r.Context(), id)
	if err != nil {
		writeWarmupError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, map[string]interface{}{
		"account_id": id,
		"run_id":     runID,
		"status":     "accepted",
	})
}

// GetEligibility handles GET /api/accounts/{id}/eligibility
func (h *WarmupHandler) GetEligibility(w http.ResponseWriter, r *http.Request, id int64) {
	eligible, reason, err := h.service.Eligibility(r.Context(), id)
	if err != nil {
		writeWarmupError(w, h.logger, err)
		return
	}

	body := map[string]interface{}{
		"account_id": id,
		"eligible":   eligible,
	}
	if !eligible {
		body["code"] = reason.Code
		body["reason"] = reason.Message
	}
	writeJSON(w, h.logger, http.StatusOK, body)
}

// GetHistory handles GET /api/accounts/{id}/history?days=N
func (h *WarmupHandler) GetHistory(w http.ResponseWriter, r *http.Request, id int64) {
	view, err := h.service.History(r.Context(), id, queryInt(r, "days", 0))
	if err != nil {
		writeWarmupError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}
