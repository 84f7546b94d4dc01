package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// ActivityLogLister reads background activity records.
type ActivityLogLister interface {
	List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, error)
}

type ActivityLogHandlers struct {
	repo   ActivityLogLister
	logger *slog.Logger
}

func NewActivityLogHandlers(repo ActivityLogLister, logger *slog.Logger) *ActivityLogHandlers {
	return &ActivityLogHandlers{
		repo:   repo,
		logger: logger,
	}
}

// ListActivities handles GET /api/activity-logs
func (h *ActivityLogHandlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := models.ActivityLogFilter{
		ActivityType: models.ActivityType(r.URL.Query().Get("activity_type")),
		Limit:        queryInt(r, "limit", 100),
	}
	if s := r.URL.Query().Get("account_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid account_id")
			return
		}
		filter.AccountID = &id
	}

	logs, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list activity logs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve activity logs")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
