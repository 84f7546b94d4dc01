package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tgwarmup/tgwarmup/internal/scheduler"
)

// SchedulerControl starts, stops and reports on the warmup loop.
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop()
	Status() scheduler.Status
}

// RetentionSweeper prunes history on demand.
type RetentionSweeper interface {
	Sweep(ctx context.Context) (scheduler.SweepResult, error)
}

// SchedulerHandler exposes scheduler control and maintenance.
type SchedulerHandler struct {
	scheduler SchedulerControl
	retention RetentionSweeper
	// baseCtx outlives any single request; a scheduler started over HTTP
	// must keep running after the response is written.
	baseCtx context.Context
	logger  *slog.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(baseCtx context.Context, sched SchedulerControl, retention RetentionSweeper, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
		retention: retention,
		baseCtx:   baseCtx,
		logger:    logger,
	}
}

// GetStatus handles GET /api/scheduler/status
func (h *SchedulerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.scheduler.Status())
}

// Start handles POST /api/scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.scheduler.Start(h.baseCtx); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			writeError(w, h.logger, http.StatusConflict, "Scheduler already running")
			return
		}
		h.logger.Error("failed to start scheduler", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to start scheduler")
		return
	}

	h.logger.Info("warmup scheduler started via API")
	writeJSON(w, h.logger, http.StatusOK, h.scheduler.Status())
}

// Stop handles POST /api/scheduler/stop
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.scheduler.Stop()
	h.logger.Info("warmup scheduler stopped via API")
	writeJSON(w, h.logger, http.StatusOK, h.scheduler.Status())
}

// RunRetention handles POST /api/maintenance/retention
func (h *SchedulerHandler) RunRetention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.retention.Sweep(r.Context())
	if err != nil {
		h.logger.Error("retention sweep failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Retention sweep failed")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
