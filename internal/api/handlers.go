package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

// ErrorResponse is the JSON body of every non-2xx reply produced by this package.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// writeWarmupError maps service errors onto status codes:
// 422 for an ineligible account, 409 for a run already in flight, 404 for
// an unknown id.
func writeWarmupError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var skip *warmup.SkipError
	switch {
	case errors.As(err, &skip):
		writeJSON(w, logger, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "account is not eligible for warmup",
			Code:   string(skip.Reason.Code),
			Reason: skip.Reason.Message,
		})
	case errors.Is(err, warmup.ErrRunInProgress):
		writeError(w, logger, http.StatusConflict, "warmup already running for this account")
	case errors.Is(err, warmup.ErrAccountNotFound), errors.Is(err, database.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "Account not found")
	default:
		logger.Error("warmup request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "Internal server error")
	}
}

// parseAccountPath splits /api/accounts/{id}[/sub...] into the id and the
// remaining sub-path ("" for the account itself).
func parseAccountPath(path string) (int64, string, error) {
	rest := strings.TrimPrefix(path, "/api/accounts/")
	rest = strings.Trim(rest, "/")
	idPart, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", errors.New("invalid account id")
	}
	return id, sub, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// HealthHandler answers liveness probes with a database ping.
type HealthHandler struct {
	ping      func(ctx context.Context) error
	logger    *slog.Logger
	startTime time.Time
}

// NewHealthHandler creates a health handler around ping.
func NewHealthHandler(ping func(ctx context.Context) error, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{ping: ping, logger: logger, startTime: time.Now()}
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := http.StatusOK
	body := map[string]interface{}{
		"status":         "ok",
		"database":       "ok",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if err := h.ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	writeJSON(w, h.logger, status, body)
}
