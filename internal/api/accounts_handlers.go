package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

// AccountStore is the account persistence used by the API.
type AccountStore interface {
	Create(ctx context.Context, req models.CreateAccountRequest, now time.Time) (*models.Account, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Account, error)
	List(ctx context.Context, includeDeleted bool) ([]models.Account, error)
	Update(ctx context.Context, id int64, upd models.AccountUpdate, now time.Time) (*models.Account, error)
}

// RunLister lists warmup run records for an account.
type RunLister interface {
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.WarmupRun, error)
}

// AccountsHandler serves account registration and inspection.
type AccountsHandler struct {
	accounts AccountStore
	runs     RunLister
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAccountsHandler creates a new accounts handler
func NewAccountsHandler(accounts AccountStore, runs RunLister, clk clock.Clock, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{
		accounts: accounts,
		runs:     runs,
		clock:    clk,
		logger:   logger,
	}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	accounts, err := h.accounts.List(r.Context(), includeDeleted)
	if err != nil {
		h.logger.Error("failed to list accounts", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ValidateCreateAccount(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if _, err := h.accounts.GetBySessionID(ctx, req.SessionID); err == nil {
		writeError(w, h.logger, http.StatusConflict, "session_id already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error("failed to check session", "session_id", req.SessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create account")
		return
	}

	account, err := h.accounts.Create(ctx, req, h.clock.Now())
	if err != nil {
		h.logger.Error("failed to create account", "session_id", req.SessionID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create account")
		return
	}

	h.logger.Info("account registered", "account_id", account.ID, "session_id", account.SessionID)
	writeJSON(w, h.logger, http.StatusCreated, account)
}

// GetAccount handles GET /api/accounts/{id}
func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request, id int64) {
	account, ok := h.load(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, account)
}

// UpdateAccount handles PATCH /api/accounts/{id}
func (h *AccountsHandler) UpdateAccount(w http.ResponseWriter, r *http.Request, id int64) {
	var upd models.AccountUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	current, ok := h.load(w, r, id)
	if !ok {
		return
	}
	now := h.clock.Now()
	if err := ValidateAccountUpdate(current, upd, now); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.Update(r.Context(), id, upd, now)
	if err != nil {
		h.logger.Error("failed to update account", "account_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to update account")
		return
	}

	h.logger.Info("account updated", "account_id", id)
	writeJSON(w, h.logger, http.StatusOK, account)
}

// ListRuns handles GET /api/accounts/{id}/runs
func (h *AccountsHandler) ListRuns(w http.ResponseWriter, r *http.Request, id int64) {
	if _, ok := h.load(w, r, id); !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	runs, err := h.runs.ListByAccount(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("failed to list runs", "account_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"account_id": id,
		"runs":       runs,
		"count":      len(runs),
	})
}

func (h *AccountsHandler) load(w http.ResponseWriter, r *http.Request, id int64) (*models.Account, bool) {
	account, err := h.accounts.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "Account not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load account", "account_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load account")
		return nil, false
	}
	return account, true
}
