package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tgwarmup/tgwarmup/internal/clock"
)

// RouterDeps collects everything the control API serves from.
type RouterDeps struct {
	// BaseContext bounds work that outlives a request, such as a scheduler
	// started over HTTP.
	BaseContext context.Context

	Auth           Authenticator
	AuthMiddleware func(http.Handler) http.Handler

	Accounts      AccountStore
	Runs          RunLister
	Warmup        WarmupService
	Scheduler     SchedulerControl
	Retention     RetentionSweeper
	ActivityLogs  ActivityLogLister
	InferenceLogs InferenceLogStore

	Ping    func(ctx context.Context) error
	Metrics http.Handler
	Clock   clock.Clock
}

func setCORSHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// protected answers CORS preflight itself and sends everything else through
// the auth middleware.
func protected(authMiddleware func(http.Handler) http.Handler, methods string, h http.HandlerFunc) http.HandlerFunc {
	wrapped := authMiddleware(h)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			setCORSHeaders(w, methods)
			w.WriteHeader(http.StatusOK)
			return
		}
		wrapped.ServeHTTP(w, r)
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(mux *http.ServeMux, deps RouterDeps, logger *slog.Logger) {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	authHandler := NewAuthHandler(deps.Auth, logger)
	accountsHandler := NewAccountsHandler(deps.Accounts, deps.Runs, deps.Clock, logger)
	warmupHandler := NewWarmupHandler(deps.Warmup, logger)
	schedulerHandler := NewSchedulerHandler(deps.BaseContext, deps.Scheduler, deps.Retention, logger)
	activityHandler := NewActivityLogHandlers(deps.ActivityLogs, logger)
	inferenceLogHandler := NewInferenceLogHandler(deps.InferenceLogs, logger)
	healthHandler := NewHealthHandler(deps.Ping, logger)

	authMiddleware := deps.AuthMiddleware

	// Public routes
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	mux.HandleFunc("/api/auth/validate", protected(authMiddleware, "GET, OPTIONS", authHandler.ValidateToken))

	// Accounts
	mux.HandleFunc("/api/accounts", protected(authMiddleware, "GET, POST, OPTIONS", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.ListAccounts(w, r)
		case http.MethodPost:
			accountsHandler.CreateAccount(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/accounts/", protected(authMiddleware, "GET, POST, PATCH, OPTIONS", func(w http.ResponseWriter, r *http.Request) {
		id, sub, err := parseAccountPath(r.URL.Path)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		route := func(method string, h func(http.ResponseWriter, *http.Request, int64)) {
			if r.Method != method {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h(w, r, id)
		}

		switch sub {
		case "":
			switch r.Method {
			case http.MethodGet:
				accountsHandler.GetAccount(w, r, id)
			case http.MethodPatch:
				accountsHandler.UpdateAccount(w, r, id)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		case "warmup":
			route(http.MethodPost, warmupHandler.TriggerWarmup)
		case "warmup/async":
			route(http.MethodPost, warmupHandler.TriggerWarmupAsync)
		case "eligibility":
			route(http.MethodGet, warmupHandler.GetEligibility)
		case "history":
			route(http.MethodGet, warmupHandler.GetHistory)
		case "runs":
			route(http.MethodGet, accountsHandler.ListRuns)
		default:
			http.NotFound(w, r)
		}
	}))

	// Scheduler control and maintenance
	mux.HandleFunc("/api/scheduler/status", protected(authMiddleware, "GET, OPTIONS", schedulerHandler.GetStatus))
	mux.HandleFunc("/api/scheduler/start", protected(authMiddleware, "POST, OPTIONS", schedulerHandler.Start))
	mux.HandleFunc("/api/scheduler/stop", protected(authMiddleware, "POST, OPTIONS", schedulerHandler.Stop))
	mux.HandleFunc("/api/maintenance/retention", protected(authMiddleware, "POST, OPTIONS", schedulerHandler.RunRetention))

	// Logs
	mux.HandleFunc("/api/activity-logs", protected(authMiddleware, "GET, OPTIONS", activityHandler.ListActivities))
	mux.HandleFunc("/api/inference-logs", protected(authMiddleware, "GET, OPTIONS", inferenceLogHandler.ListInferenceLogs))
	mux.HandleFunc("/api/inference-logs/stats", protected(authMiddleware, "GET, OPTIONS", inferenceLogHandler.GetInferenceStats))
}
