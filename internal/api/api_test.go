package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tgwarmup/tgwarmup/internal/auth"
	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/database/dbtest"
	"github.com/tgwarmup/tgwarmup/internal/models"
	"github.com/tgwarmup/tgwarmup/internal/scheduler"
	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type mockWarmup struct {
	mock.Mock
}

func (m *mockWarmup) TriggerSync(ctx context.Context, accountID int64) (*warmup.RunSummary, error) {
	args := m.Called(ctx, accountID)
	summary, _ := args.Get(0).(*warmup.RunSummary)
	return summary, args.Error(1)
}

func (m *mockWarmup) TriggerAsync(ctx context.Context, accountID int64) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockWarmup) Eligibility(ctx context.Context, accountID int64) (bool, warmup.SkipReason, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Get(1).(warmup.SkipReason), args.Error(2)
}

func (m *mockWarmup) History(ctx context.Context, accountID int64, sinceDays int) (*warmup.HistoryView, error) {
	args := m.Called(ctx, accountID, sinceDays)
	view, _ := args.Get(0).(*warmup.HistoryView)
	return view, args.Error(1)
}

type fakeScheduler struct {
	mu      sync.Mutex
	running bool
	ctx     context.Context
}

func (f *fakeScheduler) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return scheduler.ErrAlreadyRunning
	}
	f.running = true
	f.ctx = ctx
	return nil
}

func (f *fakeScheduler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeScheduler) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Status{Running: f.running, Interval: "30m0s"}
}

type fakeSweeper struct {
	result scheduler.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) Sweep(context.Context) (scheduler.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

type fixture struct {
	mux       *http.ServeMux
	token     string
	accounts  *database.AccountRepository
	runs      *database.RunRepository
	activity  *database.ActivityLogRepository
	warmup    *mockWarmup
	scheduler *fakeScheduler
	sweeper   *fakeSweeper
	baseCtx   context.Context
	pingErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.New(t)
	authenticator, err := auth.NewAuthenticator(config.AuthConfig{
		JWTSecret:     "test-secret",
		AdminPassword: "letmein",
		TokenDuration: time.Hour,
	})
	require.NoError(t, err)

	token, _, err := authenticator.Login("letmein")
	require.NoError(t, err)

	baseCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		mux:       http.NewServeMux(),
		token:     token,
		accounts:  database.NewAccountRepository(db),
		runs:      database.NewRunRepository(db),
		activity:  database.NewActivityLogRepository(db),
		warmup:    &mockWarmup{},
		scheduler: &fakeScheduler{},
		sweeper:   &fakeSweeper{result: scheduler.SweepResult{HistoryDeleted: 4, ActivityDeleted: 1}},
		baseCtx:   baseCtx,
	}

	SetupRoutes(f.mux, RouterDeps{
		BaseContext:    baseCtx,
		Auth:           authenticator,
		AuthMiddleware: authenticator.Middleware(),
		Accounts:       f.accounts,
		Runs:           f.runs,
		Warmup:         f.warmup,
		Scheduler:      f.scheduler,
		Retention:      f.sweeper,
		ActivityLogs:   f.activity,
		InferenceLogs:  database.NewInferenceLogRepository(db),
		Ping:           func(context.Context) error { return f.pingErr },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "tgwarmup_up 1")
		}),
		Clock: clock.NewMock(baseTime),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.token)
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) createAccount(t *testing.T, session string) *models.Account {
	t.Helper()
	account, err := f.accounts.Create(context.Background(), models.CreateAccountRequest{
		SessionID: session, PhoneNumber: "+380501234567", MinDailyActivity: 3, MaxDailyActivity: 6,
	}, baseTime)
	require.NoError(t, err)
	return account
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		password string
		want     int
	}{
		{"wrong password", "nope", http.StatusUnauthorized},
		{"right password", "letmein", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(LoginRequest{Password: tt.password})
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
			rr := httptest.NewRecorder()
			f.mux.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && decode[LoginResponse](t, rr).Token == "" {
				t.Fatal("empty token")
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/accounts", "/api/accounts/1", "/api/scheduler/status", "/api/activity-logs"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		f.mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: status = %d, headers = %v", rr.Code, rr.Header())
	}
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture(t)

	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}

	f.pingErr = errors.New("database is locked")
	rr = httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz with failing ping: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte("tgwarmup_up")) {
		t.Fatalf("metrics: status = %d body = %q", rr.Code, rr.Body.String())
	}
}

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/accounts", map[string]any{"session_id": "sess-1", "phone_number": "+79161234567"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[models.Account](t, rr)
	if created.WarmupStage != 1 || !created.IsActive {
		t.Errorf("new account = stage %d active %v", created.WarmupStage, created.IsActive)
	}
	if created.MinDailyActivity != models.DefaultMinDailyActivity || created.MaxDailyActivity != models.DefaultMaxDailyActivity {
		t.Errorf("default bounds = %d..%d", created.MinDailyActivity, created.MaxDailyActivity)
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"duplicate session", map[string]any{"session_id": "sess-1"}, http.StatusConflict},
		{"missing session", map[string]any{"phone_number": "+123456"}, http.StatusBadRequest},
		{"bad phone", map[string]any{"session_id": "s2", "phone_number": "abc"}, http.StatusBadRequest},
		{"min above max", map[string]any{"session_id": "s3", "min_daily_activity": 8, "max_daily_activity": 4}, http.StatusBadRequest},
		{"above ceiling", map[string]any{"session_id": "s4", "min_daily_activity": 2, "max_daily_activity": 11}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/accounts", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	list := decode[struct {
		Accounts []models.Account `json:"accounts"`
		Count    int              `json:"count"`
	}](t, f.do(t, http.MethodGet, "/api/accounts", nil))
	if list.Count != 1 {
		t.Fatalf("listed %d accounts, want 1", list.Count)
	}
}

func TestGetAndUpdateAccount(t *testing.T) {
	f := newFixture(t)
	account := f.createAccount(t, "sess-1")
	path := fmt.Sprintf("/api/accounts/%d", account.ID)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, nil).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/accounts/999", nil).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/accounts/abc", nil).Code)

	rr := f.do(t, http.MethodPatch, path, map[string]any{"is_active": false, "max_daily_activity": 9})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[models.Account](t, rr)
	if updated.IsActive || updated.MaxDailyActivity != 9 {
		t.Errorf("updated = active %v max %d", updated.IsActive, updated.MaxDailyActivity)
	}

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, path, map[string]any{"min_daily_activity": 10, "max_daily_activity": 5}).Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, path, map[string]any{"unban_date": baseTime.Add(-time.Hour)}).Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, path, map[string]any{"is_deleted": true}).Code)
	rr = f.do(t, http.MethodPatch, path, map[string]any{"is_deleted": false})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("undelete status = %d, want 400", rr.Code)
	}
}

func TestWarmupEndpoints(t *testing.T) {
	f := newFixture(t)

	summary := &warmup.RunSummary{RunID: "run-1", AccountID: 7, Stage: 2, Total: 3, Successful: 3}
	f.warmup.On("TriggerSync", mock.Anything, int64(7)).Return(summary, nil)
	f.warmup.On("TriggerSync", mock.Anything, int64(8)).Return(nil, &warmup.SkipError{
		AccountID: 8, Reason: warmup.SkipReason{Code: warmup.SkipFrozen, Message: "account is frozen"},
	})
	f.warmup.On("TriggerSync", mock.Anything, int64(9)).Return(nil, warmup.ErrRunInProgress)
	f.warmup.On("TriggerSync", mock.Anything, int64(10)).Return(nil, fmt.Errorf("account 10: %w", warmup.ErrAccountNotFound))
	f.warmup.On("TriggerAsync", mock.Anything, int64(7)).Return("run-2", nil)

	rr := f.do(t, http.MethodPost, "/api/accounts/7/warmup", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	if got := decode[warmup.RunSummary](t, rr); got.RunID != "run-1" || got.Successful != 3 {
		t.Errorf("summary = %+v", got)
	}

	rr = f.do(t, http.MethodPost, "/api/accounts/8/warmup", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	if body := decode[ErrorResponse](t, rr); body.Code != string(warmup.SkipFrozen) || body.Reason == "" {
		t.Errorf("skip body = %+v", body)
	}

	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/accounts/9/warmup", nil).Code)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/accounts/10/warmup", nil).Code)
	require.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/accounts/7/warmup", nil).Code)

	rr = f.do(t, http.MethodPost, "/api/accounts/7/warmup/async", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	if got := decode[map[string]any](t, rr); got["run_id"] != "run-2" {
		t.Errorf("async body = %v", got)
	}

	f.warmup.AssertExpectations(t)
}

func TestEligibilityAndHistory(t *testing.T) {
	f := newFixture(t)

	f.warmup.On("Eligibility", mock.Anything, int64(3)).Return(false, warmup.SkipReason{Code: warmup.SkipBannedTemporary, Message: "banned until tomorrow"}, nil)
	f.warmup.On("Eligibility", mock.Anything, int64(4)).Return(true, warmup.SkipReason{}, nil)
	f.warmup.On("History", mock.Anything, int64(3), 14).Return(&warmup.HistoryView{AccountID: 3, SinceDays: 14}, nil)
	f.warmup.On("History", mock.Anything, int64(4), 0).Return(&warmup.HistoryView{AccountID: 4, SinceDays: 7}, nil)

	got := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/accounts/3/eligibility", nil))
	if got["eligible"] != false || got["code"] != string(warmup.SkipBannedTemporary) {
		t.Errorf("eligibility = %v", got)
	}
	got = decode[map[string]any](t, f.do(t, http.MethodGet, "/api/accounts/4/eligibility", nil))
	if got["eligible"] != true {
		t.Errorf("eligibility = %v", got)
	}
	if _, ok := got["code"]; ok {
		t.Errorf("eligible account carries a skip code: %v", got)
	}

	view := decode[warmup.HistoryView](t, f.do(t, http.MethodGet, "/api/accounts/3/history?days=14", nil))
	if view.SinceDays != 14 {
		t.Errorf("since days = %d", view.SinceDays)
	}
	view = decode[warmup.HistoryView](t, f.do(t, http.MethodGet, "/api/accounts/4/history", nil))
	if view.SinceDays != 7 {
		t.Errorf("default since days = %d", view.SinceDays)
	}

	f.warmup.AssertExpectations(t)
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	account := f.createAccount(t, "sess-1")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.runs.Create(context.Background(), models.WarmupRun{
			ID:        fmt.Sprintf("run-%d", i),
			AccountID: account.ID,
			Stage:     1,
			Trigger:   models.TriggerManual,
			Status:    models.RunStatusRunning,
			StartedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}

	rr := f.do(t, http.MethodGet, fmt.Sprintf("/api/accounts/%d/runs?limit=2", account.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Runs  []models.WarmupRun `json:"runs"`
		Count int                `json:"count"`
	}](t, rr)
	if body.Count != 2 {
		t.Fatalf("runs = %d, want 2", body.Count)
	}

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/accounts/999/runs", nil).Code)
}

func TestSchedulerControl(t *testing.T) {
	f := newFixture(t)

	status := decode[scheduler.Status](t, f.do(t, http.MethodGet, "/api/scheduler/status", nil))
	if status.Running {
		t.Fatal("scheduler reported running before start")
	}

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/scheduler/start", nil).Code)
	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/scheduler/start", nil).Code)
	if f.scheduler.ctx != f.baseCtx {
		t.Error("scheduler was started with the request context")
	}

	rr := f.do(t, http.MethodPost, "/api/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	if decode[scheduler.Status](t, rr).Running {
		t.Error("scheduler still running after stop")
	}

	rr = f.do(t, http.MethodPost, "/api/maintenance/retention", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	if got := decode[scheduler.SweepResult](t, rr); got.HistoryDeleted != 4 || f.sweeper.calls != 1 {
		t.Errorf("sweep = %+v calls = %d", got, f.sweeper.calls)
	}

	f.sweeper.err = errors.New("disk full")
	require.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, "/api/maintenance/retention", nil).Code)
}

func TestActivityLogs(t *testing.T) {
	f := newFixture(t)
	account := f.createAccount(t, "sess-1")

	ctx := context.Background()
	require.NoError(t, f.activity.Log(ctx, models.ActivityLog{Timestamp: baseTime, ActivityType: models.ActivityTypeSchedulerTick, Message: "tick"}))
	require.NoError(t, f.activity.Log(ctx, models.ActivityLog{Timestamp: baseTime, ActivityType: models.ActivityTypeAccountFrozen, AccountID: &account.ID, Message: "frozen"}))

	body := decode[struct {
		Logs  []models.ActivityLog `json:"logs"`
		Count int                  `json:"count"`
	}](t, f.do(t, http.MethodGet, "/api/activity-logs?activity_type=account_frozen", nil))
	if body.Count != 1 || body.Logs[0].Message != "frozen" {
		t.Fatalf("activity logs = %+v", body)
	}

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/activity-logs?account_id=x", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/inference-logs", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/inference-logs/stats", nil).Code)
}

func TestParseAccountPath(t *testing.T) {
	tests := []struct {
		path    string
		id      int64
		sub     string
		wantErr bool
	}{
		{"/api/accounts/12", 12, "", false},
		{"/api/accounts/12/", 12, "", false},
		{"/api/accounts/12/warmup/async", 12, "warmup/async", false},
		{"/api/accounts/0", 0, "", true},
		{"/api/accounts/", 0, "", true},
		{"/api/accounts/x/runs", 0, "", true},
	}
	for _, tt := range tests {
		id, sub, err := parseAccountPath(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAccountPath(%q) err = %v", tt.path, err)
			continue
		}
		if id != tt.id || sub != tt.sub {
			t.Errorf("parseAccountPath(%q) = %d, %q", tt.path, id, tt.sub)
		}
	}
}
