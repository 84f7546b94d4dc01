package warmup

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tgwarmup/tgwarmup/internal/gateway"
	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/models"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) JoinChat(ctx context.Context, sessionID, chat string) error {
	return m.Called(ctx, sessionID, chat).Error(0)
}

func (m *mockGateway) SendMessage(ctx context.Context, sessionID, chat, text string) error {
	return m.Called(ctx, sessionID, chat, text).Error(0)
}

func (m *mockGateway) SendReaction(ctx context.Context, sessionID, chat string, messageID int64, emoji string) error {
	return m.Called(ctx, sessionID, chat, messageID, emoji).Error(0)
}

func (m *mockGateway) GetChatMessages(ctx context.Context, sessionID, chat string, limit int) ([]gateway.Message, error) {
	args := m.Called(ctx, sessionID, chat, limit)
	msgs, _ := args.Get(0).([]gateway.Message)
	return msgs, args.Error(1)
}

func (m *mockGateway) GetDialogs(ctx context.Context, sessionID string, limit int) error {
	return m.Called(ctx, sessionID, limit).Error(0)
}

func (m *mockGateway) UpdateProfile(ctx context.Context, sessionID string, p gateway.ProfileUpdate) error {
	return m.Called(ctx, sessionID, p).Error(0)
}

func (m *mockGateway) CreateGroup(ctx context.Context, sessionID, title string) error {
	return m.Called(ctx, sessionID, title).Error(0)
}

func (m *mockGateway) ForwardMessages(ctx context.Context, sessionID, fromChat, toChat string) error {
	return m.Called(ctx, sessionID, fromChat, toChat).Error(0)
}

type mockPlanner struct {
	mock.Mock
}

func (m *mockPlanner) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

// memoryHistory is an in-memory ledger that can be told to fail.
type memoryHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	failOn  models.ActionType
}

func (h *memoryHistory) Append(_ context.Context, e models.HistoryEntry) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failOn != "" && e.ActionType == h.failOn {
		return 0, io.ErrUnexpectedEOF
	}
	e.ID = int64(len(h.entries) + 1)
	h.entries = append(h.entries, e)
	return e.ID, nil
}

func (h *memoryHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// recordingSleeper never blocks; it records requested durations.
type recordingSleeper struct {
	mu     sync.Mutex
	slept  []time.Duration
	onCall func(n int)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	n := len(s.slept)
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// fixedRandom returns the same draws every time.
type fixedRandom struct {
	f float64
	n int
}

func (r fixedRandom) Float64() float64 { return r.f }

func (r fixedRandom) IntN(n int) int {
	if r.n >= n {
		return n - 1
	}
	return r.n
}

func testAccount() *models.Account {
	return &models.Account{
		ID:               7,
		SessionID:        "sess-7",
		WarmupStage:      1,
		MinDailyActivity: 3,
		MaxDailyActivity: 6,
		IsActive:         true,
	}
}
