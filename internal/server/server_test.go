package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/config"
)

func TestStartAndShutdown(t *testing.T) {
	cfg := config.ServerConfig{
		Port:            "0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
	srv := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), http.NotFoundHandler())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	// Give ListenAndServe a moment to bind before shutting down.
	time.Sleep(50 * time.Millisecond)
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
