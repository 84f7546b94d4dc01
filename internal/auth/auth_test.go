package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/config"
)

func TestAuthenticatorLogin(t *testing.T) {
	a, err := NewAuthenticator(config.AuthConfig{JWTSecret: "secret", AdminPassword: "hunter2", TokenDuration: time.Hour})
	if err != nil {
		t.Fatalf("NewAuthenticator returned error: %v", err)
	}

	if _, _, err := a.Login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login(wrong) = %v, want ErrInvalidCredentials", err)
	}

	token, expires, err := a.Login("hunter2")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("expiry too early: %v", expires)
	}

	userID, err := ValidateToken(token, "secret")
	if err != nil || userID != "admin" {
		t.Fatalf("ValidateToken = %q, %v", userID, err)
	}
	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Fatalf("token validated with the wrong secret")
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	if _, err := NewAuthenticator(config.AuthConfig{AdminPassword: "x"}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, err := GenerateToken("admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	expired, err := GenerateToken("admin", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	protected := AuthMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := GetUserIDFromContext(r.Context()); !ok || id != "admin" {
			t.Errorf("user id not in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
