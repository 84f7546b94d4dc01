package gateway

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

// Telegram answers rate-limit and frozen-account errors with code 420.
const codeFlood = 420

var (
	floodWaitPattern = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)
	waitOfPattern    = regexp.MustCompile(`(?i)wait of (\d+) seconds`)
	rpcErrorPattern  = regexp.MustCompile(`\b(\d{3})\b[^A-Z]*\b([A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+)\b`)
	frozenPattern    = regexp.MustCompile(`\bFROZEN_[A-Z_]+\b`)
	typePattern      = regexp.MustCompile(`\b([A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+)\b`)
)

// APIError is a gateway failure that carries no Telegram RPC error.
type APIError struct {
	Method     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Method, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Method, e.Message)
}

// parseError maps an error string from the gateway onto a *tgerr.Error when
// it names a Telegram RPC error, so callers can use tgerr.Is and errors.As.
func parseError(method string, status int, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}

	if m := floodWaitPattern.FindStringSubmatch(msg); m != nil {
		return fmt.Errorf("gateway %s: %w", method, tgerr.New(codeFlood, "FLOOD_WAIT_"+m[1]))
	}
	if strings.Contains(strings.ToUpper(msg), "FLOOD") {
		seconds := "0"
		if m := waitOfPattern.FindStringSubmatch(msg); m != nil {
			seconds = m[1]
		}
		return fmt.Errorf("gateway %s: %w", method, tgerr.New(codeFlood, "FLOOD_WAIT_"+seconds))
	}
	if m := frozenPattern.FindString(msg); m != "" {
		return fmt.Errorf("gateway %s: %w", method, tgerr.New(codeFlood, m))
	}
	if m := rpcErrorPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return fmt.Errorf("gateway %s: %w", method, tgerr.New(code, m[2]))
	}
	if m := typePattern.FindStringSubmatch(msg); m != nil && status >= 400 {
		return fmt.Errorf("gateway %s: %w", method, tgerr.New(status, m[1]))
	}
	return &APIError{Method: method, StatusCode: status, Message: msg}
}

// AsFloodWait reports the wait Telegram demanded, if err is a FLOOD_WAIT.
func AsFloodWait(err error) (time.Duration, bool) {
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Code == codeFlood && rpcErr.Type == tgerr.ErrFloodWait {
		return time.Duration(rpcErr.Argument) * time.Second, true
	}
	return 0, false
}

// IsFrozen reports whether err means the account is frozen by Telegram.
func IsFrozen(err error) bool {
	var rpcErr *tgerr.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.HasPrefix(rpcErr.Type, "FROZEN_")
}
