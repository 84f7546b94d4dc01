package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so schedulers and policies can be tested.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the system time in UTC.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Mock implements Clock for tests.
type Mock struct {
	mu          sync.Mutex
	currentTime time.Time
}

// NewMock returns a Mock frozen at t.
func NewMock(t time.Time) *Mock {
	return &Mock{currentTime: t}
}

// Now returns the mocked current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Advance moves the current time forward by the specified duration.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// Set pins the mock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}
