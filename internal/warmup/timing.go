package warmup

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Random is the randomness the executor and scheduler draw from.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

// Sleep blocks for d, returning ctx.Err() if ctx ends first.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewRandom returns a goroutine-safe Random backed by math/rand/v2.
func NewRandom() Random {
	return globalRandom{}
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

// Timing holds the human-like pacing parameters.
type Timing struct {
	DelayMin                 time.Duration
	DelayMax                 time.Duration
	ExtendedPauseProbability float64
	ExtendedPauseMin         time.Duration
	ExtendedPauseMax         time.Duration
	BotReplyMin              time.Duration
	BotReplyMax              time.Duration
}

// DefaultTiming waits 3-10s between actions and occasionally 5-10s more.
func DefaultTiming() Timing {
	return Timing{
		DelayMin:                 3 * time.Second,
		DelayMax:                 10 * time.Second,
		ExtendedPauseProbability: 0.1,
		ExtendedPauseMin:         5 * time.Second,
		ExtendedPauseMax:         10 * time.Second,
		BotReplyMin:              2 * time.Second,
		BotReplyMax:              5 * time.Second,
	}
}

// uniform draws a duration in [lo,hi].
func uniform(r Random, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.Float64()*float64(hi-lo))
}

// interActionDelay is the pause between two consecutive actions.
func (t Timing) interActionDelay(r Random) time.Duration {
	d := uniform(r, t.DelayMin, t.DelayMax)
	if r.Float64() < t.ExtendedPauseProbability {
		d += uniform(r, t.ExtendedPauseMin, t.ExtendedPauseMax)
	}
	return d
}
