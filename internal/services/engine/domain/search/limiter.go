package search

import (
	"context"
	"sync/atomic"
	"time"
)

// StopReason records why a search ended. Several reasons can hold at once.
type StopReason int

const (
	StopNone       StopReason = 0
	StopInterrupt  StopReason = 1 // SetStop or context cancellation
	StopMovetime   StopReason = 2 // time limit reached
	StopCandidates StopReason = 4 // candidate limit reached
	StopExhausted  StopReason = 8 // every candidate explored
)

func (sr StopReason) String() string {
	if sr == StopNone {
		return "None"
	}
	reasons := []struct {
		flag StopReason
		name string
	}{
		{StopInterrupt, "Interrupt"},
		{StopMovetime, "Movetime"},
		{StopCandidates, "Candidates"},
		{StopExhausted, "Exhausted"},
	}
	var result string
	for _, r := range reasons {
		if sr&r.flag == r.flag {
			if result != "" {
				result += "|"
			}
			result += r.name
		}
	}
	return result
}

// Limiter decides between candidates whether a search may continue. It is
// safe for concurrent use by parallel workers.
type Limiter struct {
	limits *Limits
	ctx    context.Context
	start  time.Time
	stop   atomic.Bool
}

// NewLimiter creates a limiter for limits.
func NewLimiter(limits *Limits) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{limits: limits, ctx: context.Background(), start: time.Now()}
}

// Reset starts the clock and clears the stop signal.
func (l *Limiter) Reset(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.ctx = ctx
	l.start = time.Now()
	l.stop.Store(false)
}

// SetStop raises or clears the stop signal.
func (l *Limiter) SetStop(v bool) {
	l.stop.Store(v)
}

// Stop reports whether the search was interrupted.
func (l *Limiter) Stop() bool {
	select {
	case <-l.ctx.Done():
		l.stop.Store(true)
	default:
	}
	return l.stop.Load()
}

// Elapsed returns time since Reset.
func (l *Limiter) Elapsed() time.Duration {
	return time.Since(l.start)
}

// Expired reports whether the search was interrupted or ran out of time.
func (l *Limiter) Expired() bool {
	return l.Stop() || (l.limits.Movetime > 0 && l.Elapsed() >= l.limits.Movetime)
}

// Reason evaluates every limit given how many candidates were explored out
// of total.
func (l *Limiter) Reason(explored, total int) StopReason {
	reason := StopNone
	if l.Stop() {
		reason |= StopInterrupt
	}
	if l.limits.Movetime > 0 && l.Elapsed() >= l.limits.Movetime {
		reason |= StopMovetime
	}
	if l.limits.Candidates > 0 && explored >= l.limits.Candidates {
		reason |= StopCandidates
	}
	if explored >= total {
		reason |= StopExhausted
	}
	return reason
}

// Ok reports whether another candidate may be explored.
func (l *Limiter) Ok(explored, total int) bool {
	return l.Reason(explored, total) == StopNone
}
