// Package ratelimit throttles bookings per client session.
//
// The limiter itself is stateless: callers own a State per session and pass it
// in, so the same Limiter serves every session.
package ratelimit

import (
	"errors"
	"time"
)

var ErrLimitExceeded = errors.New("too many booking attempts, try again later")

const (
	DefaultMaxAttempts = 3
	DefaultWindow      = 10 * time.Minute
)

// State is the per-session attempt counter.
type State struct {
	AttemptCount int       `json:"attempt_count"`
	WindowStart  time.Time `json:"window_start"`
	LastAttempt  time.Time `json:"last_attempt"`
}

type Limiter struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time
}

func New(maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{MaxAttempts: maxAttempts, Window: window, Now: time.Now}
}

func (l *Limiter) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// Allow resets the state once Window has passed since the last recorded
// booking and rejects when the attempt budget is spent. It never records.
func (l *Limiter) Allow(s *State) error {
	if s == nil {
		return nil
	}
	now := l.now()
	if !s.LastAttempt.IsZero() && now.Sub(s.LastAttempt) >= l.Window {
		*s = State{}
	}
	if s.AttemptCount >= l.MaxAttempts {
		return ErrLimitExceeded
	}
	return nil
}

// Record counts one successful booking.
func (l *Limiter) Record(s *State) {
	if s == nil {
		return
	}
	now := l.now()
	if s.AttemptCount == 0 {
		s.WindowStart = now
	}
	s.AttemptCount++
	s.LastAttempt = now
}

// RetryAfter is how long until the state resets; zero when attempts remain.
func (l *Limiter) RetryAfter(s *State) time.Duration {
	if s == nil || s.AttemptCount < l.MaxAttempts {
		return 0
	}
	wait := l.Window - l.now().Sub(s.LastAttempt)
	if wait < 0 {
		return 0
	}
	return wait
}
