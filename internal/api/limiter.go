package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agenda/internal/config"
	"agenda/internal/worker"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBurst = 5

	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// keyedLimiter hands out one token bucket per client key. A non-positive RPS
// disables limiting. Buckets idle for longer than idleTTL are dropped by Sweep.
type keyedLimiter struct {
	limiters sync.Map // map[string]*limiterEntry
	cfg      config.APIRateLimitConfig
	idleTTL  time.Duration
	now      func() time.Time
}

func newKeyedLimiter(cfg config.APIRateLimitConfig) *keyedLimiter {
	return &keyedLimiter{cfg: cfg, idleTTL: limiterIdleTTL, now: time.Now}
}

func (l *keyedLimiter) Allow(key string) bool {
	if l.cfg.RPS <= 0 {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *keyedLimiter) getLimiter(key string) *rate.Limiter {
	now := l.now().UnixNano()
	if v, ok := l.limiters.Load(key); ok {
		if entry, ok := v.(*limiterEntry); ok {
			entry.lastSeen.Store(now)
			return entry.limiter
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	entry := &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)}
	entry.lastSeen.Store(now)
	actual, loaded := l.limiters.LoadOrStore(key, entry)
	if loaded {
		if actualEntry, ok := actual.(*limiterEntry); ok {
			actualEntry.lastSeen.Store(now)
			return actualEntry.limiter
		}
	}
	return entry.limiter
}

// Sweep drops buckets not used within idleTTL and returns how many went.
// A dropped caller starts again with a full bucket, which is what an idle
// bucket would have refilled to anyway.
func (l *keyedLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL).UnixNano()
	removed := 0
	l.limiters.Range(func(key, value any) bool {
		if entry, ok := value.(*limiterEntry); ok && entry.lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (l *keyedLimiter) Len() int {
	n := 0
	l.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// runLimiterSweeps sweeps every limiter until ctx is done.
func runLimiterSweeps(ctx context.Context, logger *zerolog.Logger, limiters ...*keyedLimiter) {
	sweeper := &worker.Periodic{
		Name:     "http-limiter-sweep",
		Interval: limiterSweepInterval,
		Task: func(context.Context) error {
			removed := 0
			for _, l := range limiters {
				removed += l.Sweep()
			}
			if removed > 0 {
				logger.Debug().Int("removed", removed).Msg("swept idle rate limiters")
			}
			return nil
		},
		Logger: logger,
	}
	sweeper.Run(ctx)
}
