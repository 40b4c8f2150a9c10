package repository

import (
	"context"
	"sync/atomic"
	"time"

	"agenda/internal/domain"
	"agenda/internal/ratelimit"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary until it errors, then from
// fallback, probing primary again once recoveryInterval has passed.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary session store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary is true while primary is healthy or a recovery check is due.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSessionRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary session store recovered")
	}
}

func (r *FailoverSessionRepository) GetLimiterState(ctx context.Context, sessionID string) (*ratelimit.State, error) {
	if r.usePrimary() {
		state, err := r.primary.GetLimiterState(ctx, sessionID)
		if err == nil {
			r.recovered()
			return state, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetLimiterState(ctx, sessionID)
}

func (r *FailoverSessionRepository) SetLimiterState(ctx context.Context, sessionID string, state *ratelimit.State) error {
	if r.usePrimary() {
		err := r.primary.SetLimiterState(ctx, sessionID, state)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetLimiterState(ctx, sessionID, state)
}

func (r *FailoverSessionRepository) ClearLimiterState(ctx context.Context, sessionID string) error {
	if r.usePrimary() {
		err := r.primary.ClearLimiterState(ctx, sessionID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearLimiterState(ctx, sessionID)
}
