package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"agenda/internal/ratelimit"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) GetLimiterState(ctx context.Context, sessionID string) (*ratelimit.State, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ratelimit.State), args.Error(1)
}

func (m *mockSessionRepo) SetLimiterState(ctx context.Context, sessionID string, state *ratelimit.State) error {
	return m.Called(ctx, sessionID, state).Error(0)
}

func (m *mockSessionRepo) ClearLimiterState(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func TestFailoverSessionRepository(t *testing.T) {
	primary := new(mockSessionRepo)
	fallback := new(mockSessionRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionRepository(primary, fallback, &logger)
	ctx := context.Background()

	now := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &ratelimit.State{AttemptCount: 1}
		primary.On("GetLimiterState", ctx, "s1").Return(state, nil).Once()

		got, err := repo.GetLimiterState(ctx, "s1")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &ratelimit.State{AttemptCount: 2}
		primary.On("GetLimiterState", ctx, "s2").Return(nil, errors.New("connection refused")).Once()
		fallback.On("GetLimiterState", ctx, "s2").Return(state, nil).Once()

		got, err := repo.GetLimiterState(ctx, "s2")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		state := &ratelimit.State{AttemptCount: 3}
		fallback.On("SetLimiterState", ctx, "s3", state).Return(nil).Once()

		assert.NoError(t, repo.SetLimiterState(ctx, "s3", state))
		primary.AssertNotCalled(t, "SetLimiterState", ctx, "s3", state)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("ClearLimiterState", ctx, "s4").Return(nil).Once()

		assert.NoError(t, repo.ClearLimiterState(ctx, "s4"))
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("FailedRecoveryResetsTimer", func(t *testing.T) {
		primary.On("ClearLimiterState", ctx, "s5").Return(errors.New("still down")).Once()
		fallback.On("ClearLimiterState", ctx, "s5").Return(nil).Once()

		assert.NoError(t, repo.ClearLimiterState(ctx, "s5"))
		assert.True(t, repo.isDown.Load())
		assert.False(t, repo.usePrimary())

		now = now.Add(61 * time.Second)
		assert.True(t, repo.usePrimary())
	})
}
