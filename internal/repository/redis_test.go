package repository

import (
	"context"
	"testing"
	"time"

	"agenda/internal/config"
	"agenda/internal/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisSessionRepository(client, 10*time.Minute)
	ctx := context.Background()
	last := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("SetAndGet", func(t *testing.T) {
		state := &ratelimit.State{AttemptCount: 2, WindowStart: last.Add(-time.Minute), LastAttempt: last}
		require.NoError(t, repo.SetLimiterState(ctx, "abc", state))

		got, err := repo.GetLimiterState(ctx, "abc")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.AttemptCount)
		assert.True(t, got.LastAttempt.Equal(last))
		assert.Equal(t, 10*time.Minute, s.TTL(limiterKeyPrefix+"abc"))
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := repo.GetLimiterState(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ExpiresWithTTL", func(t *testing.T) {
		require.NoError(t, repo.SetLimiterState(ctx, "short", &ratelimit.State{AttemptCount: 3}))
		s.FastForward(11 * time.Minute)

		got, err := repo.GetLimiterState(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, repo.SetLimiterState(ctx, "gone", &ratelimit.State{AttemptCount: 1}))
		require.NoError(t, repo.ClearLimiterState(ctx, "gone"))
		assert.False(t, s.Exists(limiterKeyPrefix+"gone"))
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		require.NoError(t, s.Set(limiterKeyPrefix+"bad", "not-json"))
		_, err := repo.GetLimiterState(ctx, "bad")
		assert.ErrorContains(t, err, "unmarshal")
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		_, err := repo.GetLimiterState(ctx, "abc")
		assert.Error(t, err)
	})
}

func TestRedisSessionRepository_NilClient(t *testing.T) {
	repo := NewRedisSessionRepository(nil, time.Minute)
	ctx := context.Background()

	_, err := repo.GetLimiterState(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, repo.SetLimiterState(ctx, "x", &ratelimit.State{}))
	assert.Error(t, repo.ClearLimiterState(ctx, "x"))
}
