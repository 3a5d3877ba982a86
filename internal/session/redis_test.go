package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyPrefix = "bingo:session:"

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl, testKeyPrefix), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)
	referrer := int64(77)
	startedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state State
	}{
		{
			name: "captcha with referrer",
			state: State{
				Kind:           KindCaptcha,
				ExpectedAnswer: "7",
				Attempts:       1,
				ReferrerID:     &referrer,
				StartedAt:      startedAt,
			},
		},
		{
			name:  "wallet",
			state: State{Kind: KindWallet, StartedAt: startedAt},
		},
		{
			name:  "manual review",
			state: State{Kind: KindManualReview, TaskID: "x_follow", StartedAt: startedAt},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.Set(ctx, 42, tt.state))
			assert.True(t, mr.Exists(testKeyPrefix+"42"))

			got, err := store.Get(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, tt.state.Kind, got.Kind)
			assert.Equal(t, tt.state.ExpectedAnswer, got.ExpectedAnswer)
			assert.Equal(t, tt.state.Attempts, got.Attempts)
			assert.Equal(t, tt.state.ReferrerID, got.ReferrerID)
			assert.Equal(t, tt.state.TaskID, got.TaskID)
			assert.True(t, tt.state.StartedAt.Equal(got.StartedAt))
		})
	}
}

func TestRedisStore_MissingKey(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)

	got, err := store.Get(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, got.Active())
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	require.NoError(t, store.Set(ctx, 1, Wallet()))
	assert.Equal(t, time.Minute, mr.TTL(testKeyPrefix+"1"))

	mr.FastForward(30 * time.Second)
	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, KindWallet, got.Kind)

	mr.FastForward(31 * time.Second)
	got, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Active())
}

func TestRedisStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Hour)

	require.NoError(t, store.Set(ctx, 1, ManualReview("x_follow")))
	require.NoError(t, store.Clear(ctx, 1))
	assert.False(t, mr.Exists(testKeyPrefix+"1"))

	require.NoError(t, store.Clear(ctx, 1))

	require.NoError(t, store.Set(ctx, 2, Wallet()))
	require.NoError(t, store.Set(ctx, 2, State{}))
	assert.False(t, mr.Exists(testKeyPrefix+"2"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Hour)
	require.NoError(t, mr.Set(testKeyPrefix+"1", "not json"))

	_, err := store.Get(context.Background(), 1)

	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name        string
		cfg         Config
		expectRedis bool
		expectError bool
	}{
		{name: "default is memory", cfg: Config{TTL: time.Hour}},
		{name: "memory", cfg: Config{Backend: "memory", TTL: time.Hour}},
		{
			name:        "redis",
			cfg:         Config{Backend: "redis", TTL: time.Hour, Redis: RedisConfig{Addr: mr.Addr(), KeyPrefix: testKeyPrefix}},
			expectRedis: true,
		},
		{name: "unknown backend", cfg: Config{Backend: "etcd"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := NewStore(ctx, tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = closeFn() }()

			_, isRedis := store.(*RedisStore)
			assert.Equal(t, tt.expectRedis, isRedis)

			require.NoError(t, store.Set(ctx, 5, Wallet()))
			got, err := store.Get(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, KindWallet, got.Kind)
		})
	}
}
