package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardcast/internal/domain"
	redisstore "github.com/gosuda/boardcast/internal/store/redis"
)

func newPresence(t *testing.T, ttl time.Duration) (*redisstore.Presence, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return redisstore.NewWithClient(client, ttl), mr, client
}

func TestPresenceKey(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
	assert.Equal(t, "presence:aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", redisstore.PresenceKey(id))
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("connects", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		p, err := redisstore.New(context.Background(), mr.Addr(), "", 0, time.Hour)
		require.NoError(t, err)
		require.NoError(t, p.Ping(context.Background()))
		require.NoError(t, p.Close())
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := redisstore.New(context.Background(), addr, "", 0, time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.New: ping")
	})
}

func TestPresence_UpdateAndGet(t *testing.T) {
	t.Parallel()

	p, mr, _ := newPresence(t, time.Hour)
	ctx := context.Background()
	userID := uuid.New()
	seen := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)

	require.NoError(t, p.UpdatePresence(ctx, userID, true, seen))

	got, err := p.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.True(t, got.Online)
	assert.True(t, seen.Equal(got.LastSeen))
	assert.Equal(t, time.Hour, mr.TTL(redisstore.PresenceKey(userID)))

	later := seen.Add(time.Minute)
	require.NoError(t, p.UpdatePresence(ctx, userID, false, later))

	got, err = p.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.Online)
	assert.True(t, later.Equal(got.LastSeen))
}

func TestPresence_GetMissing(t *testing.T) {
	t.Parallel()

	p, _, _ := newPresence(t, time.Hour)

	_, err := p.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPresence_Expires(t *testing.T) {
	t.Parallel()

	p, mr, _ := newPresence(t, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, p.UpdatePresence(ctx, userID, true, time.Now()))
	mr.FastForward(2 * time.Minute)

	_, err := p.Get(ctx, userID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPresence_Publishes(t *testing.T) {
	t.Parallel()

	p, _, client := newPresence(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, redisstore.PresenceChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, p.UpdatePresence(ctx, userID, true, time.Now()))

	select {
	case msg := <-sub.Channel():
		var got redisstore.LastSeen
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, userID, got.UserID)
		assert.True(t, got.Online)
	case <-ctx.Done():
		t.Fatal("no presence message published")
	}
}

func TestPresence_ServerGone(t *testing.T) {
	t.Parallel()

	p, mr, _ := newPresence(t, time.Hour)
	mr.Close()

	err := p.UpdatePresence(context.Background(), uuid.New(), true, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.Presence.UpdatePresence")
}
