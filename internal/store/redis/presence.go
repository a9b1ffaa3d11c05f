package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gosuda/boardcast/internal/domain"
)

// PresenceChannel is the pub/sub channel every presence change is published
// on, for consumers outside this process.
const PresenceChannel = "presence"

// Presence mirrors each user's online flag and last-seen time into Redis
// hashes that expire after ttl without activity.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

// LastSeen is the mirrored presence record of one user.
type LastSeen struct {
	UserID   uuid.UUID `json:"userId"`
	Online   bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("redis.Presence.Close: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (p *Presence) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.Presence.Ping: %w", err)
	}
	return nil
}

// UpdatePresence stores the record, refreshes its expiry and publishes it on
// PresenceChannel in one transaction.
func (p *Presence) UpdatePresence(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error {
	payload, err := json.Marshal(LastSeen{UserID: userID, Online: online, LastSeen: seenAt})
	if err != nil {
		return fmt.Errorf("redis.Presence.UpdatePresence: marshal: %w", err)
	}

	key := PresenceKey(userID)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"online", strconv.FormatBool(online),
			"last_seen", seenAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, p.ttl)
		pipe.Publish(ctx, PresenceChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.Presence.UpdatePresence: %w", err)
	}
	return nil
}

// Get returns the mirrored record, or domain.ErrNotFound when the user has
// no record or it expired.
func (p *Presence) Get(ctx context.Context, userID uuid.UUID) (*LastSeen, error) {
	fields, err := p.client.HGetAll(ctx, PresenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.Presence.Get: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("redis.Presence.Get: %w", domain.ErrNotFound)
	}

	online, err := strconv.ParseBool(fields["online"])
	if err != nil {
		return nil, fmt.Errorf("redis.Presence.Get: online: %w", err)
	}
	seen, err := time.Parse(time.RFC3339Nano, fields["last_seen"])
	if err != nil {
		return nil, fmt.Errorf("redis.Presence.Get: last_seen: %w", err)
	}

	return &LastSeen{UserID: userID, Online: online, LastSeen: seen}, nil
}

// PresenceKey returns the Redis key holding a user's presence hash.
func PresenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}
