package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence"
)

// cachedState is the JSON shape stored per conversation in Redis: the
// sliding window and rolling summary, the same two fields conversationState
// holds in-process.
type cachedState struct {
	Window  []persistence.Message `json:"window"`
	Summary string                `json:"summary"`
}

// RedisWindowCache mirrors a conversation's working memory into Redis so a
// multi-replica deployment shares sliding windows and rolling summaries
// instead of each process keeping its own, disjoint copy. Disabled (nil)
// when cfg.Addr is empty; every method on a nil *RedisWindowCache is a
// no-op so callers never need to branch on whether it's configured.
type RedisWindowCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisWindowCache builds a Redis-backed cache when cfg.Addr is set;
// returns (nil, nil) when disabled.
func NewRedisWindowCache(cfg config.RedisConfig, ttl time.Duration) (*RedisWindowCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisWindowCache{client: client, ttl: ttl}, nil
}

func (c *RedisWindowCache) key(convID string) string {
	return "memory:window:" + convID
}

// Load fetches the cached window/summary for convID. ok is false when the
// cache is disabled, the key is absent, or the stored payload can't be
// decoded.
func (c *RedisWindowCache) Load(ctx context.Context, convID string) (window []persistence.Message, summary string, ok bool) {
	if c == nil {
		return nil, "", false
	}
	raw, err := c.client.Get(ctx, c.key(convID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("conversation", convID).Msg("memory: redis cache load failed")
		}
		return nil, "", false
	}
	var st cachedState
	if err := json.Unmarshal(raw, &st); err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: redis cache decode failed")
		return nil, "", false
	}
	return st.Window, st.Summary, true
}

// Save writes convID's window/summary, best-effort: failures are logged,
// never returned, since the cache is a performance optimization over the
// durable Postgres-backed store, not a source of truth.
func (c *RedisWindowCache) Save(ctx context.Context, convID string, window []persistence.Message, summary string) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(cachedState{Window: window, Summary: summary})
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: redis cache encode failed")
		return
	}
	if err := c.client.Set(ctx, c.key(convID), raw, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: redis cache save failed")
	}
}

// Delete drops convID's cached entry, best-effort.
func (c *RedisWindowCache) Delete(ctx context.Context, convID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(convID)).Err(); err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: redis cache delete failed")
	}
}

// Close releases the underlying Redis connection pool.
func (c *RedisWindowCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
