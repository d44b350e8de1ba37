package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/marinova/oceanmeter/pkg/observability"
)

// CacheConfig configures the read-through ledger cache
type CacheConfig struct {
	// L1Size is the number of ledgers kept in process
	L1Size int
	// L1TTL bounds staleness across instances
	L1TTL time.Duration
	// RedisTTL is the lifetime of the shared copy
	RedisTTL time.Duration
	// KeyPrefix namespaces redis keys
	KeyPrefix string
}

// DefaultCacheConfig returns cache settings suitable for request-time reads
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		L1Size:    10000,
		L1TTL:     5 * time.Second,
		RedisTTL:  10 * time.Minute,
		KeyPrefix: "ledger",
	}
}

// CachedStore serves Get from an in-process LRU and an optional redis copy.
// Update and Create always go through the backing store. After an Update the
// appended history entries are added to each cached copy that is exactly one
// version behind; any other cached copy is dropped.
//
// In redis a ledger is a hash holding the JSON state without history and its
// version, plus a list of JSON history entries, so a charge pushes one entry
// instead of rewriting the whole history.
type CachedStore struct {
	backing Store
	l1      *lru.LRU[string, *Ledger]
	redis   *redis.Client
	config  CacheConfig
	group   singleflight.Group
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCachedStore wraps a store. redisClient may be nil for an L1-only cache.
func NewCachedStore(backing Store, redisClient *redis.Client, config CacheConfig, logger *observability.Logger, metrics *observability.Metrics) *CachedStore {
	if config.L1Size <= 0 {
		config.L1Size = DefaultCacheConfig().L1Size
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultCacheConfig().KeyPrefix
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &CachedStore{
		backing: backing,
		l1:      lru.NewLRU[string, *Ledger](config.L1Size, nil, config.L1TTL),
		redis:   redisClient,
		config:  config,
		logger:  logger.WithField("component", "ledger_cache"),
		metrics: metrics,
	}
}

func (c *CachedStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", c.config.KeyPrefix, userID)
}

func (c *CachedStore) historyKey(userID string) string {
	return c.key(userID) + ":history"
}

// appendScript applies one committed update to the redis copy when the copy
// is at the preceding version and deletes the copy otherwise.
//
// KEYS: state hash, history list
// ARGV: expected version, state JSON, new version, ttl in ms, entries...
var appendScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current ~= ARGV[1] then
	redis.call('DEL', KEYS[1], KEYS[2])
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[2], 'version', ARGV[3])
for i = 5, #ARGV do
	redis.call('RPUSH', KEYS[2], ARGV[i])
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// Get returns a possibly slightly stale snapshot
func (c *CachedStore) Get(ctx context.Context, userID string) (*Ledger, error) {
	if l, ok := c.l1.Get(userID); ok {
		c.metrics.RecordCacheHit("l1")
		return l.Clone(), nil
	}
	c.metrics.RecordCacheMiss("l1")

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		if l := c.getRedis(ctx, userID); l != nil {
			c.l1.Add(userID, l)
			return l, nil
		}

		l, err := c.backing.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.store(ctx, l)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Ledger).Clone(), nil
}

// Create persists through the backing store and primes the cache
func (c *CachedStore) Create(ctx context.Context, l *Ledger) error {
	if err := c.backing.Create(ctx, l); err != nil {
		return err
	}
	c.store(ctx, l.Clone())
	return nil
}

// Update delegates the atomic read-modify-write and applies the committed
// change to the cached copies
func (c *CachedStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Ledger, error) {
	committed, err := c.backing.Update(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.Invalidate(ctx, userID)
		}
		return nil, err
	}

	if cur, ok := c.l1.Peek(userID); ok && cur.Version == committed.Version-1 {
		merged := committed.withoutHistory()
		merged.UsageHistory = append(cur.UsageHistory[:len(cur.UsageHistory):len(cur.UsageHistory)], committed.UsageHistory...)
		c.l1.Add(userID, merged)
	} else {
		c.l1.Remove(userID)
	}
	c.appendRedis(ctx, committed)
	return committed, nil
}

// Invalidate drops a user from both cache levels
func (c *CachedStore) Invalidate(ctx context.Context, userID string) {
	c.l1.Remove(userID)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(userID), c.historyKey(userID)).Err(); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("failed to invalidate cached ledger")
	}
}

func (c *CachedStore) getRedis(ctx context.Context, userID string) *Ledger {
	if c.redis == nil {
		return nil
	}

	var (
		state   *redis.StringCmd
		history *redis.StringSliceCmd
	)
	_, err := c.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		state = pipe.HGet(ctx, c.key(userID), "state")
		history = pipe.LRange(ctx, c.historyKey(userID), 0, -1)
		return nil
	})
	if errors.Is(state.Err(), redis.Nil) {
		c.metrics.RecordCacheMiss("redis")
		return nil
	}
	if err != nil {
		c.logger.WithError(err).Warn("redis get failed, reading ledger from store")
		return nil
	}

	var l Ledger
	if err := json.Unmarshal([]byte(state.Val()), &l); err != nil {
		// Corrupt entry: drop it and fall through to the store
		c.redis.Del(ctx, c.key(userID), c.historyKey(userID))
		return nil
	}
	l.UsageHistory = make([]UsageEntry, 0, len(history.Val()))
	for _, raw := range history.Val() {
		var e UsageEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			c.redis.Del(ctx, c.key(userID), c.historyKey(userID))
			return nil
		}
		l.UsageHistory = append(l.UsageHistory, e)
	}
	c.metrics.RecordCacheHit("redis")
	return &l
}

// store caches a complete ledger at both levels
func (c *CachedStore) store(ctx context.Context, l *Ledger) {
	if cur, ok := c.l1.Peek(l.UserID); ok && cur.Version > l.Version {
		return
	}
	c.l1.Add(l.UserID, l)

	if c.redis == nil {
		return
	}
	state, entries, err := encodeLedger(l)
	if err != nil {
		c.logger.WithError(err).Error("failed to marshal ledger for cache")
		return
	}

	key, historyKey := c.key(l.UserID), c.historyKey(l.UserID)
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, historyKey)
		pipe.HSet(ctx, key, "state", state, "version", l.Version)
		if len(entries) > 0 {
			pipe.RPush(ctx, historyKey, entries...)
		}
		if c.config.RedisTTL > 0 {
			pipe.PExpire(ctx, key, c.config.RedisTTL)
			pipe.PExpire(ctx, historyKey, c.config.RedisTTL)
		}
		return nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("failed to cache ledger in redis")
	}
}

// appendRedis pushes the entries of one committed update onto the redis copy
func (c *CachedStore) appendRedis(ctx context.Context, committed *Ledger) {
	if c.redis == nil {
		return
	}
	state, entries, err := encodeLedger(committed)
	if err != nil {
		c.logger.WithError(err).Error("failed to marshal ledger for cache")
		c.Invalidate(ctx, committed.UserID)
		return
	}

	args := append([]interface{}{
		strconv.FormatInt(committed.Version-1, 10),
		state,
		committed.Version,
		c.config.RedisTTL.Milliseconds(),
	}, entries...)
	keys := []string{c.key(committed.UserID), c.historyKey(committed.UserID)}
	if err := appendScript.Run(ctx, c.redis, keys, args...).Err(); err != nil {
		c.logger.WithError(err).WithField("user_id", committed.UserID).Warn("failed to update cached ledger")
	}
}

// encodeLedger splits a ledger into its JSON state without history and one
// JSON document per history entry
func encodeLedger(l *Ledger) (string, []interface{}, error) {
	state, err := json.Marshal(l.withoutHistory())
	if err != nil {
		return "", nil, err
	}
	entries := make([]interface{}, 0, len(l.UsageHistory))
	for _, e := range l.UsageHistory {
		data, err := json.Marshal(e)
		if err != nil {
			return "", nil, err
		}
		entries = append(entries, string(data))
	}
	return string(state), entries, nil
}
