package statecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "irbridge:state:"
	defaultTTL       = 24 * time.Hour
	connectTimeout   = 5 * time.Second
	writeTimeout     = 2 * time.Second
	scanBatch        = 100
)

// Logger is the logging surface used by Cache.
type Logger interface {
	Warn(msg string, args ...any)
}

// Cache mirrors characteristic changes into redis hashes.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the redis client pools connections.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger Logger
}

// Connect dials redis and verifies the connection with a ping.
//
// Parameters:
//   - cfg: Redis configuration
//   - logger: Receives write failures; may be nil
//
// Returns:
//   - *Cache: Connected cache
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping error
func Connect(cfg config.RedisConfig, logger Logger) (*Cache, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return New(rdb, cfg.KeyPrefix, time.Duration(cfg.TTL)*time.Second, logger), nil
}

// New wraps an existing redis client. An empty prefix or non-positive ttl
// selects the defaults.
func New(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger Logger) *Cache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

// Key returns the hash key of an accessory.
func (c *Cache) Key(accessory string) string {
	return c.prefix + accessory
}

// Refresh writes one characteristic and extends the hash TTL.
func (c *Cache) Refresh(accessory, characteristic string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		c.warn("encoding mirrored state failed", "accessory", accessory, "characteristic", characteristic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := c.Key(accessory)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, characteristic, encoded)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.warn("mirroring state failed", "accessory", accessory, "characteristic", characteristic, "error", err)
	}
}

// Snapshot returns the mirrored characteristics of an accessory. A missing
// accessory yields an empty map.
func (c *Cache) Snapshot(ctx context.Context, accessory string) (map[string]json.RawMessage, error) {
	fields, err := c.rdb.HGetAll(ctx, c.Key(accessory)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading mirrored state: %w", err)
	}
	out := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Delete removes the mirror of an accessory.
func (c *Cache) Delete(ctx context.Context, accessory string) error {
	return c.rdb.Del(ctx, c.Key(accessory)).Err()
}

// RemoveAllExcept deletes mirrors of accessories that are no longer
// configured.
//
// Returns:
//   - []string: Names of the removed accessories
//   - error: Scan or delete failure; removals so far are still reported
func (c *Cache) RemoveAllExcept(ctx context.Context, keep []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		wanted[name] = struct{}{}
	}

	var removed []string
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		name := strings.TrimPrefix(full, c.prefix)
		if _, ok := wanted[name]; ok {
			continue
		}
		if err := c.rdb.Del(ctx, full).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// HealthCheck pings redis.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Cache) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
