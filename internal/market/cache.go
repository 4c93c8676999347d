package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "condorrun:"

// CachedSource fronts a Source with Redis. Cache errors are logged and the
// call falls through to the underlying source.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions mirrors the subset of client options exposed in config
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient builds a client and checks connectivity
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

func NewCachedSource(next Source, client *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl}
}

func spotKey(symbol string) string { return keyPrefix + "spot:" + symbol }
func ivKey(symbol string) string   { return keyPrefix + "iv:" + symbol }

const snapshotCacheKey = keyPrefix + "snapshot"

func (c *CachedSource) Spot(ctx context.Context, symbol string) (float64, error) {
	return c.float(ctx, spotKey(symbol), func() (float64, error) { return c.next.Spot(ctx, symbol) })
}

func (c *CachedSource) ImpliedVolatility(ctx context.Context, symbol string) (float64, error) {
	return c.float(ctx, ivKey(symbol), func() (float64, error) { return c.next.ImpliedVolatility(ctx, symbol) })
}

func (c *CachedSource) Snapshot(ctx context.Context) (Snapshot, error) {
	val, err := c.client.Get(ctx, snapshotCacheKey).Result()
	if err == nil {
		var snap Snapshot
		if jerr := json.Unmarshal([]byte(val), &snap); jerr == nil {
			return snap, nil
		}
	} else if err != redis.Nil {
		log.Debug().Err(err).Str("key", snapshotCacheKey).Msg("Cache read failed")
	}

	snap, err := c.next.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	raw, _ := json.Marshal(snap)
	if err := c.client.Set(ctx, snapshotCacheKey, raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", snapshotCacheKey).Msg("Cache write failed")
	}
	return snap, nil
}

func (c *CachedSource) float(ctx context.Context, key string, load func() (float64, error)) (float64, error) {
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if f, perr := strconv.ParseFloat(val, 64); perr == nil {
			return f, nil
		}
	case err != redis.Nil:
		log.Debug().Err(err).Str("key", key).Msg("Cache read failed")
	}

	f, err := load()
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, key, strconv.FormatFloat(f, 'g', -1, 64), c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return f, nil
}
