package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

// ResultCache stores encoded fragmentation results under a key prefix with a
// jittered TTL.  Concurrent reads of one key share a single round trip.
type ResultCache struct {
	client *Client
	logger logging.Logger
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

type CacheOption func(*ResultCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *ResultCache) { c.prefix = prefix }
}

// WithTTL sets the expiry; zero keeps entries until evicted.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ResultCache) { c.ttl = ttl }
}

func NewResultCache(client *Client, log logging.Logger, opts ...CacheOption) *ResultCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &ResultCache{
		client: client,
		logger: log.Named("result_cache"),
		prefix: "fragmenter:",
		ttl:    24 * time.Hour,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *ResultCache) fullKey(key string) string { return c.prefix + key }

// jitter spreads expiry by ±10%.
func jitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(float64(ttl)*0.1*(rand.Float64()*2-1))
}

type hit struct {
	data []byte
	ok   bool
}

// Get returns (nil, false, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.client.isClosed() {
		return nil, false, ErrClientClosed
	}
	full := c.fullKey(key)
	v, err, _ := c.group.Do(full, func() (interface{}, error) {
		data, err := c.client.rdb.Get(ctx, full).Bytes()
		if err == redis.Nil {
			return hit{}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "cache get").WithDetail(full)
		}
		return hit{data: data, ok: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	h := v.(hit)
	return h.data, h.ok, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, value []byte) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	full := c.fullKey(key)
	if err := c.client.rdb.Set(ctx, full, value, jitter(c.ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set").WithDetail(full)
	}
	return nil
}

// Invalidate removes every entry under the prefix, for use after the
// functional group library changes.  It returns the number of keys removed.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return removed, errors.Wrap(err, errors.ErrCodeCacheError, "cache scan")
		}
		if len(keys) > 0 {
			n, err := c.client.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, errors.Wrap(err, errors.ErrCodeCacheError, "cache delete")
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.logger.Info("result cache invalidated", logging.Int64("removed", removed))
	return removed, nil
}
