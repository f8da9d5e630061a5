// Package cache puts a Redis read-through cache in front of catalog price
// lookups.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/billing_layer/internal/logging"
	"github.com/R3E-Network/billing_layer/internal/metrics"
	"github.com/R3E-Network/billing_layer/services/invoicing"
)

const keyPrefix = "billing:price:"

// KV is the subset of a key-value store the cache needs. found is false on
// a miss.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	rdb redis.Cmdable
}

// NewRedisKV wraps rdb.
func NewRedisKV(rdb redis.Cmdable) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Catalog caches prices from an underlying invoicing.CatalogLookup. Cache
// errors are logged and fall through to the source; misses in the source
// are not cached.
type Catalog struct {
	source invoicing.CatalogLookup
	kv     KV
	ttl    time.Duration
	logger *logging.Logger
}

// NewCatalog wraps source with kv. A non-positive ttl defaults to 5 minutes.
func NewCatalog(source invoicing.CatalogLookup, kv KV, ttl time.Duration, logger *logging.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Catalog{source: source, kv: kv, ttl: ttl, logger: logger}
}

// priceKey is billing:price:<company>:<product>; prices are never shared
// across companies.
func priceKey(companyID, productID int64) string {
	return keyPrefix + strconv.FormatInt(companyID, 10) + ":" + strconv.FormatInt(productID, 10)
}

// PriceOf implements invoicing.CatalogLookup.
func (c *Catalog) PriceOf(ctx context.Context, companyID, productID int64) (decimal.Decimal, error) {
	key := priceKey(companyID, productID)

	raw, found, err := c.kv.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCatalogLookup("cache", "error")
		c.logger.WithContext(ctx).WithError(err).Warn("price cache read failed")
	case found:
		if price, perr := decimal.NewFromString(raw); perr == nil {
			metrics.RecordCatalogLookup("cache", "hit")
			return price, nil
		}
		metrics.RecordCatalogLookup("cache", "error")
	default:
		metrics.RecordCatalogLookup("cache", "miss")
	}

	price, err := c.source.PriceOf(ctx, companyID, productID)
	switch {
	case errors.Is(err, invoicing.ErrNotFound):
		metrics.RecordCatalogLookup("store", "not_found")
		return decimal.Zero, err
	case err != nil:
		metrics.RecordCatalogLookup("store", "error")
		return decimal.Zero, err
	}
	metrics.RecordCatalogLookup("store", "hit")

	if err := c.kv.Set(ctx, key, price.String(), c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("price cache write failed")
	}
	return price, nil
}
