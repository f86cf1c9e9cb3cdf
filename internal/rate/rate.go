package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Key holds the asset/reference rate as a decimal string.
const Key = "sui_price"

var ErrRateUnavailable = errors.New("rate unavailable")

type Reader interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

type Writer interface {
	Store(ctx context.Context, rate decimal.Decimal) error
}

// Cache is the redis backed rate store shared by the api and the job runner.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) Rate(ctx context.Context) (decimal.Decimal, error) {
	raw, err := c.rdb.Get(ctx, Key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrRateUnavailable
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read rate: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Sign() <= 0 {
		return decimal.Zero, ErrRateUnavailable
	}
	return d, nil
}

func (c *Cache) Store(ctx context.Context, rate decimal.Decimal) error {
	if rate.Sign() <= 0 {
		return fmt.Errorf("refusing to store non-positive rate %s", rate)
	}
	return c.rdb.Set(ctx, Key, rate.String(), c.ttl).Err()
}
