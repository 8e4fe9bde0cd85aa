package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// priceKeyPrefix namespaces price hashes, keyed by token ID or oracle asset.
const priceKeyPrefix = "price:"

// PriceCache stores the latest price per key in a Redis hash with fields
// "price" and "ts" (UnixNano).
type PriceCache struct {
	client *Client
	ttl    time.Duration
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a price cache. Entries expire after ttl; a zero ttl
// keeps them forever.
func NewPriceCache(client *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{client: client, ttl: ttl}
}

// SetPrice records the latest price for key.
func (p *PriceCache) SetPrice(ctx context.Context, key string, price float64, ts time.Time) error {
	redisKey := priceKeyPrefix + key

	pipe := p.client.rdb.Pipeline()
	pipe.HSet(ctx, redisKey, map[string]any{
		"price": price,
		"ts":    ts.UnixNano(),
	})
	if p.ttl > 0 {
		pipe.Expire(ctx, redisKey, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// GetPrice returns the latest price and its timestamp for key, or
// domain.ErrNotFound when no entry exists.
func (p *PriceCache) GetPrice(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := p.client.rdb.HGetAll(ctx, priceKeyPrefix+key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", key, domain.ErrNotFound)
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price ts %s: %w", key, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// GetPrices fetches multiple prices in one round trip. Keys with no entry
// are omitted from the result.
func (p *PriceCache) GetPrices(ctx context.Context, keys []string) (map[string]float64, error) {
	if len(keys) == 0 {
		return map[string]float64{}, nil
	}

	pipe := p.client.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGet(ctx, priceKeyPrefix+key, "price")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	out := make(map[string]float64, len(keys))
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: get price %s: %w", keys[i], err)
		}
		price, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse price %s: %w", keys[i], err)
		}
		out[keys[i]] = price
	}
	return out, nil
}
