package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides JSON caching for read-mostly price table summaries
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value. A miss is (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes cached keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.client.Enabled() || len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.client.Redis().Del(ctx, full...).Err()
}

// GetOrLoad fills dest from cache, or calls load, stores its result and
// copies it into dest. Cache write failures are not returned.
func (c *Cache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func() (interface{}, error)) error {
	found, err := c.Get(ctx, key, dest)
	if err == nil && found {
		return nil
	}

	value, err := load()
	if err != nil {
		return err
	}

	_ = c.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLStats  = 10 * time.Minute
	TTLSeries = 1 * time.Hour
)

// StatsKey keys the price table summary
func StatsKey() string {
	return "prices:stats"
}

// MarketCountsKey keys the per-market row counts
func MarketCountsKey() string {
	return "prices:markets"
}

// SeriesKey keys one price column series of a symbol
func SeriesKey(priceType, symbol string) string {
	return fmt.Sprintf("prices:series:%s:%s", strings.ToLower(priceType), strings.ToUpper(symbol))
}

// seriesTypes are the price columns a series can be cached for
var seriesTypes = []string{"open", "high", "low", "close"}

// ImportKeys lists the keys made stale by writing rows of symbols: the
// table summary, the market counts and every series of those symbols
func ImportKeys(symbols []string) []string {
	keys := []string{StatsKey(), MarketCountsKey()}
	for _, symbol := range symbols {
		for _, t := range seriesTypes {
			keys = append(keys, SeriesKey(t, symbol))
		}
	}
	return keys
}
