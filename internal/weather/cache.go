package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/croply/fieldreport/internal/domain"
)

// CachedFetcher wraps a Fetcher with a bounded-TTL redis cache keyed by
// rounded coordinates. Retries of a queue item within the TTL reuse the
// cached response instead of re-calling the rate-limited provider. Cache
// failures degrade to a direct fetch.
type CachedFetcher struct {
	inner Fetcher
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedFetcher creates a caching weather fetcher.
func NewCachedFetcher(inner Fetcher, rdb *redis.Client, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedFetcher{inner: inner, rdb: rdb, ttl: ttl}
}

// Fetch returns cached weather data when present, fetching and storing otherwise.
func (c *CachedFetcher) Fetch(ctx context.Context, lat, lon float64) (*domain.WeatherData, error) {
	key := cacheKey(lat, lon)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var data domain.WeatherData
		if err := json.Unmarshal(cached, &data); err == nil {
			return &data, nil
		}
		slog.Warn("discarding undecodable weather cache entry", "key", key)
	} else if err != redis.Nil {
		slog.Warn("weather cache read failed", "key", key, "error", err)
	}

	data, err := c.inner.Fetch(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(data); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			slog.Warn("weather cache write failed", "key", key, "error", err)
		}
	}

	return data, nil
}

// cacheKey rounds coordinates to six decimals so equal field positions share
// one entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("weather:%.6f:%.6f", lat, lon)
}
