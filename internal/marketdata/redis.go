package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/yourusername/furlong/internal/config"
	"github.com/yourusername/furlong/internal/metrics"
	"github.com/yourusername/furlong/internal/models"
)

// RedisSource reads prices stored as one hash per race and market,
// field horse id, value decimal price.
type RedisSource struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSource connects to Redis and verifies the connection
func NewRedisSource(ctx context.Context, cfg config.RedisConfig) (*RedisSource, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisSourceWithClient(client, cfg.KeyPrefix), client, nil
}

// NewRedisSourceWithClient wraps an existing client
func NewRedisSourceWithClient(client redis.Cmdable, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "furlong"
	}
	return &RedisSource{client: client, prefix: prefix}
}

// Key returns the hash key of a race market
func (s *RedisSource) Key(raceID string, market models.MarketType) string {
	return fmt.Sprintf("%s:prices:%s:%s", s.prefix, raceID, market)
}

// Prices reads every market hash of a race
func (s *RedisSource) Prices(ctx context.Context, raceID string) (models.MarketPrices, error) {
	pipe := s.client.Pipeline()
	cmds := make(map[models.MarketType]*redis.MapStringStringCmd, len(models.Markets))
	for _, market := range models.Markets {
		cmds[market] = pipe.HGetAll(ctx, s.Key(raceID, market))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read prices for %s: %w", raceID, err)
	}

	out := models.MarketPrices{}
	for market, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			continue
		}
		parsed, skipped := parseHash(fields)
		for i := 0; i < skipped; i++ {
			metrics.RecordMissingPrice(string(market))
		}
		for horse, price := range parsed {
			out.Set(market, horse, price)
		}
	}
	return out, nil
}

// Store writes prices with a TTL, replacing earlier prices of the race
func (s *RedisSource) Store(ctx context.Context, raceID string, prices models.MarketPrices, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	for market, byHorse := range prices {
		key := s.Key(raceID, market)
		pipe.Del(ctx, key)
		values := make(map[string]interface{}, len(byHorse))
		for horse, price := range byHorse {
			values[horse] = price.String()
		}
		if len(values) > 0 {
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store prices for %s: %w", raceID, err)
	}
	return nil
}

// parseHash converts hash fields to prices, skipping unparsable and
// non-positive values
func parseHash(fields map[string]string) (map[string]decimal.Decimal, int) {
	out := make(map[string]decimal.Decimal, len(fields))
	skipped := 0
	for horse, raw := range fields {
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			skipped++
			continue
		}
		out[horse] = price
	}
	return out, skipped
}
