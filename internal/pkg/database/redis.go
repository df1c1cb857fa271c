package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vammperp/backend/internal/pkg/config"
)

func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Cache keys
const (
	KeyTickerPrefix      = "ticker:"       // ticker:SOL-PERP
	KeyMarkPricePrefix   = "markprice:"    // markprice:SOL-PERP
	KeyFundingRatePrefix = "fundingrate:"  // fundingrate:SOL-PERP
	KeyRateLimit         = "ratelimit:"    // ratelimit:{ip}:{endpoint}
	KeyPriceHistory      = "pricehistory:" // pricehistory:SOL-PERP
)

// ChannelEngineEvents carries every committed engine event as JSON.
const ChannelEngineEvents = "engine:events"

// Cache operations
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// IsAvailable returns true if the cache client is available
func (c *Cache) IsAvailable() bool {
	return c != nil && c.client != nil
}

var ErrCacheNotAvailable = fmt.Errorf("redis client not available")

func (c *Cache) Ping(ctx context.Context) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) SetTicker(ctx context.Context, market string, data []byte, expiration time.Duration) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.Set(ctx, KeyTickerPrefix+market, data, expiration).Err()
}

func (c *Cache) GetTicker(ctx context.Context, market string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, ErrCacheNotAvailable
	}
	return c.client.Get(ctx, KeyTickerPrefix+market).Bytes()
}

func (c *Cache) SetMarkPrice(ctx context.Context, market string, data []byte, expiration time.Duration) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.Set(ctx, KeyMarkPricePrefix+market, data, expiration).Err()
}

func (c *Cache) GetMarkPrice(ctx context.Context, market string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, ErrCacheNotAvailable
	}
	return c.client.Get(ctx, KeyMarkPricePrefix+market).Bytes()
}

func (c *Cache) SetFundingRate(ctx context.Context, market string, data []byte, expiration time.Duration) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.Set(ctx, KeyFundingRatePrefix+market, data, expiration).Err()
}

func (c *Cache) GetFundingRate(ctx context.Context, market string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, ErrCacheNotAvailable
	}
	return c.client.Get(ctx, KeyFundingRatePrefix+market).Bytes()
}

func (c *Cache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if !c.IsAvailable() {
		return 0, ErrCacheNotAvailable
	}
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *Cache) PublishMessage(ctx context.Context, channel string, message interface{}) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.Publish(ctx, channel, message).Err()
}

func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if !c.IsAvailable() {
		return nil
	}
	return c.client.Subscribe(ctx, channels...)
}

// AddPriceToHistory records an execution price for the rolling 24h stats.
// Members carry the timestamp so equal prices at different times are kept.
func (c *Cache) AddPriceToHistory(ctx context.Context, market string, price uint64, timestamp int64) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	member := redis.Z{
		Score:  float64(timestamp),
		Member: fmt.Sprintf("%d:%d", timestamp, price),
	}
	return c.client.ZAdd(ctx, KeyPriceHistory+market, member).Err()
}

// GetPriceHistory returns the "timestamp:price" members in [startTime, endTime].
func (c *Cache) GetPriceHistory(ctx context.Context, market string, startTime, endTime int64) ([]string, error) {
	if !c.IsAvailable() {
		return nil, ErrCacheNotAvailable
	}
	return c.client.ZRangeByScore(ctx, KeyPriceHistory+market, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", startTime),
		Max: fmt.Sprintf("%d", endTime),
	}).Result()
}

func (c *Cache) TrimPriceHistory(ctx context.Context, market string, keepAfter int64) error {
	if !c.IsAvailable() {
		return ErrCacheNotAvailable
	}
	return c.client.ZRemRangeByScore(ctx, KeyPriceHistory+market, "-inf", fmt.Sprintf("(%d", keepAfter)).Err()
}
