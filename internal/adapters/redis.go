package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ports"
)

const (
	redisSignalKeyPrefix   = "surveil:signals:"
	redisSignalFeedKey     = "surveil:signals:feed"
	redisPriceKeyPrefix    = "surveil:prices:"
	redisBacktestKeyPrefix = "surveil:backtests:"
	redisSignalRetention   = 1000
	redisPriceRetention    = 24 * 60 // one observation per minute for a day
)

// RedisStore is the Redis-backed PersistentStore. Signals land on a
// per-market list plus a global feed list, both capped; price history
// is a per-market capped list of float strings.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveSignal implements ports.PersistentStore.
func (s *RedisStore) SaveSignal(ctx context.Context, signal domain.Signal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return ports.Wrap(ports.KindInternal, "redis_store.save_signal", err)
	}

	pipe := s.client.Pipeline()
	perMarket := redisSignalKeyPrefix + signal.MarketID
	pipe.LPush(ctx, perMarket, data)
	pipe.LTrim(ctx, perMarket, 0, redisSignalRetention-1)
	pipe.LPush(ctx, redisSignalFeedKey, data)
	pipe.LTrim(ctx, redisSignalFeedKey, 0, redisSignalRetention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.Wrap(ports.KindTransientIO, "redis_store.save_signal", err)
	}
	return nil
}

// RecordPrice appends a price observation for marketID.
func (s *RedisStore) RecordPrice(ctx context.Context, marketID string, price float64) error {
	key := redisPriceKeyPrefix + marketID
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, strconv.FormatFloat(price, 'f', -1, 64))
	pipe.LTrim(ctx, key, -redisPriceRetention, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.Wrap(ports.KindTransientIO, "redis_store.record_price", err)
	}
	return nil
}

// GetPriceHistory implements ports.PersistentStore. hours bounds how
// far back to read assuming one observation per minute; zero or
// negative means the full retained range.
func (s *RedisStore) GetPriceHistory(ctx context.Context, marketID string, hours int) ([]float64, error) {
	key := redisPriceKeyPrefix + marketID
	n := int64(hours) * 60
	start := int64(0)
	if n > 0 {
		start = -n
	}
	raw, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, ports.Wrap(ports.KindTransientIO, "redis_store.price_history", err)
	}
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveBacktestResults implements ports.PersistentStore.
func (s *RedisStore) SaveBacktestResults(ctx context.Context, result ports.BacktestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return ports.Wrap(ports.KindInternal, "redis_store.save_backtest", err)
	}
	key := redisBacktestKeyPrefix + result.ID
	if err := s.client.Set(ctx, key, data, 30*24*time.Hour).Err(); err != nil {
		return ports.Wrap(ports.KindTransientIO, "redis_store.save_backtest", err)
	}
	return nil
}

// HealthCheck implements ports.PersistentStore.
func (s *RedisStore) HealthCheck(ctx context.Context) (bool, string) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return false, fmt.Sprintf("redis ping: %v", err)
	}
	return true, "redis reachable"
}
