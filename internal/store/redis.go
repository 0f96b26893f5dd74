package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vigil/internal/market"
)

// Key layout written by the upstream ingestion pipeline. This process
// only ever reads these keys.
const (
	snapshotKeyFmt = "orderbook:%s:%s"  // exchange, instrument -> JSON snapshot
	samplesKeyFmt  = "samples:%s:%s:%s" // exchange, instrument, metric -> LPUSHed list, newest first
	healthKeyFmt   = "health:%s"        // exchange -> JSON health record
	healthSetKey   = "health:exchanges" // set of known exchange names
)

// RedisConfig represents Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RedisStore reads snapshots, sample windows and health records from
// the hot store. It implements ws.SnapshotSource, ws.HealthSource and
// market.SampleSource.
type RedisStore struct {
	client     *redis.Client
	windowSize int
}

// NewRedisStore dials Redis and verifies the connection.
func NewRedisStore(cfg *RedisConfig, windowSize int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if windowSize <= 0 {
		windowSize = market.DefaultWindowSize
	}
	return &RedisStore{client: client, windowSize: windowSize}, nil
}

// GetSnapshot reads the current order book for one instrument. A
// missing key returns nil without error.
func (s *RedisStore) GetSnapshot(ctx context.Context, exchange, instrument string) (*market.OrderBookSnapshot, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(snapshotKeyFmt, exchange, instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", exchange, instrument, err)
	}

	var snap market.OrderBookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s/%s: %w", exchange, instrument, err)
	}
	return &snap, nil
}

// GetSampleWindow reads the rolling window for one metric. The pipeline
// LPUSHes samples, so the list is newest first; the returned slice is
// reversed into insertion order, oldest first. At most windowSize
// entries are read, which also enforces the window bound on reads.
func (s *RedisStore) GetSampleWindow(ctx context.Context, exchange, instrument, metric string) ([]float64, error) {
	key := fmt.Sprintf(samplesKeyFmt, exchange, instrument, metric)
	raw, err := s.client.LRange(ctx, key, 0, int64(s.windowSize)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get sample window %s: %w", key, err)
	}

	window := make([]float64, len(raw))
	for i, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sample %q in %s: %w", v, key, err)
		}
		window[len(raw)-1-i] = f
	}
	return window, nil
}

// GetAllHealth reads the health record of every known exchange feed.
// Exchanges listed in the catalog set but missing a record are skipped.
func (s *RedisStore) GetAllHealth(ctx context.Context) (map[string]market.HealthRecord, error) {
	exchanges, err := s.client.SMembers(ctx, healthSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list health exchanges: %w", err)
	}

	out := make(map[string]market.HealthRecord, len(exchanges))
	for _, ex := range exchanges {
		data, err := s.client.Get(ctx, fmt.Sprintf(healthKeyFmt, ex)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get health %s: %w", ex, err)
		}
		var rec market.HealthRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode health %s: %w", ex, err)
		}
		out[ex] = rec
	}
	return out, nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
