package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------
// RedisModelStore
// -----------------------------------------------------------------------------
// Read-side adapter over the shared analytics store. The engine only ever
// reads: point GETs of JSON values, LRANGE of trail lists and pub/sub
// subscriptions for push topics. The producer side belongs to the upstream
// analytics engine.
// -----------------------------------------------------------------------------

type RedisModelStore struct {
	Client *redis.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedisModelStore(cfg models.MStoreConfig, log *logger.Logger) *RedisModelStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisModelStore{
		Client: client,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// GetJSON reads one key into out. Absent keys and malformed values both
// report "not found"; only transport failures surface as errors.
func (s *RedisModelStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, helpers.NewFetchError("get "+key, err)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.Logger.Warning("Malformed value at key %s treated as absent: %v", key, err)
		return false, nil
	}
	return true, nil
}

// -----------------------------------------------------------------------------

// GetTrail reads a symbol's trail list, skipping malformed entries and
// dropping samples older than the lookback cutoff.
func (s *RedisModelStore) GetTrail(ctx context.Context, symbol string, lookback time.Duration) ([]models.MTrailSample, error) {
	raws, err := s.Client.LRange(ctx, models.KeyTrail(symbol), 0, -1).Result()
	if err != nil {
		return nil, helpers.NewFetchError("trail "+symbol, err)
	}

	cutoff := time.Now().Add(-lookback).Unix()
	samples := make([]models.MTrailSample, 0, len(raws))
	skipped := 0

	for _, raw := range raws {
		var sample models.MTrailSample
		if err := json.Unmarshal([]byte(raw), &sample); err != nil {
			skipped++
			continue
		}
		if sample.Ts < cutoff {
			continue
		}
		samples = append(samples, sample)
	}

	if skipped > 0 {
		s.Logger.Debug("Skipped %d malformed trail entries for %s", skipped, symbol)
	}
	return samples, nil
}

// -----------------------------------------------------------------------------

// Subscribe opens a pattern subscription and adapts messages onto a plain
// channel. The pump goroutine exits when ctx is cancelled.
func (s *RedisModelStore) Subscribe(ctx context.Context, patterns []string) (<-chan interfaces.StoreMessage, error) {
	pubsub := s.Client.PSubscribe(ctx, patterns...)

	// Force the subscription to be established before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan interfaces.StoreMessage, 64)

	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- interfaces.StoreMessage{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// -----------------------------------------------------------------------------

func (s *RedisModelStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

// -----------------------------------------------------------------------------

func (s *RedisModelStore) Close() error {
	return s.Client.Close()
}
