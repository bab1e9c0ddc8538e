package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

// redisRecord is the JSON-on-the-wire shape of a UserHistory entry.
// Kept separate from fraudmodel.UserHistory so the cache's wire format
// doesn't leak into the domain type.
type redisRecord struct {
	TxnCount       int64     `json:"txn_count"`
	LastDevice     string    `json:"last_device"`
	LastIP         string    `json:"last_ip"`
	DeviceChanged  bool      `json:"device_changed"`
	IPChanged      bool      `json:"ip_changed"`
	AmountVelocity int64     `json:"amount_velocity"`
	LastTxnTime    time.Time `json:"last_txn_time"`
	HasLastTxnTime bool      `json:"has_last_txn_time"`
}

func toRecord(h fraudmodel.UserHistory) redisRecord {
	return redisRecord(h)
}

func fromRecord(r redisRecord) fraudmodel.UserHistory {
	return fraudmodel.UserHistory(r)
}

type redisBackend struct {
	client *redis.Client
}

func newRedisBackend(client *redis.Client) *redisBackend {
	return &redisBackend{client: client}
}

func (b *redisBackend) name() string { return "redis" }

func (b *redisBackend) getHistory(ctx context.Context, userID string) (fraudmodel.UserHistory, bool, error) {
	data, err := b.client.Get(ctx, historyKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return fraudmodel.UserHistory{}, false, nil
	}
	if err != nil {
		return fraudmodel.UserHistory{}, false, err
	}
	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fraudmodel.UserHistory{}, false, err
	}
	return fromRecord(rec), true, nil
}

func (b *redisBackend) setHistory(ctx context.Context, userID string, h fraudmodel.UserHistory, ttl time.Duration) error {
	data, err := json.Marshal(toRecord(h))
	if err != nil {
		return err
	}
	return b.client.Set(ctx, historyKey(userID), data, ttl).Err()
}

func (b *redisBackend) incrCounter(ctx context.Context, userID string, window time.Duration) (int64, error) {
	key := counterKey(userID)
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (b *redisBackend) getCounter(ctx context.Context, userID string) (int64, error) {
	count, err := b.client.Get(ctx, counterKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func historyKey(userID string) string {
	return "user:" + userID + ":history"
}

func counterKey(userID string) string {
	return "user:" + userID + ":txn_window"
}
