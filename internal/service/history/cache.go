// Package history implements the History Cache (spec.md §4.2): a
// per-user rolling counter store backed primarily by Redis, with a
// transparent, permanent in-process fallback when Redis can't be
// reached at construction time.
package history

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
	"github.com/moduleforge/fraudscore/internal/infrastructure/config"
	"github.com/moduleforge/fraudscore/internal/infrastructure/metrics"
)

const defaultWindow = 60 * time.Minute

// Cache is the History Cache. Construction probes the configured Redis
// endpoint once; every request afterward goes to whichever backend won
// that probe.
type Cache struct {
	backend backend
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Collectors
}

// New probes cfg.Addr() with a connect-timeout bounded PING. On
// success it backs the cache with a real Redis client; on any failure
// it permanently falls back to an in-process map, per spec.md §4.2 and
// the fallback-cache design note in spec.md §9.
func New(cfg config.CacheConfig, logger *zap.Logger, collectors *metrics.Collectors) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.DialTimeout,
	})

	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(probeCtx).Err(); err != nil {
		logger.Warn("history cache: redis unreachable, falling back to in-process store",
			zap.String("addr", cfg.Addr()), zap.Error(err))
		_ = client.Close()
		return &Cache{backend: newMemoryBackend(), ttl: cfg.TTL(), logger: logger, metrics: collectors}
	}

	logger.Info("history cache: connected to redis", zap.String("addr", cfg.Addr()))
	return &Cache{backend: newRedisBackend(client), ttl: cfg.TTL(), logger: logger, metrics: collectors}
}

// NewWithBackend wires an arbitrary backend directly, for tests that
// need a deterministic redis (miniredis) or memory backend without
// going through the reachability probe.
func NewWithBackend(b backend, ttl time.Duration, logger *zap.Logger, collectors *metrics.Collectors) *Cache {
	return &Cache{backend: b, ttl: ttl, logger: logger, metrics: collectors}
}

// BackendName reports which backend won construction's probe -
// "redis" or "memory".
func (c *Cache) BackendName() string {
	return c.backend.name()
}

func (c *Cache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheOps.WithLabelValues(c.backend.name(), result).Inc()
	}
}

// GetUserHistory returns the stored history for userID, or the zero
// value if there is none. A transient backend fault is treated as a
// miss (spec.md §7: "Cache backend transient fault at request time -
// treat as miss").
func (c *Cache) GetUserHistory(ctx context.Context, userID string) fraudmodel.UserHistory {
	h, found, err := c.backend.getHistory(ctx, userID)
	if err != nil {
		c.logger.Warn("history cache: get failed, treating as miss", zap.String("user_id", userID), zap.Error(err))
		c.observe("error")
		return fraudmodel.UserHistory{}
	}
	if !found {
		c.observe("miss")
		return fraudmodel.UserHistory{}
	}
	c.observe("hit")
	return h
}

// UpdateUserHistory applies one transaction's effect on userID's
// rolling history and persists the result (spec.md §4.2). It returns
// the updated record.
func (c *Cache) UpdateUserHistory(ctx context.Context, userID string, deviceID, ipAddress string, timestamp time.Time) fraudmodel.UserHistory {
	existing, found, err := c.backend.getHistory(ctx, userID)
	if err != nil {
		c.logger.Warn("history cache: get-before-update failed, treating as miss", zap.String("user_id", userID), zap.Error(err))
		found = false
		existing = fraudmodel.UserHistory{}
	}

	deviceChanged := found && existing.LastDevice != deviceID
	ipChanged := found && existing.LastIP != ipAddress

	var velocity int64
	switch {
	case !found || !existing.HasLastTxnTime:
		velocity = 0
	case timestamp.Sub(existing.LastTxnTime) < defaultWindow:
		velocity = existing.AmountVelocity + 1
	default:
		velocity = 0
	}

	updated := fraudmodel.UserHistory{
		TxnCount:       existing.TxnCount + 1,
		LastDevice:     deviceID,
		LastIP:         ipAddress,
		DeviceChanged:  deviceChanged,
		IPChanged:      ipChanged,
		AmountVelocity: velocity,
		LastTxnTime:    timestamp,
		HasLastTxnTime: true,
	}

	if err := c.backend.setHistory(ctx, userID, updated, c.ttl); err != nil {
		c.logger.Warn("history cache: write failed", zap.String("user_id", userID), zap.Error(err))
		c.observe("error")
	} else {
		c.observe("write")
	}

	return updated
}

// GetTransactionCount returns the rolling window counter for userID.
func (c *Cache) GetTransactionCount(ctx context.Context, userID string) int64 {
	count, err := c.backend.getCounter(ctx, userID)
	if err != nil {
		c.logger.Warn("history cache: counter read failed, treating as zero", zap.String("user_id", userID), zap.Error(err))
		c.observe("error")
		return 0
	}
	return count
}

// IncrementTransactionCount atomically bumps userID's rolling counter
// and resets its TTL to window.
func (c *Cache) IncrementTransactionCount(ctx context.Context, userID string, window time.Duration) int64 {
	if window <= 0 {
		window = defaultWindow
	}
	count, err := c.backend.incrCounter(ctx, userID, window)
	if err != nil {
		c.logger.Warn("history cache: counter increment failed", zap.String("user_id", userID), zap.Error(err))
		c.observe("error")
		return 0
	}
	c.observe("increment")
	return count
}
