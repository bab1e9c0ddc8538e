package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moduleforge/fraudscore/internal/infrastructure/config"
	"github.com/moduleforge/fraudscore/internal/infrastructure/metrics"
)

func newTestCache(t *testing.T, b backend) *Cache {
	t.Helper()
	collectors := metrics.New(prometheus.NewRegistry())
	return NewWithBackend(b, time.Hour, zap.NewNop(), collectors)
}

func newRedisTestBackend(t *testing.T) backend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newRedisBackend(client)
}

func TestCache_FirstUpdate_NoChangeFlags(t *testing.T) {
	for _, tc := range []struct {
		name    string
		backend backend
	}{
		{"redis", newRedisTestBackend(t)},
		{"memory", newMemoryBackend()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCache(t, tc.backend)
			ctx := context.Background()

			h := c.UpdateUserHistory(ctx, "u1", "device-a", "1.2.3.4", time.Now())
			require.False(t, h.DeviceChanged)
			require.False(t, h.IPChanged)
			require.Equal(t, int64(1), h.TxnCount)
			require.Equal(t, int64(0), h.AmountVelocity)

			h2 := c.UpdateUserHistory(ctx, "u1", "device-b", "1.2.3.4", time.Now())
			require.True(t, h2.DeviceChanged)
			require.False(t, h2.IPChanged)
			require.Equal(t, int64(2), h2.TxnCount)
		})
	}
}

func TestCache_Velocity(t *testing.T) {
	c := newTestCache(t, newMemoryBackend())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	h1 := c.UpdateUserHistory(ctx, "u2", "d", "ip", base)
	require.Equal(t, int64(0), h1.AmountVelocity)

	h2 := c.UpdateUserHistory(ctx, "u2", "d", "ip", base.Add(30*time.Minute))
	require.Equal(t, int64(1), h2.AmountVelocity)

	h3 := c.UpdateUserHistory(ctx, "u2", "d", "ip", base.Add(2*time.Hour))
	require.Equal(t, int64(0), h3.AmountVelocity)
}

func TestCache_GetUserHistory_Miss(t *testing.T) {
	c := newTestCache(t, newMemoryBackend())
	h := c.GetUserHistory(context.Background(), "ghost")
	require.Equal(t, int64(0), h.TxnCount)
	require.False(t, h.HasLastTxnTime)
}

func TestCache_TransactionCounter(t *testing.T) {
	for _, tc := range []struct {
		name    string
		backend backend
	}{
		{"redis", newRedisTestBackend(t)},
		{"memory", newMemoryBackend()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCache(t, tc.backend)
			ctx := context.Background()

			require.Equal(t, int64(0), c.GetTransactionCount(ctx, "u3"))
			require.Equal(t, int64(1), c.IncrementTransactionCount(ctx, "u3", time.Minute))
			require.Equal(t, int64(2), c.IncrementTransactionCount(ctx, "u3", time.Minute))
			require.Equal(t, int64(2), c.GetTransactionCount(ctx, "u3"))
		})
	}
}

func TestCache_MemoryBackend_HonorsTTL(t *testing.T) {
	b := newMemoryBackend()
	c := NewWithBackend(b, 10*time.Millisecond, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	c.UpdateUserHistory(ctx, "u4", "d", "ip", time.Now())
	time.Sleep(30 * time.Millisecond)

	h := c.GetUserHistory(ctx, "u4")
	require.Equal(t, int64(0), h.TxnCount, "entry should have expired")
}

func TestNew_FallsBackWhenUnreachable(t *testing.T) {
	logger := zap.NewNop()
	collectors := metrics.New(prometheus.NewRegistry())

	cache := New(config.CacheConfig{
		Host: "127.0.0.1", Port: 1, TTLSeconds: 60, DialTimeout: 20 * time.Millisecond,
	}, logger, collectors)

	require.Equal(t, "memory", cache.BackendName())
}
