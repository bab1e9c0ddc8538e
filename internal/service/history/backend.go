package history

import (
	"context"
	"time"

	"github.com/moduleforge/fraudscore/internal/domain/fraudmodel"
)

// backend is the storage contract the Cache drives. There are exactly
// two implementations - redisBackend and memoryBackend - selected once
// at construction and never swapped mid-run (spec.md §4.2, §9: "never
// attempt to upgrade back mid-run").
type backend interface {
	getHistory(ctx context.Context, userID string) (fraudmodel.UserHistory, bool, error)
	setHistory(ctx context.Context, userID string, h fraudmodel.UserHistory, ttl time.Duration) error
	incrCounter(ctx context.Context, userID string, window time.Duration) (int64, error)
	getCounter(ctx context.Context, userID string) (int64, error)
	name() string
}
