package uplink

import (
	"context"
	"time"

	"github.com/nerrad567/logix-uplink/internal/reading"
)

// Store is the staging storage the uplink reads from and writes outcomes to.
// Range bounds are inclusive. Every write touches only rows whose outcome
// is still unset or retry.
type Store interface {
	FetchPending(ctx context.Context, now time.Time) ([]reading.Reading, error)
	FetchRange(ctx context.Context, start, end time.Time) ([]reading.Reading, error)
	MarkSent(ctx context.Context, start, end, deliveredAt time.Time) (int64, error)
	MarkRetry(ctx context.Context, start, end time.Time, reason string) (int64, error)
	MarkDuplicateUnresolved(ctx context.Context, start, end time.Time) (int64, error)
	DeleteExact(ctx context.Context, ts time.Time) (int64, error)
}
