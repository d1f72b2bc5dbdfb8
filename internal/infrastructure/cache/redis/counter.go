package redis

import (
	"context"
	"fmt"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/pkg/apperrors"

	goredis "github.com/redis/go-redis/v9"
)

type incrementer interface {
	Incr(ctx context.Context, key string) *goredis.IntCmd
}

// Counter issues loan numbers with INCR, which is atomic across every engine
// instance sharing the Redis database.
type Counter struct {
	rdb    incrementer
	prefix string
}

var _ loan.NumberSequence = (*Counter)(nil)

func NewCounter(rdb *Client, prefix string) *Counter {
	return &Counter{rdb: rdb, prefix: prefix}
}

func (c *Counter) Next(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Incr(ctx, c.prefix+"loan-number:"+key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis incr %s: %w", apperrors.ErrInternalServer, key, err)
	}
	return v, nil
}
