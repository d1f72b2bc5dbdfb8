package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"loan-engine/internal/config"
	"loan-engine/internal/pkg/apperrors"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys   []string
	values map[string]int64
	err    error
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *goredis.IntCmd {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	f.values[key]++
	return goredis.NewIntResult(f.values[key], nil)
}

func TestCounter_Next(t *testing.T) {
	fake := &fakeRedis{values: map[string]int64{}}
	c := &Counter{rdb: fake, prefix: "loan-engine:"}

	first, err := c.Next(context.Background(), "PREST-202401")
	require.NoError(t, err)
	second, err := c.Next(context.Background(), "PREST-202401")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, "loan-engine:loan-number:PREST-202401", fake.keys[0])
}

func TestCounter_NextError(t *testing.T) {
	c := &Counter{rdb: &fakeRedis{err: errors.New("i/o timeout")}}

	_, err := c.Next(context.Background(), "PREST-202401")

	assert.ErrorIs(t, err, apperrors.ErrInternalServer)
	assert.ErrorContains(t, err, "i/o timeout")
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	_, err := NewRedisConnection(config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, Timeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestClose_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Close(nil) })
}
