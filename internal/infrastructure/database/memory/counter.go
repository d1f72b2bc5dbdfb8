package memory

import (
	"context"
	"sync"
)

// Counter is a process-local loan.NumberSequence.
type Counter struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewCounter() *Counter {
	return &Counter{values: make(map[string]int64)}
}

func (c *Counter) Next(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key]++
	return c.values[key], nil
}
