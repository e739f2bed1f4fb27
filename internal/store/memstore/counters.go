package memstore

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/pkg/models"
)

const shardCount = 64

type shard struct {
	mu     sync.Mutex
	counts map[models.CounterKey]int
}

// Counters is an in-memory store.CounterStore. Keys are spread over shards by
// tenant and period, so a check-and-increment holds one shard lock and nothing else.
type Counters struct {
	shards [shardCount]*shard
}

// NewCounters returns an empty Counters.
func NewCounters() *Counters {
	c := &Counters{}
	for i := range c.shards {
		c.shards[i] = &shard{counts: make(map[models.CounterKey]int)}
	}
	return c
}

var _ store.CounterStore = (*Counters)(nil)

func (c *Counters) shardFor(key models.CounterKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write(key.TenantID[:])
	_, _ = h.Write([]byte(key.Period))
	return c.shards[h.Sum32()%shardCount]
}

func (c *Counters) IncrementBounded(_ context.Context, key models.CounterKey, limit int) (int, error) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := sh.counts[key]
	if n >= limit {
		return n, store.ErrLimitReached
	}
	n++
	sh.counts[key] = n
	return n, nil
}

func (c *Counters) IncrementUnbounded(_ context.Context, key models.CounterKey) (int, error) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.counts[key]++
	return sh.counts[key], nil
}

func (c *Counters) Decrement(_ context.Context, key models.CounterKey) error {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.counts[key] > 0 {
		sh.counts[key]--
	}
	return nil
}

func (c *Counters) GetCounter(_ context.Context, key models.CounterKey) (int, error) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.counts[key], nil
}
