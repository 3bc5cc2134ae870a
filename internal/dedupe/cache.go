package dedupe

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache remembers recently processed record IDs for a bounded time and count.
type Cache struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl. A nil clock means wall time.
func NewCache(capacity int, ttl time.Duration, clock clockwork.Clock) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		clock:    clock,
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// IsSeen reports whether key was marked inside the ttl window. It does not mark the key.
func (c *Cache) IsSeen(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seenLocked(key, now)
}

// MarkSeen records that a key has been processed.
func (c *Cache) MarkSeen(key string) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.markLocked(key, now)
}

// Len returns the number of keys currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) seenLocked(key string, now time.Time) bool {
	ts, ok := c.items[key]
	return ok && now.Sub(ts) <= c.ttl
}

func (c *Cache) markLocked(key string, now time.Time) {
	c.items[key] = now
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a re-marked key has a newer entry further down the queue
		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
