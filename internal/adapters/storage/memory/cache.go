package memory

import (
	"container/list"
	"hash/fnv"
	"maps"
	"sync"
	"time"

	"api-tester/internal/domain"
)

const maxShards = 16

// Eviction reasons reported to the eviction hook.
const (
	EvictExpired  = "expired"
	EvictCapacity = "capacity"
)

type cacheEntry struct {
	key        string
	value      domain.ProxyResponse
	insertedAt time.Time
}

// cacheShard is one independently locked slice of the key space.
// Its list is ordered by recency of use: front is the most recently read or written entry.
type cacheShard struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

// ResponseCache is a bounded in-memory store of proxied responses keyed by request fingerprint.
// Entries expire ttl after insertion; when a shard is full the least recently used entry is dropped.
// All methods are safe for concurrent use.
type ResponseCache struct {
	shards  []*cacheShard
	ttl     time.Duration
	now     func() time.Time
	onEvict func(reason string)
}

type Option func(*ResponseCache)

// WithClock replaces time.Now, used by tests to move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// WithEvictionHook registers fn to be called once per evicted entry.
func WithEvictionHook(fn func(reason string)) Option {
	return func(c *ResponseCache) { c.onEvict = fn }
}

// NewResponseCache creates a cache holding at most capacity entries, each living for ttl.
// capacity <= 0 disables caching; ttl <= 0 disables expiry.
func NewResponseCache(capacity int, ttl time.Duration, opts ...Option) *ResponseCache {
	c := &ResponseCache{ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if capacity <= 0 {
		return c
	}
	n := min(maxShards, capacity)
	c.shards = make([]*cacheShard, n)
	for i := range c.shards {
		// spread the remainder so the shard capacities add up to exactly capacity
		sc := capacity / n
		if i < capacity%n {
			sc++
		}
		c.shards[i] = &cacheShard{capacity: sc, items: make(map[string]*list.Element, sc), lru: list.New()}
	}
	return c
}

func (c *ResponseCache) shardFor(key string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *ResponseCache) expired(e *cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.insertedAt) >= c.ttl
}

func (c *ResponseCache) evicted(reason string) {
	if c.onEvict != nil {
		c.onEvict(reason)
	}
}

// Get returns a copy of the stored response for key, if present and not expired.
func (c *ResponseCache) Get(key string) (domain.ProxyResponse, bool) {
	if len(c.shards) == 0 {
		return domain.ProxyResponse{}, false
	}
	s := c.shardFor(key)
	s.mu.Lock()
	el, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		return domain.ProxyResponse{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.expired(e, c.now()) {
		s.removeLocked(el)
		s.mu.Unlock()
		c.evicted(EvictExpired)
		return domain.ProxyResponse{}, false
	}
	s.lru.MoveToFront(el)
	v := cloneResponse(e.value)
	s.mu.Unlock()
	return v, true
}

// Insert stores value under key, replacing any previous entry and restarting its ttl.
func (c *ResponseCache) Insert(key string, value domain.ProxyResponse) {
	if len(c.shards) == 0 {
		return
	}
	now := c.now()
	entry := &cacheEntry{key: key, value: cloneResponse(value), insertedAt: now}
	s := c.shardFor(key)

	s.mu.Lock()
	if el, ok := s.items[key]; ok {
		el.Value = entry
		s.lru.MoveToFront(el)
		s.mu.Unlock()
		return
	}
	var reasons []string
	if len(s.items) >= s.capacity {
		// expired entries go first, then the least recently used
		for el := s.lru.Back(); el != nil; {
			prev := el.Prev()
			if c.expired(el.Value.(*cacheEntry), now) {
				s.removeLocked(el)
				reasons = append(reasons, EvictExpired)
			}
			el = prev
		}
		for len(s.items) >= s.capacity {
			s.removeLocked(s.lru.Back())
			reasons = append(reasons, EvictCapacity)
		}
	}
	s.items[key] = s.lru.PushFront(entry)
	s.mu.Unlock()

	for _, r := range reasons {
		c.evicted(r)
	}
}

// Purge drops every expired entry and returns how many were removed.
func (c *ResponseCache) Purge() int {
	if c.ttl <= 0 {
		return 0
	}
	now := c.now()
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for el := s.lru.Back(); el != nil; {
			prev := el.Prev()
			if c.expired(el.Value.(*cacheEntry), now) {
				s.removeLocked(el)
				total++
			}
			el = prev
		}
		s.mu.Unlock()
	}
	for i := 0; i < total; i++ {
		c.evicted(EvictExpired)
	}
	return total
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *ResponseCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// Capacity returns the configured maximum number of entries.
func (c *ResponseCache) Capacity() int {
	n := 0
	for _, s := range c.shards {
		n += s.capacity
	}
	return n
}

func (s *cacheShard) removeLocked(el *list.Element) {
	e := s.lru.Remove(el).(*cacheEntry)
	delete(s.items, e.key)
}

func cloneResponse(r domain.ProxyResponse) domain.ProxyResponse {
	out := r
	out.Headers = maps.Clone(r.Headers)
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}
