package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// checkoutGuardPrefix is the Redis key prefix for in-flight checkout attempts
const checkoutGuardPrefix = "checkout:inflight:"

// Guard marks a key as in flight for at most ttl. Acquire returns a release
// func when the key was free, or ok=false when another holder has it.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Acquire implements Guard with SET NX
func (c *Cache) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := checkoutGuardPrefix + key
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, c.client, []string{k}, token).Err()
	}
	return release, true, nil
}

// MemoryGuard is a process-local Guard used when Redis is disabled
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// NewMemoryGuard creates an in-memory guard
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Acquire implements Guard
func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, held := g.entries[key]; held && now.Before(e.expires) {
		return nil, false, nil
	}

	token := uuid.NewString()
	g.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	release := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if e, ok := g.entries[key]; ok && e.token == token {
			delete(g.entries, key)
		}
	}
	return release, true, nil
}
