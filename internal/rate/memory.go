package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter es la misma fixed window que RedisLimiter pero en proceso,
// sobre go-cache. Sirve para una sola réplica.
type MemoryLimiter struct {
	cache  *gocache.Cache
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, 2*window),
		prefix: "rl:",
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := bucketKey(l.prefix, key, winStart)
	ttl := winStart.Add(l.window).Sub(now)

	var hits int64
	for {
		if err := l.cache.Add(k, int64(1), ttl); err == nil {
			hits = 1
			break
		}
		n, err := l.cache.IncrementInt64(k, 1)
		if err == nil {
			hits = n
			break
		}
		// expiró entre Add e Increment: reintentar
	}

	return evaluate(hits, l.max, ttl), nil
}
