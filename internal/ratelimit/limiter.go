// File: internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryHint is the fixed backoff advertised with every denial, regardless of
// actual bucket state. Clients get a cheap, predictable signal instead of an
// oracle over the limiter internals.
const RetryHint = time.Second

// bucket pairs a client's token bucket with its last activity mark so idle
// entries can be evicted.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter admits requests per client key. Each key owns an independent token
// bucket of capacity burst that refills continuously at tokensPerSec; a new
// key starts with a full bucket. All methods are safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate    rate.Limit
	burst   int
	idleTTL time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// New builds a Limiter. idleTTL bounds the bucket map: entries idle longer
// than idleTTL are dropped by Run (or EvictIdle); zero disables eviction.
func New(tokensPerSec float64, burst int, idleTTL time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(tokensPerSec),
		burst:   burst,
		idleTTL: idleTTL,
		log:     logger.Named("ratelimit"),
		now:     time.Now,
	}
}

// Allow consumes one token from key's bucket, reporting whether the request
// is admitted. A denial leaves the bucket state untouched apart from the
// activity mark.
func (l *Limiter) Allow(key string) bool {
	return l.allowAt(l.now(), key)
}

func (l *Limiter) allowAt(now time.Time, key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	// rate.Limiter carries its own lock; holding l.mu across AllowN would
	// serialize unrelated clients.
	return b.lim.AllowN(now, 1)
}

// Len reports the current number of tracked client buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// EvictIdle drops buckets whose last activity is older than olderThan and
// reports how many were removed. An evicted client that returns simply gets
// a fresh full bucket.
func (l *Limiter) EvictIdle(olderThan time.Duration) int {
	return l.evictIdleAt(l.now(), olderThan)
}

func (l *Limiter) evictIdleAt(now time.Time, olderThan time.Duration) int {
	cutoff := now.Add(-olderThan)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Run evicts idle buckets on a fixed cadence until ctx is canceled. Returns
// immediately when eviction is disabled.
func (l *Limiter) Run(ctx context.Context) {
	if l.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(l.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.EvictIdle(l.idleTTL); removed > 0 {
				l.log.Debug("Evicted idle rate-limit buckets.", zap.Int("removed", removed))
			}
		}
	}
}
