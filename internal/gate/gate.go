// File: internal/gate/gate.go
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/robit-man/web-scrape-service/api/schemas"
)

// Block makes Acquire wait indefinitely for a permit, bounded only by the
// caller's context.
const Block time.Duration = -1

// Gate caps the number of simultaneous browser operations system-wide. It is
// a counting semaphore with FIFO wakeup: waiters acquire permits in arrival
// order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// New builds a Gate admitting at most maxConcurrency concurrent holders.
func New(maxConcurrency int) *Gate {
	return &Gate{
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
		capacity: maxConcurrency,
	}
}

// Acquire obtains one permit and returns its release function. The release is
// idempotent; callers defer it so every exit path returns the permit exactly
// once.
//
// timeout semantics: Block waits until ctx is done; zero tries once and fails
// fast; a positive timeout bounds the wait. An expired wait yields an
// at_capacity error, while cancellation of the caller's own context
// propagates as ctx.Err().
func (g *Gate) Acquire(ctx context.Context, timeout time.Duration) (release func(), err error) {
	switch {
	case timeout == 0:
		if !g.sem.TryAcquire(1) {
			return nil, schemas.E(schemas.CodeAtCapacity, "concurrency limit reached")
		}
	case timeout > 0:
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		err := g.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, schemas.Wrap(schemas.CodeAtCapacity, "timed out waiting for a slot", err)
		}
	default:
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	g.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}, nil
}

// InFlight reports the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Capacity reports the configured permit count.
func (g *Gate) Capacity() int {
	return g.capacity
}
