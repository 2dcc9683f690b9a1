// File: internal/gate/gate_test.go
package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/gate"
)

func TestCapacityIsNeverExceeded(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(2)
	var (
		current atomic.Int64
		peak    atomic.Int64
		wg      sync.WaitGroup
	)

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), gate.Block)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2), "more holders than permits")
	assert.Equal(t, 0, g.InFlight())
}

func TestTimeoutMapsToAtCapacity(t *testing.T) {
	g := gate.New(1)

	release, err := g.Acquire(context.Background(), gate.Block)
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background(), 30*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, schemas.CodeAtCapacity, schemas.CodeOf(err))
}

func TestZeroTimeoutFailsFast(t *testing.T) {
	g := gate.New(1)

	release, err := g.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = g.Acquire(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, schemas.CodeAtCapacity, schemas.CodeOf(err))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestBlockWaitsUntilReleased(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(1)
	release, err := g.Acquire(context.Background(), gate.Block)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r2, err := g.Acquire(context.Background(), gate.Block)
		assert.NoError(t, err)
		r2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should wait for the first release")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestCallerCancellationPropagates(t *testing.T) {
	g := gate.New(1)
	release, err := g.Acquire(context.Background(), gate.Block)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = g.Acquire(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled, "caller cancel is not an at_capacity condition")
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := gate.New(1)

	release, err := g.Acquire(context.Background(), gate.Block)
	require.NoError(t, err)

	release()
	release()
	release()

	assert.Equal(t, 0, g.InFlight())

	// A double release must not have minted an extra permit.
	r1, err := g.Acquire(context.Background(), 0)
	require.NoError(t, err)
	defer r1()
	_, err = g.Acquire(context.Background(), 0)
	assert.Error(t, err)
}

func TestFIFOWakeup(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := gate.New(1)
	release, err := g.Acquire(context.Background(), gate.Block)
	require.NoError(t, err)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r, err := g.Acquire(context.Background(), gate.Block)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			r()
		}(i)
		// Stagger arrivals so the wait queue order is deterministic.
		time.Sleep(30 * time.Millisecond)
	}

	release()
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}
