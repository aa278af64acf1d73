package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Queue
// --------------------------------------------------------------------------

func TestQueueOrder(t *testing.T) {
	q := newTaskQueue()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, q.push(func() { got = append(got, i) }))
	}
	assert.Equal(t, 10, q.len())

	for {
		task, ok := q.pop()
		if !ok {
			break
		}
		task()
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Equal(t, 0, q.len())
}

func TestQueueClosed(t *testing.T) {
	q := newTaskQueue()
	require.True(t, q.push(func() {}))
	q.close()

	assert.False(t, q.push(func() {}))
	assert.False(t, q.push(nil))

	// queued tasks survive close
	assert.True(t, q.wait())
	_, ok := q.pop()
	assert.True(t, ok)
	assert.False(t, q.wait())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newTaskQueue()

	const producers = 8
	const perProducer = 1000

	var counter atomic.Int64
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.push(func() { counter.Add(1) })
			}
		}()
	}
	wg.Wait()
	q.close()

	for q.wait() {
		for {
			task, ok := q.pop()
			if !ok {
				break
			}
			task()
		}
	}
	assert.Equal(t, int64(producers*perProducer), counter.Load())
}

// --------------------------------------------------------------------------
// Loop
// --------------------------------------------------------------------------

func TestLoopRunsSequentially(t *testing.T) {
	loop := NewLoop("test")
	defer loop.Close()

	var inFlight, maxInFlight atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				loop.Dispatch(func() {
					n := inFlight.Add(1)
					if n > maxInFlight.Load() {
						maxInFlight.Store(n)
					}
					inFlight.Add(-1)
				})
			}
		}()
	}
	wg.Wait()
	loop.Flush()

	assert.Equal(t, int64(1), maxInFlight.Load())
	assert.Equal(t, int64(400), loop.Executed())
}

func TestLoopKeepsDispatchOrder(t *testing.T) {
	loop := NewLoop("test")
	defer loop.Close()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		loop.Dispatch(func() { got = append(got, i) })
	}
	loop.Flush()

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSurvivesPanic(t *testing.T) {
	loop := NewLoop("test")
	defer loop.Close()

	ran := make(chan struct{})
	loop.Dispatch(func() { panic("boom") })
	loop.Dispatch(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after a panicking task")
	}
}

func TestLoopCloseDrains(t *testing.T) {
	loop := NewLoop("test")

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		loop.Dispatch(func() { counter.Add(1) })
	}
	loop.Close()
	assert.Equal(t, int64(100), counter.Load())

	// dropped after close, Flush returns
	loop.Dispatch(func() { counter.Add(1) })
	loop.Flush()
	assert.Equal(t, int64(100), counter.Load())
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

func TestPoolRunsAll(t *testing.T) {
	pool := NewPool(context.Background(), 0)

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		pool.Dispatch(func() { counter.Add(1) })
	}
	pool.Close()
	assert.Equal(t, int64(100), counter.Load())
	assert.Error(t, pool.Context().Err())

	pool.Dispatch(func() { counter.Add(1) })
	assert.Equal(t, int64(100), counter.Load())
}

func TestPoolLimit(t *testing.T) {
	pool := NewPool(context.Background(), 2)

	var inFlight, maxInFlight atomic.Int64
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		pool.Dispatch(func() {
			n := inFlight.Add(1)
			mu.Lock()
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		})
	}
	pool.Close()
	assert.LessOrEqual(t, maxInFlight.Load(), int64(2))
}

func TestPoolNestedDispatch(t *testing.T) {
	pool := NewPool(context.Background(), 1)

	done := make(chan struct{})
	pool.Dispatch(func() {
		pool.Dispatch(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested dispatch did not run")
	}
	pool.Close()
}

// --------------------------------------------------------------------------
// Unconfined
// --------------------------------------------------------------------------

func TestUnconfinedRunsInline(t *testing.T) {
	ran := false
	Unconfined.Dispatch(func() { ran = true })
	assert.True(t, ran)

	assert.NotPanics(t, func() {
		Unconfined.Dispatch(func() { panic("boom") })
	})
}
