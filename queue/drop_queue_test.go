package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		q, err := New[int](c)
		assert.Nil(t, q)
		assert.True(t, errors.Is(err, ErrInvalidCapacity), "capacity %d", c)
	}
}

func TestTryEnqueueNeverExceedsCapacity(t *testing.T) {
	q, err := New[int](3)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		ok := q.TryEnqueue(i)
		assert.Equal(t, i < 3, ok, "enqueue %d", i)
		assert.LessOrEqual(t, q.Count(), q.Capacity())
	}
	assert.True(t, q.IsFull())
	assert.Equal(t, 3, q.Count())

	// Once full, further attempts leave the count unchanged.
	assert.False(t, q.TryEnqueue(99))
	assert.Equal(t, 3, q.Count())

	assert.Equal(t, Stats{Accepted: 3, Dropped: 8}, q.Stats())
}

func TestFIFO(t *testing.T) {
	q, err := New[string](4)
	require.NoError(t, err)

	in := []string{"a", "b", "c", "d"}
	for _, s := range in {
		require.True(t, q.TryEnqueue(s))
	}
	ctx := context.Background()
	for _, want := range in {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Count())
	assert.False(t, q.IsFull())
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	got := make(chan int, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, q.TryEnqueue(7))
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up after enqueue")
	}
}

func TestDequeueObservesCancellation(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dequeue ignored cancellation")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	const capacity = 8
	q, err := New[int](capacity)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumed sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]int{}
	for w := 0; w < 4; w++ {
		consumed.Add(1)
		go func() {
			defer consumed.Done()
			for {
				v, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}

	var produced sync.WaitGroup
	var accepted sync.Map
	for p := 0; p < 8; p++ {
		produced.Add(1)
		go func(p int) {
			defer produced.Done()
			for i := 0; i < 200; i++ {
				v := p*1000 + i
				if q.TryEnqueue(v) {
					accepted.Store(v, true)
				}
				assert.LessOrEqual(t, q.Count(), capacity)
			}
		}(p)
	}
	produced.Wait()

	require.Eventually(t, func() bool { return q.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	consumed.Wait()

	// Every accepted item is processed exactly once.
	n := 0
	accepted.Range(func(k, _ any) bool {
		n++
		assert.Equal(t, 1, seen[k.(int)], "item %d", k)
		return true
	})
	assert.Equal(t, n, len(seen))
	stats := q.Stats()
	assert.Equal(t, uint64(n), stats.Accepted)
	assert.Equal(t, uint64(1600), stats.Accepted+stats.Dropped)
}
