package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemQueue_FIFO(t *testing.T) {
	q := newItemQueue()

	for _, name := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Item{Type: ItemPresence, Name: name}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Name)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestItemQueue_SignalCoalesces(t *testing.T) {
	q := newItemQueue()
	q.Enqueue(Item{Type: ItemPresence, Name: "A"})
	q.Enqueue(Item{Type: ItemPresence, Name: "B"})

	select {
	case _, open := <-q.Wait():
		assert.True(t, open)
	default:
		t.Fatal("expected a pending signal")
	}

	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestItemQueue_Close(t *testing.T) {
	q := newItemQueue()
	q.Enqueue(Item{Type: ItemPresence, Name: "A"})
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(Item{Type: ItemPresence, Name: "B"}), "enqueue after close should fail")

	got, ok := q.TryDequeue()
	require.True(t, ok, "items queued before close remain")
	assert.Equal(t, "A", got.Name)

	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestItemQueue_ConcurrentEnqueue(t *testing.T) {
	q := newItemQueue()
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			q.Enqueue(Item{Type: ItemPresence, Name: "x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, q.Len())
}
