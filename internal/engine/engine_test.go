package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/eventbus"
	"github.com/roach88/ringtrail/internal/lifecycle"
	"github.com/roach88/ringtrail/internal/ping"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/testutil"
	"github.com/roach88/ringtrail/internal/txn"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContract(t *testing.T, freq time.Duration) (*ping.Contract, *eventbus.Memory) {
	t.Helper()
	clock := testutil.NewManualClock(t0)
	mem := eventbus.NewMemory()
	rec := lifecycle.NewRecorder(testutil.NewSequentialGenerator("tx"), clock, mem)
	opts := ping.Options{TTL: 5 * time.Second, Frequency: freq, Tag: "lobby", CodeKey: "abc"}
	c, err := ping.NewContract(opts, clock, rec, ring.MustPeerID([]byte("node")))
	require.NoError(t, err)
	return c, mem
}

func runAsync(ctx context.Context, e *Engine) <-chan error {
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return done
}

func delivery(tx txn.Transaction, from string, entries map[string]time.Time) ping.Delivery {
	return ping.Delivery{Transaction: tx, From: from, State: presence.FromMap(entries)}
}

func TestEngine_SerializesConcurrentDeliveries(t *testing.T) {
	c, mem := newTestContract(t, time.Second)
	e := New(c, WithLogger(testLogger()))
	done := runAsync(context.Background(), e)

	const senders = 20
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("peer-%02d", i)
			ok := e.Enqueue(delivery(txn.Transaction("tx-"+name), name, map[string]time.Time{name: t0}))
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	e.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	assert.Equal(t, senders, c.Snapshot().Len())
	assert.Len(t, mem.Events(), senders)
	for _, ev := range mem.Events() {
		assert.Equal(t, "broadcast_received", catalog.Variant(ev))
	}
}

func TestEngine_RedeliveryIsNoOp(t *testing.T) {
	c, _ := newTestContract(t, time.Second)

	var deltas []presence.Delta
	e := New(c, WithLogger(testLogger()), WithObserver(func(_ Item, d presence.Delta, err error) {
		assert.NoError(t, err)
		deltas = append(deltas, d)
	}))

	d := delivery("tx-1", "a", map[string]time.Time{"alice": t0, "bob": t0.Add(-time.Second)})
	e.Enqueue(d)
	e.Enqueue(d)
	e.Stop()
	require.NoError(t, e.Run(context.Background()))

	require.Len(t, deltas, 2)
	assert.Equal(t, 2, deltas[0].Len())
	assert.Equal(t, 0, deltas[1].Len())
}

func TestEngine_LogsAndContinuesOnFailure(t *testing.T) {
	c, mem := newTestContract(t, time.Second)

	var errs []error
	e := New(c, WithLogger(testLogger()), WithObserver(func(_ Item, _ presence.Delta, err error) {
		errs = append(errs, err)
	}))

	e.Enqueue(delivery("", "a", map[string]time.Time{"alice": t0}))
	e.Enqueue(delivery("tx-2", "b", map[string]time.Time{"bob": t0}))
	e.queue.Enqueue(Item{Type: ItemType(99)})
	e.Stop()
	require.NoError(t, e.Run(context.Background()))

	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], lifecycle.ErrNoTransaction)
	assert.NoError(t, errs[1])
	assert.ErrorContains(t, errs[2], "unknown item type")

	assert.Equal(t, []string{"alice", "bob"}, c.Snapshot().Names())
	assert.Len(t, mem.Events(), 1)
}

func TestEngine_Touch(t *testing.T) {
	c, _ := newTestContract(t, time.Second)
	e := New(c, WithLogger(testLogger()))

	require.True(t, e.Touch("carol"))
	assert.Equal(t, 1, e.Pending())
	e.Stop()
	require.NoError(t, e.Run(context.Background()))

	assert.True(t, c.Snapshot().Contains("carol"))
	assert.False(t, e.Touch("dave"), "touch after stop should fail")
}

func TestEngine_StopsOnContext(t *testing.T) {
	c, _ := newTestContract(t, time.Second)
	e := New(c, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, e)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.Enqueue(ping.Delivery{}), "enqueue after cancel should fail")
}

func TestEngine_Heartbeat(t *testing.T) {
	c, _ := newTestContract(t, 5*time.Millisecond)

	stamped := make(chan struct{}, 16)
	e := New(c, WithLogger(testLogger()), WithHeartbeat("self"), WithObserver(func(it Item, _ presence.Delta, _ error) {
		if it.Type == ItemPresence && it.Name == "self" {
			select {
			case stamped <- struct{}{}:
			default:
			}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, e)

	// One stamp at startup, at least one more from the ticker.
	for i := 0; i < 2; i++ {
		select {
		case <-stamped:
		case <-time.After(5 * time.Second):
			t.Fatal("heartbeat did not fire")
		}
	}
	cancel()
	<-done

	assert.True(t, c.Snapshot().Contains("self"))
}
