package txn

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	var gen UUIDv7Generator
	tx := gen.Generate()

	parsed, err := uuid.Parse(tx.String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.True(t, tx.Valid())
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	var gen UUIDv7Generator
	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	out := make(chan Transaction, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				out <- gen.Generate()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[Transaction]bool)
	for tx := range out {
		assert.False(t, seen[tx], "transaction %s generated twice", tx)
		seen[tx] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestFixedGenerator_Order(t *testing.T) {
	gen := NewFixedGenerator("tx-1", "tx-2")
	assert.Equal(t, Transaction("tx-1"), gen.Generate())
	assert.Equal(t, Transaction("tx-2"), gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestTransaction_Valid(t *testing.T) {
	assert.False(t, Transaction("").Valid())
	assert.True(t, Transaction("x").Valid())
}
