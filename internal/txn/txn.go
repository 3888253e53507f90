// Package txn provides transaction identifiers that thread causally related
// lifecycle events into one chain.
//
// A transaction is created once per initiating operation (put, update, get)
// and copied unmodified onto every downstream event: the terminal outcome,
// the broadcast fan-out and each broadcast receipt.
package txn

import (
	"sync"

	"github.com/google/uuid"
)

// Transaction is an opaque, globally unique correlation id.
type Transaction string

// Valid reports whether t was assigned.
func (t Transaction) Valid() bool {
	return t != ""
}

func (t Transaction) String() string {
	return string(t)
}

// Generator creates transaction ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type Generator interface {
	Generate() Transaction
}

// UUIDv7Generator generates time-sortable UUIDv7 transaction ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time in journal listings.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() Transaction {
	return Transaction(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined transaction ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []Transaction
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("tx-1", "tx-2")
//	gen.Generate() // "tx-1"
//	gen.Generate() // "tx-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...Transaction) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics when exhausted so a test that starts more operations than it
// expected fails loudly.
func (g *FixedGenerator) Generate() Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
