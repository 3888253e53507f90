package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/ringtrail/internal/txn"
)

// SequentialGenerator returns "<prefix>-1", "<prefix>-2", ... and never runs
// out, unlike txn.FixedGenerator.
//
// The same scenario with the same prefix produces byte-identical journals.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator. An empty prefix becomes "tx".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() txn.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return txn.Transaction(fmt.Sprintf("%s-%d", g.prefix, g.n))
}
