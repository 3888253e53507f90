package harness

import (
	"time"

	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/txn"
)

// TraceEvent is one journaled lifecycle event.
type TraceEvent struct {
	Seq         int64           `json:"seq"`
	Variant     string          `json:"variant"`
	Transaction txn.Transaction `json:"transaction,omitempty"`
}

// StepResult records what one scenario step did.
type StepResult struct {
	Index       int
	Kind        string
	Replica     string // replica the step acted on
	From        string // deliver and publish only
	Name        string // touch only
	Advance     time.Duration
	Transaction txn.Transaction
	Delta       presence.Delta

	// Err is a failure to record the broadcast receipt. The merge itself
	// still happened.
	Err error
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	Steps []StepResult

	// States holds the final, pruned state of each replica.
	States map[string]*presence.State

	// Trace holds the journaled events in seq order.
	Trace []TraceEvent

	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		States: make(map[string]*presence.State),
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
