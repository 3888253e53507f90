package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/txn"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// AssertionContext provides the journal and clock origin to assertions.
type AssertionContext struct {
	Ctx     context.Context
	Journal *journal.Journal
	Start   time.Time
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertState:
			err = assertState(result, a, actx.Start)
		case AssertContains:
			err = assertContains(result, a)
		case AssertDelta:
			err = assertDelta(result, a)
		case AssertConverged:
			err = assertConverged(result, a)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertTransactionStatus:
			err = assertTransactionStatus(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}

		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func replicaState(result *Result, name string) (*presence.State, error) {
	st, ok := result.States[name]
	if !ok {
		return nil, fmt.Errorf("unknown replica %q", name)
	}
	return st, nil
}

func assertState(result *Result, a Assertion, start time.Time) error {
	entries, err := ParseEntries(start, a.State)
	if err != nil {
		return err
	}
	actual, err := replicaState(result, a.Replica)
	if err != nil {
		return err
	}
	expected := presence.FromMap(entries)
	if !actual.Equal(expected) {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s = %s", a.Replica, formatState(expected)),
			Actual:   formatState(actual),
		}
	}
	return nil
}

func assertContains(result *Result, a Assertion) error {
	st, err := replicaState(result, a.Replica)
	if err != nil {
		return err
	}
	var missing, present []string
	for _, n := range a.Names {
		if !st.Contains(n) {
			missing = append(missing, n)
		}
	}
	for _, n := range a.Absent {
		if st.Contains(n) {
			present = append(present, n)
		}
	}
	if len(missing) == 0 && len(present) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertContains,
		Expected: fmt.Sprintf("%s holds %v and lacks %v", a.Replica, a.Names, a.Absent),
		Actual:   fmt.Sprintf("missing %v, unexpectedly present %v in %s", missing, present, formatState(st)),
	}
}

func assertDelta(result *Result, a Assertion) error {
	if a.Step == nil || *a.Step < 0 || *a.Step >= len(result.Steps) {
		return fmt.Errorf("delta step out of range")
	}
	sr := result.Steps[*a.Step]
	actual := sr.Delta.Names()
	expected := slices.Sorted(slices.Values(a.Names))
	if !slices.Equal(actual, expected) {
		return &AssertionError{
			Type:     AssertDelta,
			Expected: fmt.Sprintf("step %d changed %v", sr.Index, expected),
			Actual:   fmt.Sprintf("changed %v", actual),
		}
	}
	return nil
}

func assertConverged(result *Result, a Assertion) error {
	names := slices.Clone(a.Replicas)
	if len(names) == 0 {
		names = make([]string, 0, len(result.States))
		for name := range result.States {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	if len(names) < 2 {
		return nil
	}

	first, err := replicaState(result, names[0])
	if err != nil {
		return err
	}
	for _, name := range names[1:] {
		st, err := replicaState(result, name)
		if err != nil {
			return err
		}
		if !st.Equal(first) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s = %s", name, formatState(first)),
				Actual:   formatState(st),
			}
		}
	}
	return nil
}

func assertEventCount(result *Result, a Assertion) error {
	n := 0
	for _, ev := range result.Trace {
		if ev.Variant == a.Variant {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.Variant),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func assertTransactionStatus(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Journal == nil {
		return fmt.Errorf("transaction_status requires a journal")
	}
	st, err := actx.Journal.TransactionState(actx.Ctx, txn.Transaction(a.Transaction))
	if errors.Is(err, journal.ErrNotFound) {
		return &AssertionError{
			Type:     AssertTransactionStatus,
			Expected: fmt.Sprintf("%s is %s", a.Transaction, a.Status),
			Actual:   "no events recorded",
		}
	}
	if err != nil {
		return err
	}
	if string(st.Status) != a.Status {
		return &AssertionError{
			Type:     AssertTransactionStatus,
			Expected: fmt.Sprintf("%s is %s", a.Transaction, a.Status),
			Actual:   string(st.Status),
		}
	}
	if a.Targets != nil && len(st.BroadcastTargets) != *a.Targets {
		return &AssertionError{
			Type:     AssertTransactionStatus,
			Expected: fmt.Sprintf("%s broadcast to %d peer(s)", a.Transaction, *a.Targets),
			Actual:   fmt.Sprintf("%v", st.BroadcastTargets),
		}
	}
	if a.Receivers != nil && len(st.Receivers) != *a.Receivers {
		return &AssertionError{
			Type:     AssertTransactionStatus,
			Expected: fmt.Sprintf("%s received by %d peer(s)", a.Transaction, *a.Receivers),
			Actual:   fmt.Sprintf("%v", st.Receivers),
		}
	}
	return nil
}

// formatState renders st on one line: {alice: 2024-..., bob: ...}.
func formatState(st *presence.State) string {
	parts := make([]string, 0, st.Len())
	for name, ts := range st.All() {
		parts = append(parts, name+": "+ts.UTC().Format(time.RFC3339Nano))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
