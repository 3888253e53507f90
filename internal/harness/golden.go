package harness

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the steps, final states and trace of a scenario run as
// the text stored in golden files.
func Snapshot(name string, r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)

	b.WriteString("steps:\n")
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  [%d] ", s.Index)
		switch s.Kind {
		case StepTouch:
			fmt.Fprintf(&b, "touch %s %s\n", s.Replica, s.Name)
		case StepAdvance:
			fmt.Fprintf(&b, "advance %s\n", s.Advance)
		default:
			fmt.Fprintf(&b, "%s %s -> %s %s: %s\n", s.Kind, s.From, s.Replica, s.Transaction, formatDelta(s))
		}
	}

	b.WriteString("states:\n")
	names := make([]string, 0, len(r.States))
	for name := range r.States {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		st := r.States[name]
		if st.Len() == 0 {
			fmt.Fprintf(&b, "  %s: {}\n", name)
			continue
		}
		fmt.Fprintf(&b, "  %s:\n", name)
		for entry, ts := range st.All() {
			fmt.Fprintf(&b, "    %s: %s\n", entry, ts.UTC().Format(time.RFC3339Nano))
		}
	}

	b.WriteString("trace:\n")
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "  [%d] %s %s\n", ev.Seq, ev.Variant, ev.Transaction)
	}
	return []byte(b.String())
}

func formatDelta(s StepResult) string {
	var out string
	if len(s.Delta) == 0 {
		out = "no change"
	} else {
		parts := make([]string, 0, len(s.Delta))
		for _, n := range s.Delta.Names() {
			parts = append(parts, "+"+n)
		}
		out = strings.Join(parts, " ")
	}
	if s.Err != nil {
		out += " (receipt not recorded: " + s.Err.Error() + ")"
	}
	return out
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
