package harness

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/presence"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"expired_merge", "fresh_merge", "replicas_converge"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	ts := DefaultStart
	result := NewResult()
	result.Steps = []StepResult{
		{Index: 0, Kind: StepAdvance, Advance: 1500 * time.Millisecond},
		{Index: 1, Kind: StepDeliver, Replica: "a", From: "x", Transaction: "tx-1",
			Delta: presence.Delta{"zed": ts, "amy": ts}},
		{Index: 2, Kind: StepDeliver, Replica: "a", From: "y", Transaction: "",
			Delta: presence.Delta{}, Err: errors.New("no transaction")},
	}
	result.States["b"] = presence.New()
	result.States["a"] = presence.FromMap(map[string]time.Time{"amy": ts})
	result.Trace = []TraceEvent{{Seq: 1, Variant: "broadcast_received", Transaction: "tx-1"}}

	want := `scenario: demo
steps:
  [0] advance 1.5s
  [1] deliver x -> a tx-1: +amy +zed
  [2] deliver y -> a : no change (receipt not recorded: no transaction)
states:
  a:
    amy: 2024-03-01T12:00:00Z
  b: {}
trace:
  [1] broadcast_received tx-1
`
	assert.Equal(t, want, string(Snapshot("demo", result)))
}
