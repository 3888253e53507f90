package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lobbyOptions = map[string]any{
	"ttl":      "5s",
	"tag":      "lobby",
	"code_key": "7Xk2hQ9dmP4vYqL3",
}

func intp(i int) *int { return &i }

func TestRun_ScenarioDirectory(t *testing.T) {
	scenarios, err := LoadScenarioDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DeliverDefaultsTransaction(t *testing.T) {
	result, err := Run(&Scenario{
		Name:     "deliver",
		Options:  lobbyOptions,
		Replicas: []string{"a"},
		Steps: []Step{
			{Advance: "1s"},
			{Deliver: &DeliverStep{To: "a", From: "x", State: map[string]string{"carol": "0s"}}},
			{Deliver: &DeliverStep{To: "a", From: "y", Transaction: "tx-custom", State: map[string]string{}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)

	assert.Equal(t, time.Second, result.Steps[0].Advance)
	assert.Equal(t, "tx-1", string(result.Steps[1].Transaction))
	assert.Equal(t, []string{"carol"}, result.Steps[1].Delta.Names())
	assert.Equal(t, "tx-custom", string(result.Steps[2].Transaction))
	assert.Empty(t, result.Steps[2].Delta)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "broadcast_received", result.Trace[0].Variant)
	assert.Equal(t, "tx-custom", string(result.Trace[1].Transaction))
}

func TestRun_PublishCompletesUpdate(t *testing.T) {
	result, err := Run(&Scenario{
		Name:     "publish",
		Options:  lobbyOptions,
		Replicas: []string{"a", "b"},
		Steps: []Step{
			{Touch: &TouchStep{Replica: "a", Name: "alice"}},
			{Publish: &PublishStep{From: "a", To: "b"}},
		},
		Assertions: []Assertion{
			{Type: AssertTransactionStatus, Transaction: "a-1", Status: "succeeded", Targets: intp(1), Receivers: intp(1)},
			{Type: AssertTransactionStatus, Transaction: "a-1", Status: "succeeded", Targets: intp(2)},
			{Type: AssertTransactionStatus, Transaction: "a-1", Status: "succeeded", Receivers: intp(0)},
		},
	})
	require.NoError(t, err)

	variants := make([]string, len(result.Trace))
	for i, ev := range result.Trace {
		variants[i] = ev.Variant
		assert.Equal(t, "a-1", string(ev.Transaction))
	}
	assert.Equal(t, []string{"update_request", "update_success", "broadcast_emitted", "broadcast_received"}, variants)

	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[1]: ")
	assert.Contains(t, result.Errors[0], "broadcast to 2 peer(s)")
	assert.Contains(t, result.Errors[1], "assertions[2]: ")
	assert.Contains(t, result.Errors[1], "received by 0 peer(s)")
}

func TestRun_AssertionFailuresAreReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:     "failing",
		Options:  lobbyOptions,
		Replicas: []string{"a", "b"},
		Steps: []Step{
			{Touch: &TouchStep{Replica: "a", Name: "alice"}},
		},
		Assertions: []Assertion{
			{Type: AssertState, Replica: "a", State: map[string]string{"alice": "1s"}},
			{Type: AssertContains, Replica: "a", Names: []string{"bob"}, Absent: []string{"alice"}},
			{Type: AssertDelta, Step: intp(0), Names: []string{"alice"}},
			{Type: AssertConverged},
			{Type: AssertEventCount, Variant: "broadcast_received", Count: 1},
			{Type: AssertTransactionStatus, Transaction: "tx-9", Status: "pending"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)

	assert.Contains(t, result.Errors[0], "assertions[0]: Assertion failed: state")
	assert.Contains(t, result.Errors[0], "Actual: {alice: 2024-03-01T12:00:00Z}")
	assert.Contains(t, result.Errors[1], "missing [bob], unexpectedly present [alice]")
	assert.Contains(t, result.Errors[2], "changed []")
	assert.Contains(t, result.Errors[3], "Assertion failed: converged")
	assert.Contains(t, result.Errors[4], "Expected: 1 broadcast_received event(s)")
	assert.Contains(t, result.Errors[5], "no events recorded")
}

func TestRun_StartTime(t *testing.T) {
	result, err := Run(&Scenario{
		Name:     "start",
		Start:    "2030-01-02T03:04:05Z",
		Options:  lobbyOptions,
		Replicas: []string{"a"},
		Steps:    []Step{{Touch: &TouchStep{Replica: "a", Name: "alice"}}},
		Assertions: []Assertion{
			{Type: AssertState, Replica: "a", State: map[string]string{"alice": "2030-01-02T03:04:05Z"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := Run(&Scenario{
		Name:     "bad",
		Options:  map[string]any{"tag": "lobby"},
		Replicas: []string{"a"},
		Steps:    []Step{{Advance: "1s"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code_key")
}
