package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/journal"
)

func TestTrace_Text(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--db", path, "--tx", "tx-done")
	require.NoError(t, err)
	assert.Contains(t, out, "Transaction: tx-done")
	assert.Contains(t, out, "Contract:    contract-1")
	assert.Contains(t, out, "Status:      succeeded")
	assert.Contains(t, out, "Outcome:     put_success")
	assert.Contains(t, out, "[1] put_request")
	assert.Contains(t, out, "[2] put_success")
	assert.NotContains(t, out, `"kind":"contract_change"`)
}

func TestTrace_VerboseShowsEvents(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--db", path, "--tx", "tx-done", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind":"contract_change"`)
	assert.Contains(t, out, `"transaction":"tx-done"`)
}

func TestTrace_JSON(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--db", path, "--tx", "tx-done", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, journal.StatusSucceeded, resp.Data.State.Status)
	require.Len(t, resp.Data.Timeline, 2)
	assert.Equal(t, int64(1), resp.Data.Timeline[0].Seq)
	assert.Equal(t, "put_request", resp.Data.Timeline[0].Variant)
	assert.Equal(t, "contract_change", resp.Data.Timeline[0].Kind)
	assert.Len(t, resp.Data.Timeline[0].ID, 64)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(resp.Data.Timeline[1].Event, &ev))
	assert.Equal(t, "put_success", ev["change"].(map[string]any)["type"])
}

func TestTrace_UnknownTransaction(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "trace", "--db", path, "--tx", "tx-missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [not_found]: no events found for transaction tx-missing")
}

func TestTrace_UnreadableDatabase(t *testing.T) {
	_, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing", "journal.db"), "--tx", "tx-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open journal")
}

func TestPending_Text(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "pending", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pending transaction(s):")
	assert.Contains(t, out, "tx-open")
	assert.Contains(t, out, "update_request")
	assert.NotContains(t, out, "tx-done")
}

func TestPending_JSON(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "pending", "--db", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data PendingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Transactions, 1)
	assert.Equal(t, journal.StatusPending, resp.Data.Transactions[0].Status)
}

func TestPending_EmptyJournal(t *testing.T) {
	out, err := execute(t, "pending", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Equal(t, "No pending transactions.\n", out)

	out, err = execute(t, "pending", "--db", filepath.Join(t.TempDir(), "empty.db"), "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"transactions": []`)
}
