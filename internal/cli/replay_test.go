package cli

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/ring"
)

// corrupt rewrites the payload of the row at seq.
func corrupt(t *testing.T, path string, seq int64, payload []byte) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`UPDATE events SET payload = ? WHERE seq = ?`, payload, seq)
	require.NoError(t, err)
}

func TestReplay_AllVerify(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 3/3 events")
	assert.Contains(t, out, "✓ All events round trip")
}

func TestReplay_JSON(t *testing.T) {
	path := seedJournal(t)

	out, err := execute(t, "replay", "--db", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Verified)
	assert.Empty(t, resp.Data.Failures)
}

func TestReplay_EmptyJournal(t *testing.T) {
	out, err := execute(t, "replay", "--db", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	assert.Equal(t, "Journal is empty.\n", out)
}

func TestReplay_DetectsUndecodablePayload(t *testing.T) {
	path := seedJournal(t)
	// Contract change with discriminant 7, which no variant uses.
	corrupt(t, path, 2, []byte{0x08, 0x07, 0x12, 0x00})

	out, err := execute(t, "replay", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Verified 2/3 events")
	assert.Contains(t, out, "FAIL seq 2")
	assert.Contains(t, out, "unknown_variant")
}

func TestReplay_DetectsContentMismatch(t *testing.T) {
	path := seedJournal(t)
	// A valid event stored under another event's id.
	other, err := catalog.EncodeEvent(&catalog.ContractChange{
		ContractID: "contract-9",
		Change: &catalog.GetContract{
			Transaction: "tx-other", Key: "contract-9", Requester: "z",
			Timestamp: 1, ContractLocation: ring.MustLocation(0.1),
		},
	})
	require.NoError(t, err)
	corrupt(t, path, 1, other)

	out, err := execute(t, "replay", "--db", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
		Error  *ResponseError
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeReplayMismatch, resp.Error.Code)
	require.Len(t, resp.Data.Failures, 1)
	assert.Equal(t, int64(1), resp.Data.Failures[0].Seq)
	assert.Equal(t, "id", resp.Data.Failures[0].Reason)
}

func writeEvent(t *testing.T, ev catalog.Event) string {
	t.Helper()
	b, err := catalog.EncodeEvent(ev)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "event.bin")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func sampleEvent() catalog.Event {
	return &catalog.ContractChange{
		ContractID: "c<1>",
		Change: &catalog.PutRequest{
			Transaction: "tx-4", Key: "c<1>", Requester: "a", Target: "b",
			Timestamp: 3000, ContractLocation: ring.MustLocation(0.25),
		},
	}
}

func TestDecode_File(t *testing.T) {
	path := writeEvent(t, sampleEvent())

	out, err := execute(t, "decode", "--file", path)
	require.NoError(t, err)
	assert.Equal(t,
		`{"change":{"contract_location":"0.25","key":"c<1>","requester":"a","target":"b","timestamp":3000,"transaction":"tx-4","type":"put_request"},"contract_id":"c<1>","kind":"contract_change"}`+"\n",
		out)
}

func TestDecode_StdinJSON(t *testing.T) {
	b, err := catalog.EncodeEvent(sampleEvent())
	require.NoError(t, err)
	id, err := catalog.EventID(sampleEvent())
	require.NoError(t, err)

	buf := &strings.Builder{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(string(b)))
	cmd.SetArgs([]string{"decode", "--file", "-", "--format", "json"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data DecodeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &resp))
	assert.Equal(t, id, resp.Data.ID)
	assert.Equal(t, "contract_change", resp.Data.Kind)
	assert.Equal(t, "put_request", resp.Data.Variant)
}

func TestDecode_InvalidBytes(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"unknown variant", []byte{0x08, 0x07, 0x12, 0x00}, "unknown_variant"},
		{"truncated", []byte{0x08}, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "event.bin")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			out, err := execute(t, "decode", "--file", path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.reason)
			assert.Contains(t, out, "Error [decode_failed]")
		})
	}
}

func TestDecode_MissingFile(t *testing.T) {
	_, err := execute(t, "decode", "--file", filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
