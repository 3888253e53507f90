package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/lifecycle"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/testutil"
	"github.com/roach88/ringtrail/internal/txn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	clock := testutil.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := lifecycle.NewRecorder(txn.NewFixedGenerator("tx-done", "tx-open"), clock, j)
	route := lifecycle.Route{Key: "contract-1", Requester: "a", Target: "b", Location: ring.MustLocation(0.5)}

	done, err := rec.PutRequested(ctx, route)
	require.NoError(t, err)
	require.NoError(t, rec.PutSucceeded(ctx, done, route))
	_, err = rec.UpdateRequested(ctx, route)
	require.NoError(t, err)

	return NewServer(j, testLogger())
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTransaction(t *testing.T) {
	rec := get(t, newTestServer(t), "/transactions/tx-done")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var view TransactionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, journal.StatusSucceeded, view.State.Status)
	assert.Equal(t, "put_request", view.State.Request)
	require.Len(t, view.Events, 2)
	assert.Equal(t, int64(1), view.Events[0].Seq)

	var first map[string]any
	require.NoError(t, json.Unmarshal(view.Events[0].Event, &first))
	assert.Equal(t, "contract_change", first["kind"])
	change := first["change"].(map[string]any)
	assert.Equal(t, "put_request", change["type"])
	assert.Equal(t, "tx-done", change["transaction"])
}

func TestTransaction_NotFound(t *testing.T) {
	rec := get(t, newTestServer(t), "/transactions/tx-missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestPending(t *testing.T) {
	rec := get(t, newTestServer(t), "/transactions/pending")
	require.Equal(t, http.StatusOK, rec.Code)

	var states []journal.TransactionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, txn.Transaction("tx-open"), states[0].Transaction)
	assert.Equal(t, journal.StatusPending, states[0].Status)
}

func TestContractEvents(t *testing.T) {
	h := newTestServer(t)

	rec := get(t, h, "/contracts/contract-1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []EventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 3)

	rec = get(t, h, "/contracts/unknown/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t)
	get(t, h, "/transactions/tx-done")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ringtrail_requests_total{op="transaction",status="2xx"}`)
}

type failingReader struct{ Reader }

func (failingReader) PendingTransactions(context.Context) ([]journal.TransactionState, error) {
	return nil, errors.New("disk on fire")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	rec := get(t, NewServer(failingReader{}, testLogger()), "/transactions/pending")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestCheckLoopback(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:8080", "localhost:80", "[::1]:9000"} {
		assert.NoError(t, CheckLoopback(addr), addr)
	}
	for _, addr := range []string{":8080", "0.0.0.0:8080", "10.1.2.3:80", "example.com:80", "nonsense"} {
		assert.Error(t, CheckLoopback(addr), addr)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), testLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
