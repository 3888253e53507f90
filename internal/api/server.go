// Package api serves the journal over HTTP for auditing: transaction state,
// per-contract event timelines and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/telemetry"
	"github.com/roach88/ringtrail/internal/txn"
)

// Reader is the journal surface the API reads from.
type Reader interface {
	TransactionState(ctx context.Context, tx txn.Transaction) (journal.TransactionState, error)
	ReadTransaction(ctx context.Context, tx txn.Transaction) ([]journal.Entry, error)
	ReadContract(ctx context.Context, key ring.ContractKey) ([]journal.Entry, error)
	PendingTransactions(ctx context.Context) ([]journal.TransactionState, error)
}

// EventView is one journal entry as served: its canonical JSON form plus
// journal metadata.
type EventView struct {
	ID    string          `json:"id"`
	Seq   int64           `json:"seq"`
	Event json.RawMessage `json:"event"`
}

// TransactionView is the response of GET /transactions/{tx}.
type TransactionView struct {
	State  journal.TransactionState `json:"state"`
	Events []EventView              `json:"events"`
}

type server struct {
	journal Reader
	logger  *slog.Logger
}

// NewServer builds the router.
func NewServer(r Reader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{journal: r, logger: logger}

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())
	router.Method(http.MethodGet, "/transactions/pending",
		telemetry.Instrument("pending", http.HandlerFunc(s.pending)))
	router.Method(http.MethodGet, "/transactions/{tx}",
		telemetry.Instrument("transaction", http.HandlerFunc(s.transaction)))
	router.Method(http.MethodGet, "/contracts/{key}/events",
		telemetry.Instrument("contract_events", http.HandlerFunc(s.contractEvents)))
	return router
}

func (s *server) pending(w http.ResponseWriter, r *http.Request) {
	states, err := s.journal.PendingTransactions(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *server) transaction(w http.ResponseWriter, r *http.Request) {
	tx := txn.Transaction(chi.URLParam(r, "tx"))

	state, err := s.journal.TransactionState(r.Context(), tx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.journal.ReadTransaction(r.Context(), tx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := eventViews(entries)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransactionView{State: state, Events: events})
}

func (s *server) contractEvents(w http.ResponseWriter, r *http.Request) {
	key := ring.ContractKey(chi.URLParam(r, "key"))

	entries, err := s.journal.ReadContract(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := eventViews(entries)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func eventViews(entries []journal.Entry) ([]EventView, error) {
	out := make([]EventView, 0, len(entries))
	for _, e := range entries {
		b, err := catalog.MarshalCanonical(e.Event)
		if err != nil {
			return nil, fmt.Errorf("render event %s: %w", e.ID, err)
		}
		out = append(out, EventView{ID: e.ID, Seq: e.Seq, Event: b})
	}
	return out, nil
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// CheckLoopback rejects listen addresses that are not on a loopback
// interface. An empty host binds every interface and is rejected.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("invalid ip: %q, expecting localhost", host)
	}
	return nil
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("audit API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("audit API stopped")
		return nil
	}
}
