package journal

import (
	"context"
	"fmt"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// Status is the reconstructed position of a transaction in its lifecycle.
type Status string

const (
	// StatusPending: a request was recorded but no terminal outcome yet.
	StatusPending Status = "pending"
	// StatusSucceeded: PutSuccess or UpdateSuccess was recorded.
	StatusSucceeded Status = "succeeded"
	// StatusFailed: PutFailure or UpdateFailure was recorded.
	StatusFailed Status = "failed"
	// StatusSubscribed: SubscribedToContract was recorded.
	StatusSubscribed Status = "subscribed"
	// StatusObserved: only downstream events (such as broadcast receipts)
	// were recorded by this journal.
	StatusObserved Status = "observed"
)

// TransactionState is what the journal knows about one transaction.
type TransactionState struct {
	Transaction txn.Transaction  `json:"transaction"`
	Contract    ring.ContractKey `json:"contract,omitempty"`
	Request     string           `json:"request,omitempty"`
	Outcome     string           `json:"outcome,omitempty"`
	Status      Status           `json:"status"`

	// BroadcastTargets lists every peer a broadcast was addressed to, across
	// all BroadcastEmitted events; BroadcastReached sums their reach counts.
	BroadcastTargets []string `json:"broadcast_targets"`
	BroadcastReached uint32   `json:"broadcast_reached"`
	Receivers        []string `json:"receivers"`

	Events   int   `json:"events"`
	FirstSeq int64 `json:"first_seq"`
	LastSeq  int64 `json:"last_seq"`
}

// Pending reports whether the transaction awaits a terminal outcome.
func (s TransactionState) Pending() bool {
	return s.Status == StatusPending
}

// TransactionState reconstructs the state of tx from its events.
// Returns ErrNotFound when the journal holds no event of tx.
func (j *Journal) TransactionState(ctx context.Context, tx txn.Transaction) (TransactionState, error) {
	entries, err := j.ReadTransaction(ctx, tx)
	if err != nil {
		return TransactionState{}, err
	}
	if len(entries) == 0 {
		return TransactionState{}, fmt.Errorf("transaction %s: %w", tx, ErrNotFound)
	}
	return Reconstruct(tx, entries)
}

// Reconstruct folds entries, in seq order, into a TransactionState.
func Reconstruct(tx txn.Transaction, entries []Entry) (TransactionState, error) {
	b := &stateBuilder{state: TransactionState{
		Transaction:      tx,
		BroadcastTargets: []string{},
		Receivers:        []string{},
	}}
	for _, e := range entries {
		if b.state.Events == 0 {
			b.state.FirstSeq = e.Seq
		}
		b.state.Events++
		b.state.LastSeq = e.Seq
		if err := catalog.AcceptEvent(e.Event, b); err != nil {
			return TransactionState{}, fmt.Errorf("reconstruct %s at seq %d: %w", tx, e.Seq, err)
		}
	}
	b.finish()
	return b.state, nil
}

// stateBuilder visits each event of one transaction.
type stateBuilder struct {
	state    TransactionState
	terminal Status
}

func (b *stateBuilder) finish() {
	switch {
	case b.terminal != "":
		b.state.Status = b.terminal
	case b.state.Request != "":
		b.state.Status = StatusPending
	default:
		b.state.Status = StatusObserved
	}
}

func (b *stateBuilder) VisitPeerChange(*catalog.PeerChange) error { return nil }

func (b *stateBuilder) VisitControllerResponse(*catalog.ControllerResponse) error { return nil }

func (b *stateBuilder) VisitContractChange(c *catalog.ContractChange) error {
	if b.state.Contract == "" {
		b.state.Contract = c.ContractID
	}
	return c.Accept(b)
}

func (b *stateBuilder) request(c catalog.ContractChangeType) error {
	if b.state.Request == "" {
		b.state.Request = c.Kind()
	}
	return nil
}

func (b *stateBuilder) outcome(c catalog.ContractChangeType, s Status) error {
	b.state.Outcome = c.Kind()
	b.terminal = s
	return nil
}

func (b *stateBuilder) VisitPutRequest(c *catalog.PutRequest) error       { return b.request(c) }
func (b *stateBuilder) VisitUpdateRequest(c *catalog.UpdateRequest) error { return b.request(c) }
func (b *stateBuilder) VisitGetContract(c *catalog.GetContract) error     { return b.request(c) }

func (b *stateBuilder) VisitPutSuccess(c *catalog.PutSuccess) error {
	return b.outcome(c, StatusSucceeded)
}

func (b *stateBuilder) VisitUpdateSuccess(c *catalog.UpdateSuccess) error {
	return b.outcome(c, StatusSucceeded)
}

func (b *stateBuilder) VisitPutFailure(c *catalog.PutFailure) error {
	return b.outcome(c, StatusFailed)
}

func (b *stateBuilder) VisitUpdateFailure(c *catalog.UpdateFailure) error {
	return b.outcome(c, StatusFailed)
}

func (b *stateBuilder) VisitSubscribedToContract(c *catalog.SubscribedToContract) error {
	return b.outcome(c, StatusSubscribed)
}

func (b *stateBuilder) VisitBroadcastEmitted(c *catalog.BroadcastEmitted) error {
	b.state.BroadcastTargets = append(b.state.BroadcastTargets, c.BroadcastTo...)
	b.state.BroadcastReached += c.BroadcastedTo
	return nil
}

func (b *stateBuilder) VisitBroadcastReceived(c *catalog.BroadcastReceived) error {
	b.state.Receivers = append(b.state.Receivers, c.Target)
	return nil
}

// PendingTransactions returns the state of every transaction with a request
// and no terminal outcome, ordered by the seq of its first event.
func (j *Journal) PendingTransactions(ctx context.Context) ([]TransactionState, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT transaction_id
		FROM events
		WHERE variant IN ('put_request', 'update_request', 'get_contract')
		  AND transaction_id IS NOT NULL
		  AND transaction_id NOT IN (
			SELECT transaction_id FROM events
			WHERE transaction_id IS NOT NULL
			  AND variant IN ('put_success', 'put_failure', 'update_success',
			                  'update_failure', 'subscribed_to_contract')
		  )
		GROUP BY transaction_id
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find pending transactions: %w", err)
	}

	var ids []txn.Transaction
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		ids = append(ids, txn.Transaction(id))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate transaction ids: %w", err)
	}
	// Close before the follow-up queries: the pool holds one connection.
	rows.Close()

	states := []TransactionState{}
	for _, id := range ids {
		st, err := j.TransactionState(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
