// Package lifecycle builds catalog events for contract operations and
// topology changes and threads transaction ids through them.
//
// Request methods (PutRequested, UpdateRequested, GetRequested) create a
// transaction. Every downstream method takes that transaction and copies it
// onto its event unmodified.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/eventbus"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// ErrNoTransaction is returned when a downstream event is recorded without
// the transaction of the operation that caused it.
var ErrNoTransaction = errors.New("lifecycle: transaction is required")

// Route names the contract and peers an operation concerns.
// Location is ignored by failure events, which do not carry one.
type Route struct {
	Key       ring.ContractKey
	Requester string
	Target    string
	Location  ring.Location
}

// Broadcast describes a fan-out after a successful update.
type Broadcast struct {
	Key      ring.ContractKey
	Upstream string
	Sender   string
	Location ring.Location
	To       []string
	Reached  uint32
}

// Recorder emits lifecycle and topology events to a sink.
//
// Thread-safety: safe for concurrent use. The connection snapshot is guarded
// by a mutex; emission order across goroutines is not defined.
type Recorder struct {
	gen   txn.Generator
	clock presence.TimeSource
	sink  eventbus.Sink

	mu    sync.Mutex
	conns []ring.Connection
}

// NewRecorder creates a recorder.
func NewRecorder(gen txn.Generator, clock presence.TimeSource, sink eventbus.Sink) *Recorder {
	return &Recorder{gen: gen, clock: clock, sink: sink}
}

func (r *Recorder) now() uint64 {
	return catalog.Millis(r.clock.Now())
}

func (r *Recorder) emitContract(ctx context.Context, key ring.ContractKey, change catalog.ContractChangeType) error {
	ev := &catalog.ContractChange{ContractID: key, Change: change}
	if err := r.sink.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s: %w", change.Kind(), err)
	}
	return nil
}

// PutRequested starts a put and returns its transaction.
func (r *Recorder) PutRequested(ctx context.Context, rt Route) (txn.Transaction, error) {
	tx := r.gen.Generate()
	return tx, r.emitContract(ctx, rt.Key, &catalog.PutRequest{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// UpdateRequested starts an update and returns its transaction.
func (r *Recorder) UpdateRequested(ctx context.Context, rt Route) (txn.Transaction, error) {
	tx := r.gen.Generate()
	return tx, r.emitContract(ctx, rt.Key, &catalog.UpdateRequest{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// GetRequested starts a get (subscribe flow) and returns its transaction.
// Target is not carried by GetContract.
func (r *Recorder) GetRequested(ctx context.Context, rt Route) (txn.Transaction, error) {
	tx := r.gen.Generate()
	return tx, r.emitContract(ctx, rt.Key, &catalog.GetContract{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// PutSucceeded records the terminal success of a put.
func (r *Recorder) PutSucceeded(ctx context.Context, tx txn.Transaction, rt Route) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.PutSuccess{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// PutFailed records the terminal failure of a put.
func (r *Recorder) PutFailed(ctx context.Context, tx txn.Transaction, rt Route) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.PutFailure{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(),
	})
}

// UpdateSucceeded records the terminal success of an update.
func (r *Recorder) UpdateSucceeded(ctx context.Context, tx txn.Transaction, rt Route) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.UpdateSuccess{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// UpdateFailed records the terminal failure of an update.
func (r *Recorder) UpdateFailed(ctx context.Context, tx txn.Transaction, rt Route) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.UpdateFailure{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(),
	})
}

// BroadcastEmitted records a fan-out. b.Reached may be lower than len(b.To);
// partial delivery is not an error.
func (r *Recorder) BroadcastEmitted(ctx context.Context, tx txn.Transaction, b Broadcast) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, b.Key, &catalog.BroadcastEmitted{
		Transaction: tx, Key: b.Key, Upstream: b.Upstream, Sender: b.Sender,
		Timestamp: r.now(), ContractLocation: b.Location,
		BroadcastTo: slices.Clone(b.To), BroadcastedTo: b.Reached,
	})
}

// BroadcastReceived records that rt.Target received a broadcast from
// rt.Requester.
func (r *Recorder) BroadcastReceived(ctx context.Context, tx txn.Transaction, rt Route) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.BroadcastReceived{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester, Target: rt.Target,
		Timestamp: r.now(), ContractLocation: rt.Location,
	})
}

// Subscribed records the terminal subscription of a get.
func (r *Recorder) Subscribed(ctx context.Context, tx txn.Transaction, rt Route, atPeer string, atPeerLocation ring.Location) error {
	if !tx.Valid() {
		return ErrNoTransaction
	}
	return r.emitContract(ctx, rt.Key, &catalog.SubscribedToContract{
		Transaction: tx, Key: rt.Key, Requester: rt.Requester,
		Timestamp: r.now(), ContractLocation: rt.Location,
		AtPeer: atPeer, AtPeerLocation: atPeerLocation,
	})
}

// Connections returns the current connection snapshot.
func (r *Recorder) Connections() []ring.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.conns)
}

// ConnectionAdded adds c to the snapshot and emits AddedConnection with the
// updated snapshot. tx may be nil when the connection was not caused by a
// tracked operation.
func (r *Recorder) ConnectionAdded(ctx context.Context, tx *txn.Transaction, c ring.Connection) error {
	r.mu.Lock()
	idx := slices.IndexFunc(r.conns, func(k ring.Connection) bool {
		return k.From.Equal(c.From) && k.To.Equal(c.To)
	})
	if idx >= 0 {
		r.conns[idx] = c
	} else {
		r.conns = append(r.conns, c)
	}
	snapshot := slices.Clone(r.conns)
	r.mu.Unlock()

	return r.emitPeer(ctx, snapshot, &catalog.AddedConnection{
		Transaction: tx, From: c.From, FromLocation: c.FromLocation,
		To: c.To, ToLocation: c.ToLocation,
	})
}

// ConnectionRemoved drops every connection between at and from, in either
// direction, and emits RemovedConnection with the updated snapshot.
func (r *Recorder) ConnectionRemoved(ctx context.Context, at, from ring.PeerID) error {
	r.mu.Lock()
	r.conns = slices.DeleteFunc(r.conns, func(k ring.Connection) bool {
		return (k.From.Equal(at) && k.To.Equal(from)) || (k.From.Equal(from) && k.To.Equal(at))
	})
	snapshot := slices.Clone(r.conns)
	r.mu.Unlock()

	return r.emitPeer(ctx, snapshot, &catalog.RemovedConnection{At: at, From: from})
}

// TopologyError emits a PeerChange carrying an Error with the current
// snapshot.
func (r *Recorder) TopologyError(ctx context.Context, message string) error {
	return r.emitPeer(ctx, r.Connections(), &catalog.Error{Message: message})
}

func (r *Recorder) emitPeer(ctx context.Context, snapshot []ring.Connection, change catalog.PeerChangeType) error {
	if len(snapshot) == 0 {
		snapshot = nil
	}
	ev := &catalog.PeerChange{CurrentState: snapshot, Change: change}
	if err := r.sink.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s: %w", change.Kind(), err)
	}
	return nil
}
