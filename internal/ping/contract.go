package ping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/ringtrail/internal/lifecycle"
	"github.com/roach88/ringtrail/internal/presence"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/telemetry"
	"github.com/roach88/ringtrail/internal/txn"
)

// Delivery is presence state received from another replica inside a
// broadcast.
type Delivery struct {
	Transaction txn.Transaction
	From        string
	State       *presence.State
}

// Update is the state a replica publishes to one target, correlated by the
// update transaction it started.
type Update struct {
	Transaction txn.Transaction
	Key         ring.ContractKey
	From        string
	Target      string
	State       []byte
}

// Delivery decodes u as it is seen by its target.
func (u Update) Delivery() (Delivery, error) {
	st := presence.New()
	if err := json.Unmarshal(u.State, st); err != nil {
		return Delivery{}, err
	}
	return Delivery{Transaction: u.Transaction, From: u.From, State: st}, nil
}

// Contract is one replica of the ping contract.
//
// A Contract has a single logical owner and is not safe for concurrent use;
// the engine package serializes deliveries onto it.
type Contract struct {
	opts  Options
	key   ring.ContractKey
	self  ring.PeerID
	clock presence.TimeSource
	rec   *lifecycle.Recorder
	state *presence.State
}

// NewContract validates opts and creates an empty replica owned by self.
func NewContract(opts Options, clock presence.TimeSource, rec *lifecycle.Recorder, self ring.PeerID) (*Contract, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if self.IsZero() {
		return nil, ring.ErrEmptyPeerID
	}
	return &Contract{
		opts:  opts,
		key:   ring.DeriveContractKey(opts.CodeKey, opts.Tag),
		self:  self,
		clock: clock,
		rec:   rec,
		state: presence.New(),
	}, nil
}

// Key returns the contract key derived from the code key and tag.
func (c *Contract) Key() ring.ContractKey { return c.key }

// Options returns the options the contract was built with.
func (c *Contract) Options() Options { return c.opts }

// Self returns the owning peer.
func (c *Contract) Self() ring.PeerID { return c.self }

// RecordPresence stamps name with the current time.
func (c *Contract) RecordPresence(name string) {
	c.state.Record(name, c.clock.Now())
}

// Apply merges the delivered state and records the broadcast receipt under
// the delivery's transaction. The merge always happens; the returned error
// only reports a failure to record the receipt.
func (c *Contract) Apply(ctx context.Context, in Delivery) (presence.Delta, error) {
	now := c.clock.Now()
	expired := c.state.Prune(c.opts.TTL, now)
	delta := c.state.Merge(in.State, c.opts.TTL, now)
	telemetry.ObserveMerge(delta.Len(), expired, c.state.Len())

	err := c.rec.BroadcastReceived(ctx, in.Transaction, lifecycle.Route{
		Key:       c.key,
		Requester: in.From,
		Target:    c.self.String(),
		Location:  c.key.Location(),
	})
	if err != nil {
		return delta, fmt.Errorf("record broadcast from %s: %w", in.From, err)
	}
	return delta, nil
}

// Publish hands the current state to target. Under one new transaction it
// records the update request, its local success and a broadcast addressed
// to target, then returns the state encoded for delivery. The target
// records the receipt when it applies the update.
func (c *Contract) Publish(ctx context.Context, target string) (Update, error) {
	payload, err := json.Marshal(c.Snapshot())
	if err != nil {
		return Update{}, fmt.Errorf("encode state: %w", err)
	}
	rt := lifecycle.Route{
		Key:       c.key,
		Requester: c.self.String(),
		Target:    target,
		Location:  c.key.Location(),
	}
	tx, err := c.rec.UpdateRequested(ctx, rt)
	if err != nil {
		return Update{}, err
	}
	if err := c.rec.UpdateSucceeded(ctx, tx, rt); err != nil {
		return Update{}, err
	}
	err = c.rec.BroadcastEmitted(ctx, tx, lifecycle.Broadcast{
		Key:      c.key,
		Upstream: c.self.String(),
		Sender:   c.self.String(),
		Location: c.key.Location(),
		To:       []string{target},
		Reached:  1,
	})
	if err != nil {
		return Update{}, err
	}
	return Update{
		Transaction: tx,
		Key:         c.key,
		From:        c.self.String(),
		Target:      target,
		State:       payload,
	}, nil
}

// Snapshot drops expired entries and returns a copy of what remains.
func (c *Contract) Snapshot() *presence.State {
	c.state.Prune(c.opts.TTL, c.clock.Now())
	return c.state.Clone()
}
