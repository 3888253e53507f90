package catalog

import (
	"time"

	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// ContractChangeType is the sealed union of contract lifecycle events.
//
// Put/Update follow request -> {Success, Failure}; a success fans out as one
// BroadcastEmitted and one BroadcastReceived per reached peer. Get is followed
// by SubscribedToContract. Intermediate scheduling states are never events:
// a request without a terminal event is pending.
type ContractChangeType interface {
	Kind() string
	// Tx returns the correlating transaction.
	Tx() txn.Transaction
	// Millis returns the event timestamp in unix milliseconds.
	Millis() uint64
	acceptContract(ContractChangeVisitor) error
}

// ContractChangeVisitor handles every ContractChangeType variant.
type ContractChangeVisitor interface {
	VisitPutRequest(*PutRequest) error
	VisitPutSuccess(*PutSuccess) error
	VisitPutFailure(*PutFailure) error
	VisitUpdateRequest(*UpdateRequest) error
	VisitUpdateSuccess(*UpdateSuccess) error
	VisitUpdateFailure(*UpdateFailure) error
	VisitBroadcastEmitted(*BroadcastEmitted) error
	VisitBroadcastReceived(*BroadcastReceived) error
	VisitGetContract(*GetContract) error
	VisitSubscribedToContract(*SubscribedToContract) error
}

// PutRequest is issued by Requester asking Target to store Key.
type PutRequest struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Target           string
	Timestamp        uint64
	ContractLocation ring.Location
}

// PutSuccess is the terminal success of a put.
type PutSuccess struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Target           string
	Timestamp        uint64
	ContractLocation ring.Location
}

// PutFailure is the terminal failure of a put. It carries no location and no
// structured reason; the transaction links it to surrounding events.
type PutFailure struct {
	Transaction txn.Transaction
	Key         ring.ContractKey
	Requester   string
	Target      string
	Timestamp   uint64
}

// UpdateRequest is issued by Requester asking Target to apply an update.
type UpdateRequest struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Target           string
	Timestamp        uint64
	ContractLocation ring.Location
}

// UpdateSuccess is the terminal success of an update.
type UpdateSuccess struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Target           string
	Timestamp        uint64
	ContractLocation ring.Location
}

// UpdateFailure is the terminal failure of an update. Same asymmetry as
// PutFailure.
type UpdateFailure struct {
	Transaction txn.Transaction
	Key         ring.ContractKey
	Requester   string
	Target      string
	Timestamp   uint64
}

// BroadcastEmitted records the fan-out of a successful write.
// BroadcastTo lists targeted peers; BroadcastedTo counts those actually
// reached. They may differ: partial delivery is not an error.
//
// An empty BroadcastTo writes nothing on the wire, so empty and nil encode
// to the same bytes and both decode as nil.
type BroadcastEmitted struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Upstream         string
	Sender           string
	Timestamp        uint64
	ContractLocation ring.Location
	BroadcastTo      []string
	BroadcastedTo    uint32
}

// BroadcastReceived is terminal for one receiving peer (Target).
type BroadcastReceived struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Target           string
	Timestamp        uint64
	ContractLocation ring.Location
}

// GetContract starts the subscribe flow.
type GetContract struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Timestamp        uint64
	ContractLocation ring.Location
}

// SubscribedToContract is terminal for the subscribe flow.
type SubscribedToContract struct {
	Transaction      txn.Transaction
	Key              ring.ContractKey
	Requester        string
	Timestamp        uint64
	ContractLocation ring.Location
	AtPeer           string
	AtPeerLocation   ring.Location
}

func (*PutRequest) Kind() string           { return "put_request" }
func (*PutSuccess) Kind() string           { return "put_success" }
func (*PutFailure) Kind() string           { return "put_failure" }
func (*UpdateRequest) Kind() string        { return "update_request" }
func (*UpdateSuccess) Kind() string        { return "update_success" }
func (*UpdateFailure) Kind() string        { return "update_failure" }
func (*BroadcastEmitted) Kind() string     { return "broadcast_emitted" }
func (*BroadcastReceived) Kind() string    { return "broadcast_received" }
func (*GetContract) Kind() string          { return "get_contract" }
func (*SubscribedToContract) Kind() string { return "subscribed_to_contract" }

func (c *PutRequest) Tx() txn.Transaction           { return c.Transaction }
func (c *PutSuccess) Tx() txn.Transaction           { return c.Transaction }
func (c *PutFailure) Tx() txn.Transaction           { return c.Transaction }
func (c *UpdateRequest) Tx() txn.Transaction        { return c.Transaction }
func (c *UpdateSuccess) Tx() txn.Transaction        { return c.Transaction }
func (c *UpdateFailure) Tx() txn.Transaction        { return c.Transaction }
func (c *BroadcastEmitted) Tx() txn.Transaction     { return c.Transaction }
func (c *BroadcastReceived) Tx() txn.Transaction    { return c.Transaction }
func (c *GetContract) Tx() txn.Transaction          { return c.Transaction }
func (c *SubscribedToContract) Tx() txn.Transaction { return c.Transaction }

func (c *PutRequest) Millis() uint64           { return c.Timestamp }
func (c *PutSuccess) Millis() uint64           { return c.Timestamp }
func (c *PutFailure) Millis() uint64           { return c.Timestamp }
func (c *UpdateRequest) Millis() uint64        { return c.Timestamp }
func (c *UpdateSuccess) Millis() uint64        { return c.Timestamp }
func (c *UpdateFailure) Millis() uint64        { return c.Timestamp }
func (c *BroadcastEmitted) Millis() uint64     { return c.Timestamp }
func (c *BroadcastReceived) Millis() uint64    { return c.Timestamp }
func (c *GetContract) Millis() uint64          { return c.Timestamp }
func (c *SubscribedToContract) Millis() uint64 { return c.Timestamp }

func (c *PutRequest) acceptContract(v ContractChangeVisitor) error    { return v.VisitPutRequest(c) }
func (c *PutSuccess) acceptContract(v ContractChangeVisitor) error    { return v.VisitPutSuccess(c) }
func (c *PutFailure) acceptContract(v ContractChangeVisitor) error    { return v.VisitPutFailure(c) }
func (c *UpdateRequest) acceptContract(v ContractChangeVisitor) error { return v.VisitUpdateRequest(c) }
func (c *UpdateSuccess) acceptContract(v ContractChangeVisitor) error { return v.VisitUpdateSuccess(c) }
func (c *UpdateFailure) acceptContract(v ContractChangeVisitor) error { return v.VisitUpdateFailure(c) }
func (c *BroadcastEmitted) acceptContract(v ContractChangeVisitor) error {
	return v.VisitBroadcastEmitted(c)
}
func (c *BroadcastReceived) acceptContract(v ContractChangeVisitor) error {
	return v.VisitBroadcastReceived(c)
}
func (c *GetContract) acceptContract(v ContractChangeVisitor) error { return v.VisitGetContract(c) }
func (c *SubscribedToContract) acceptContract(v ContractChangeVisitor) error {
	return v.VisitSubscribedToContract(c)
}

// ContractChange tags a lifecycle event with the contract it concerns.
type ContractChange struct {
	ContractID ring.ContractKey
	Change     ContractChangeType
}

func (*ContractChange) EventKind() string { return KindContractChange }

func (c *ContractChange) acceptEvent(v EventVisitor) error { return v.VisitContractChange(c) }

// Accept dispatches the wrapped change to v.
func (c *ContractChange) Accept(v ContractChangeVisitor) error {
	if c.Change == nil {
		return &UnknownVariantError{Union: "ContractChangeType"}
	}
	return c.Change.acceptContract(v)
}

// Millis converts t to the catalog timestamp unit.
func Millis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

// TimeOf converts a catalog timestamp back to UTC time.
func TimeOf(ms uint64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
