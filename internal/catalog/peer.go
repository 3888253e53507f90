package catalog

import (
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// PeerChangeType is the sealed union of topology mutations:
// AddedConnection, RemovedConnection and Error.
type PeerChangeType interface {
	Kind() string
	acceptPeer(PeerChangeVisitor) error
}

// PeerChangeVisitor handles every PeerChangeType variant.
type PeerChangeVisitor interface {
	VisitAddedConnection(*AddedConnection) error
	VisitRemovedConnection(*RemovedConnection) error
	VisitError(*Error) error
}

// AddedConnection records a new link between two peers.
// Transaction is optional: connections opened outside any contract operation
// carry none.
type AddedConnection struct {
	Transaction  *txn.Transaction
	From         ring.PeerID
	FromLocation ring.Location
	To           ring.PeerID
	ToLocation   ring.Location
}

func (*AddedConnection) Kind() string { return "added_connection" }

func (c *AddedConnection) acceptPeer(v PeerChangeVisitor) error { return v.VisitAddedConnection(c) }

// Connection returns the link without its transaction.
func (c *AddedConnection) Connection() ring.Connection {
	return ring.Connection{
		From:         c.From,
		FromLocation: c.FromLocation,
		To:           c.To,
		ToLocation:   c.ToLocation,
	}
}

// RemovedConnection records that peer At dropped its link to From.
type RemovedConnection struct {
	At   ring.PeerID
	From ring.PeerID
}

func (*RemovedConnection) Kind() string { return "removed_connection" }

func (c *RemovedConnection) acceptPeer(v PeerChangeVisitor) error { return v.VisitRemovedConnection(c) }

// Error is a free-text failure. It is a variant of both PeerChangeType and
// Response.
type Error struct {
	Message string
}

func (*Error) Kind() string { return "error" }

func (e *Error) acceptPeer(v PeerChangeVisitor) error { return v.VisitError(e) }

func (e *Error) acceptResponse(v ResponseVisitor) error { return v.VisitError(e) }

// PeerChange is a topology event together with the ordered snapshot of every
// connection known when it was emitted. The snapshot is not a diff.
// An empty CurrentState encodes like a nil one and decodes as nil.
type PeerChange struct {
	CurrentState []ring.Connection
	Change       PeerChangeType
}

func (*PeerChange) EventKind() string { return KindPeerChange }

func (p *PeerChange) acceptEvent(v EventVisitor) error { return v.VisitPeerChange(p) }

// Accept dispatches the wrapped change to v.
func (p *PeerChange) Accept(v PeerChangeVisitor) error {
	if p.Change == nil {
		return &UnknownVariantError{Union: "PeerChangeType"}
	}
	return p.Change.acceptPeer(v)
}

// Response is the sealed union carried by ControllerResponse: Error or Ok.
type Response interface {
	Kind() string
	acceptResponse(ResponseVisitor) error
}

// ResponseVisitor handles every Response variant.
type ResponseVisitor interface {
	VisitError(*Error) error
	VisitOk(*Ok) error
}

// Ok acknowledges a controller request. Message is optional.
type Ok struct {
	Message *string
}

func (*Ok) Kind() string { return "ok" }

func (o *Ok) acceptResponse(v ResponseVisitor) error { return v.VisitOk(o) }

// ControllerResponse is the generic reply envelope.
type ControllerResponse struct {
	Response Response
}

func (*ControllerResponse) EventKind() string { return KindControllerResponse }

func (c *ControllerResponse) acceptEvent(v EventVisitor) error { return v.VisitControllerResponse(c) }

// Accept dispatches the wrapped response to v.
func (c *ControllerResponse) Accept(v ResponseVisitor) error {
	if c.Response == nil {
		return &UnknownVariantError{Union: "Response"}
	}
	return c.Response.acceptResponse(v)
}
