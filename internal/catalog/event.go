package catalog

import "github.com/roach88/ringtrail/internal/txn"

// Event kinds on the stream envelope.
const (
	KindPeerChange         = "peer_change"
	KindContractChange     = "contract_change"
	KindControllerResponse = "controller_response"
)

// Event is the sealed union carried on the event stream: *PeerChange,
// *ContractChange or *ControllerResponse.
type Event interface {
	EventKind() string
	acceptEvent(EventVisitor) error
}

// EventVisitor handles every Event variant.
type EventVisitor interface {
	VisitPeerChange(*PeerChange) error
	VisitContractChange(*ContractChange) error
	VisitControllerResponse(*ControllerResponse) error
}

// AcceptEvent dispatches ev to v.
func AcceptEvent(ev Event, v EventVisitor) error {
	if ev == nil {
		return &UnknownVariantError{Union: "Event"}
	}
	return ev.acceptEvent(v)
}

// Variant returns the innermost variant name of ev, e.g. "put_request" or
// "removed_connection". Empty for a nil union.
func Variant(ev Event) string {
	switch e := ev.(type) {
	case *PeerChange:
		if e.Change != nil {
			return e.Change.Kind()
		}
	case *ContractChange:
		if e.Change != nil {
			return e.Change.Kind()
		}
	case *ControllerResponse:
		if e.Response != nil {
			return e.Response.Kind()
		}
	}
	return ""
}

// TransactionOf returns the transaction ev belongs to, if any.
func TransactionOf(ev Event) (txn.Transaction, bool) {
	switch e := ev.(type) {
	case *ContractChange:
		if e.Change != nil {
			return e.Change.Tx(), true
		}
	case *PeerChange:
		if ac, ok := e.Change.(*AddedConnection); ok && ac.Transaction != nil {
			return *ac.Transaction, true
		}
	}
	return "", false
}
