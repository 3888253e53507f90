package catalog

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/ringtrail/internal/ring"
)

// Discriminants. Values are part of the wire contract and never reused.
const (
	discPeerChange         uint64 = 1
	discContractChange     uint64 = 2
	discControllerResponse uint64 = 3

	discAddedConnection   uint64 = 1
	discRemovedConnection uint64 = 2
	discPeerError         uint64 = 3

	discResponseError uint64 = 1
	discResponseOk    uint64 = 2

	discPutRequest           uint64 = 1
	discPutSuccess           uint64 = 2
	discPutFailure           uint64 = 3
	discUpdateRequest        uint64 = 4
	discUpdateSuccess        uint64 = 5
	discUpdateFailure        uint64 = 6
	discBroadcastEmitted     uint64 = 7
	discBroadcastReceived    uint64 = 8
	discGetContract          uint64 = 9
	discSubscribedToContract uint64 = 10
)

// Field numbers shared by lifecycle records.
const (
	fTransaction      protowire.Number = 1
	fKey              protowire.Number = 2
	fRequester        protowire.Number = 3
	fTarget           protowire.Number = 4
	fTimestamp        protowire.Number = 5
	fContractLocation protowire.Number = 6
)

// BroadcastEmitted reuses 3/4 for upstream/sender; SubscribedToContract adds 7/8.
const (
	fUpstream       protowire.Number = 3
	fSender         protowire.Number = 4
	fBroadcastTo    protowire.Number = 7
	fBroadcastedTo  protowire.Number = 8
	fAtPeer         protowire.Number = 7
	fAtPeerLocation protowire.Number = 8
)

// EncodeEvent produces the wire encoding of the stream envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	var ee eventEncoder
	if err := AcceptEvent(ev, &ee); err != nil {
		return nil, err
	}
	return encodeUnion("Event", ee.disc, ee.out, nil)
}

// EncodePeerChange produces the wire encoding of p.
func EncodePeerChange(p *PeerChange) ([]byte, error) {
	e := newEncoder("PeerChange")
	for _, c := range p.CurrentState {
		sub, err := encodeConnection(c)
		e.nested(1, sub, err)
	}
	var pe peerEncoder
	if err := p.Accept(&pe); err != nil {
		return nil, err
	}
	sub, err := encodeUnion("PeerChangeType", pe.disc, pe.out, pe.err)
	e.nested(2, sub, err)
	return e.finish()
}

// EncodeControllerResponse produces the wire encoding of c.
func EncodeControllerResponse(c *ControllerResponse) ([]byte, error) {
	var re responseEncoder
	if err := c.Accept(&re); err != nil {
		return nil, err
	}
	sub, err := encodeUnion("Response", re.disc, re.out, re.err)
	e := newEncoder("ControllerResponse")
	e.nested(1, sub, err)
	return e.finish()
}

// EncodeContractChange produces the wire encoding of c.
func EncodeContractChange(c *ContractChange) ([]byte, error) {
	var ce contractEncoder
	if err := c.Accept(&ce); err != nil {
		return nil, err
	}
	e := newEncoder("ContractChange")
	e.requiredStr(1, "contract_id", string(c.ContractID))
	sub, err := encodeUnion("ContractChangeType", ce.disc, ce.out, ce.err)
	e.nested(2, sub, err)
	return e.finish()
}

func encodeConnection(c ring.Connection) ([]byte, error) {
	e := newEncoder("Connection")
	e.peer(1, "from", c.From)
	e.location(2, "from_location", c.FromLocation)
	e.peer(3, "to", c.To)
	e.location(4, "to_location", c.ToLocation)
	return e.finish()
}

type eventEncoder struct {
	disc uint64
	out  []byte
}

func (ee *eventEncoder) VisitPeerChange(p *PeerChange) (err error) {
	ee.disc = discPeerChange
	ee.out, err = EncodePeerChange(p)
	return err
}

func (ee *eventEncoder) VisitContractChange(c *ContractChange) (err error) {
	ee.disc = discContractChange
	ee.out, err = EncodeContractChange(c)
	return err
}

func (ee *eventEncoder) VisitControllerResponse(c *ControllerResponse) (err error) {
	ee.disc = discControllerResponse
	ee.out, err = EncodeControllerResponse(c)
	return err
}

// peerEncoder and friends record the first error in err rather than
// returning it, so the union wrapper reports it with the right context.
type peerEncoder struct {
	disc uint64
	out  []byte
	err  error
}

func (pe *peerEncoder) VisitAddedConnection(c *AddedConnection) error {
	e := newEncoder("AddedConnection")
	if c.Transaction != nil {
		e.transaction(1, *c.Transaction)
	}
	e.peer(2, "from", c.From)
	e.location(3, "from_location", c.FromLocation)
	e.peer(4, "to", c.To)
	e.location(5, "to_location", c.ToLocation)
	pe.disc = discAddedConnection
	pe.out, pe.err = e.finish()
	return nil
}

func (pe *peerEncoder) VisitRemovedConnection(c *RemovedConnection) error {
	e := newEncoder("RemovedConnection")
	e.peer(1, "at", c.At)
	e.peer(2, "from", c.From)
	pe.disc = discRemovedConnection
	pe.out, pe.err = e.finish()
	return nil
}

func (pe *peerEncoder) VisitError(er *Error) error {
	pe.disc = discPeerError
	pe.out, pe.err = encodeError(er)
	return nil
}

func encodeError(er *Error) ([]byte, error) {
	e := newEncoder("Error")
	e.str(1, er.Message)
	return e.finish()
}

type responseEncoder struct {
	disc uint64
	out  []byte
	err  error
}

func (re *responseEncoder) VisitError(er *Error) error {
	re.disc = discResponseError
	re.out, re.err = encodeError(er)
	return nil
}

func (re *responseEncoder) VisitOk(o *Ok) error {
	e := newEncoder("Ok")
	e.optStr(1, o.Message)
	re.disc = discResponseOk
	re.out, re.err = e.finish()
	return nil
}

type contractEncoder struct {
	disc uint64
	out  []byte
	err  error
}

func (ce *contractEncoder) set(disc uint64, e *encoder) error {
	ce.disc = disc
	ce.out, ce.err = e.finish()
	return nil
}

// header writes the fields every lifecycle record starts with.
func header(record string, tx string, key ring.ContractKey) *encoder {
	e := newEncoder(record)
	e.requiredStr(fTransaction, "transaction", tx)
	e.requiredStr(fKey, "key", string(key))
	return e
}

func (ce *contractEncoder) VisitPutRequest(c *PutRequest) error {
	e := header("PutRequest", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discPutRequest, e)
}

func (ce *contractEncoder) VisitPutSuccess(c *PutSuccess) error {
	e := header("PutSuccess", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discPutSuccess, e)
}

func (ce *contractEncoder) VisitPutFailure(c *PutFailure) error {
	e := header("PutFailure", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	return ce.set(discPutFailure, e)
}

func (ce *contractEncoder) VisitUpdateRequest(c *UpdateRequest) error {
	e := header("UpdateRequest", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discUpdateRequest, e)
}

func (ce *contractEncoder) VisitUpdateSuccess(c *UpdateSuccess) error {
	e := header("UpdateSuccess", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discUpdateSuccess, e)
}

func (ce *contractEncoder) VisitUpdateFailure(c *UpdateFailure) error {
	e := header("UpdateFailure", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	return ce.set(discUpdateFailure, e)
}

func (ce *contractEncoder) VisitBroadcastEmitted(c *BroadcastEmitted) error {
	e := header("BroadcastEmitted", string(c.Transaction), c.Key)
	e.requiredStr(fUpstream, "upstream", c.Upstream)
	e.requiredStr(fSender, "sender", c.Sender)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	for _, p := range c.BroadcastTo {
		e.str(fBroadcastTo, p)
	}
	e.varint(fBroadcastedTo, uint64(c.BroadcastedTo))
	return ce.set(discBroadcastEmitted, e)
}

func (ce *contractEncoder) VisitBroadcastReceived(c *BroadcastReceived) error {
	e := header("BroadcastReceived", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.requiredStr(fTarget, "target", c.Target)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discBroadcastReceived, e)
}

func (ce *contractEncoder) VisitGetContract(c *GetContract) error {
	e := header("GetContract", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	return ce.set(discGetContract, e)
}

func (ce *contractEncoder) VisitSubscribedToContract(c *SubscribedToContract) error {
	e := header("SubscribedToContract", string(c.Transaction), c.Key)
	e.requiredStr(fRequester, "requester", c.Requester)
	e.varint(fTimestamp, c.Timestamp)
	e.location(fContractLocation, "contract_location", c.ContractLocation)
	e.requiredStr(fAtPeer, "at_peer", c.AtPeer)
	e.location(fAtPeerLocation, "at_peer_location", c.AtPeerLocation)
	return ce.set(discSubscribedToContract, e)
}
