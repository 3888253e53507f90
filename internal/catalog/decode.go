package catalog

import (
	"github.com/roach88/ringtrail/internal/ring"
)

// DecodeEvent decodes the stream envelope written by EncodeEvent.
func DecodeEvent(b []byte) (Event, error) {
	disc, payload, err := readUnion("Event", b)
	if err != nil {
		return nil, err
	}
	switch disc {
	case discPeerChange:
		return DecodePeerChange(payload)
	case discContractChange:
		return DecodeContractChange(payload)
	case discControllerResponse:
		return DecodeControllerResponse(payload)
	default:
		return nil, &UnknownVariantError{Union: "Event", Discriminant: disc}
	}
}

// DecodePeerChange decodes a PeerChange record.
func DecodePeerChange(b []byte) (*PeerChange, error) {
	r, err := readRecord("PeerChange", b)
	if err != nil {
		return nil, err
	}
	rawConns := r.repeatedBytes(1, "current_state")
	rawChange := r.nested(2, "change")
	if r.err != nil {
		return nil, r.err
	}

	p := &PeerChange{}
	if len(rawConns) > 0 {
		p.CurrentState = make([]ring.Connection, 0, len(rawConns))
	}
	for _, raw := range rawConns {
		c, err := decodeConnection(raw)
		if err != nil {
			return nil, err
		}
		p.CurrentState = append(p.CurrentState, c)
	}

	p.Change, err = decodePeerChangeType(rawChange)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeConnection(b []byte) (ring.Connection, error) {
	r, err := readRecord("Connection", b)
	if err != nil {
		return ring.Connection{}, err
	}
	c := ring.Connection{
		From:         r.peer(1, "from"),
		FromLocation: r.location(2, "from_location"),
		To:           r.peer(3, "to"),
		ToLocation:   r.location(4, "to_location"),
	}
	return c, r.err
}

func decodePeerChangeType(b []byte) (PeerChangeType, error) {
	disc, payload, err := readUnion("PeerChangeType", b)
	if err != nil {
		return nil, err
	}
	switch disc {
	case discAddedConnection:
		r, err := readRecord("AddedConnection", payload)
		if err != nil {
			return nil, err
		}
		c := &AddedConnection{
			Transaction:  r.optTransaction(1),
			From:         r.peer(2, "from"),
			FromLocation: r.location(3, "from_location"),
			To:           r.peer(4, "to"),
			ToLocation:   r.location(5, "to_location"),
		}
		return finishPeer(c, r)
	case discRemovedConnection:
		r, err := readRecord("RemovedConnection", payload)
		if err != nil {
			return nil, err
		}
		c := &RemovedConnection{
			At:   r.peer(1, "at"),
			From: r.peer(2, "from"),
		}
		return finishPeer(c, r)
	case discPeerError:
		return decodeError(payload)
	default:
		return nil, &UnknownVariantError{Union: "PeerChangeType", Discriminant: disc}
	}
}

func finishPeer(c PeerChangeType, r *reader) (PeerChangeType, error) {
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func decodeError(b []byte) (*Error, error) {
	r, err := readRecord("Error", b)
	if err != nil {
		return nil, err
	}
	e := &Error{Message: r.str(1, "message")}
	if r.err != nil {
		return nil, r.err
	}
	return e, nil
}

// DecodeControllerResponse decodes a ControllerResponse record.
func DecodeControllerResponse(b []byte) (*ControllerResponse, error) {
	r, err := readRecord("ControllerResponse", b)
	if err != nil {
		return nil, err
	}
	raw := r.nested(1, "response")
	if r.err != nil {
		return nil, r.err
	}

	disc, payload, err := readUnion("Response", raw)
	if err != nil {
		return nil, err
	}
	switch disc {
	case discResponseError:
		e, err := decodeError(payload)
		if err != nil {
			return nil, err
		}
		return &ControllerResponse{Response: e}, nil
	case discResponseOk:
		r, err := readRecord("Ok", payload)
		if err != nil {
			return nil, err
		}
		ok := &Ok{Message: r.optStr(1, "message")}
		if r.err != nil {
			return nil, r.err
		}
		return &ControllerResponse{Response: ok}, nil
	default:
		return nil, &UnknownVariantError{Union: "Response", Discriminant: disc}
	}
}

// DecodeContractChange decodes a ContractChange record.
func DecodeContractChange(b []byte) (*ContractChange, error) {
	r, err := readRecord("ContractChange", b)
	if err != nil {
		return nil, err
	}
	id := r.str(1, "contract_id")
	raw := r.nested(2, "change")
	if r.err != nil {
		return nil, r.err
	}

	change, err := decodeContractChangeType(raw)
	if err != nil {
		return nil, err
	}
	return &ContractChange{ContractID: ring.ContractKey(id), Change: change}, nil
}

// contractDecoders maps each lifecycle discriminant to its record decoder.
var contractDecoders = map[uint64]func(*reader) ContractChangeType{
	discPutRequest: func(r *reader) ContractChangeType {
		return &PutRequest{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Target:           r.str(fTarget, "target"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discPutSuccess: func(r *reader) ContractChangeType {
		return &PutSuccess{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Target:           r.str(fTarget, "target"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discPutFailure: func(r *reader) ContractChangeType {
		return &PutFailure{
			Transaction: r.transaction(fTransaction),
			Key:         r.contractKey(fKey),
			Requester:   r.str(fRequester, "requester"),
			Target:      r.str(fTarget, "target"),
			Timestamp:   r.varint(fTimestamp, "timestamp"),
		}
	},
	discUpdateRequest: func(r *reader) ContractChangeType {
		return &UpdateRequest{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Target:           r.str(fTarget, "target"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discUpdateSuccess: func(r *reader) ContractChangeType {
		return &UpdateSuccess{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Target:           r.str(fTarget, "target"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discUpdateFailure: func(r *reader) ContractChangeType {
		return &UpdateFailure{
			Transaction: r.transaction(fTransaction),
			Key:         r.contractKey(fKey),
			Requester:   r.str(fRequester, "requester"),
			Target:      r.str(fTarget, "target"),
			Timestamp:   r.varint(fTimestamp, "timestamp"),
		}
	},
	discBroadcastEmitted: func(r *reader) ContractChangeType {
		return &BroadcastEmitted{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Upstream:         r.str(fUpstream, "upstream"),
			Sender:           r.str(fSender, "sender"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
			BroadcastTo:      r.repeatedStr(fBroadcastTo, "broadcast_to"),
			BroadcastedTo:    r.u32(fBroadcastedTo, "broadcasted_to"),
		}
	},
	discBroadcastReceived: func(r *reader) ContractChangeType {
		return &BroadcastReceived{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Target:           r.str(fTarget, "target"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discGetContract: func(r *reader) ContractChangeType {
		return &GetContract{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
		}
	},
	discSubscribedToContract: func(r *reader) ContractChangeType {
		return &SubscribedToContract{
			Transaction:      r.transaction(fTransaction),
			Key:              r.contractKey(fKey),
			Requester:        r.str(fRequester, "requester"),
			Timestamp:        r.varint(fTimestamp, "timestamp"),
			ContractLocation: r.location(fContractLocation, "contract_location"),
			AtPeer:           r.str(fAtPeer, "at_peer"),
			AtPeerLocation:   r.location(fAtPeerLocation, "at_peer_location"),
		}
	},
}

// contractRecordNames names each lifecycle record for error messages.
var contractRecordNames = map[uint64]string{
	discPutRequest:           "PutRequest",
	discPutSuccess:           "PutSuccess",
	discPutFailure:           "PutFailure",
	discUpdateRequest:        "UpdateRequest",
	discUpdateSuccess:        "UpdateSuccess",
	discUpdateFailure:        "UpdateFailure",
	discBroadcastEmitted:     "BroadcastEmitted",
	discBroadcastReceived:    "BroadcastReceived",
	discGetContract:          "GetContract",
	discSubscribedToContract: "SubscribedToContract",
}

func decodeContractChangeType(b []byte) (ContractChangeType, error) {
	disc, payload, err := readUnion("ContractChangeType", b)
	if err != nil {
		return nil, err
	}
	decode, ok := contractDecoders[disc]
	if !ok {
		return nil, &UnknownVariantError{Union: "ContractChangeType", Discriminant: disc}
	}
	r, err := readRecord(contractRecordNames[disc], payload)
	if err != nil {
		return nil, err
	}
	change := decode(r)
	if r.err != nil {
		return nil, r.err
	}
	return change, nil
}
