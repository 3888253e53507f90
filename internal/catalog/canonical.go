package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ringtrail/internal/ring"
)

// MarshalCanonical renders ev as RFC 8785 style canonical JSON for audit
// output and golden comparison.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. No floats: locations are rendered as decimal strings
//  5. Peer ids are rendered in base58
//  6. Absent optional fields are omitted, never rendered as null
func MarshalCanonical(ev Event) ([]byte, error) {
	obj, err := ToMap(ev)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(obj)
}

// ToMap converts ev into the generic object that MarshalCanonical renders.
func ToMap(ev Event) (map[string]any, error) {
	var m eventMapper
	if err := AcceptEvent(ev, &m); err != nil {
		return nil, err
	}
	return m.out, nil
}

type eventMapper struct {
	out map[string]any
}

func (m *eventMapper) VisitPeerChange(p *PeerChange) error {
	var pm peerMapper
	if err := p.Accept(&pm); err != nil {
		return err
	}
	state := make([]any, len(p.CurrentState))
	for i, c := range p.CurrentState {
		state[i] = connectionMap(c)
	}
	m.out = map[string]any{
		"kind":          KindPeerChange,
		"current_state": state,
		"change":        pm.out,
	}
	return nil
}

func (m *eventMapper) VisitContractChange(c *ContractChange) error {
	var cm contractMapper
	if err := c.Accept(&cm); err != nil {
		return err
	}
	m.out = map[string]any{
		"kind":        KindContractChange,
		"contract_id": string(c.ContractID),
		"change":      cm.out,
	}
	return nil
}

func (m *eventMapper) VisitControllerResponse(c *ControllerResponse) error {
	var rm responseMapper
	if err := c.Accept(&rm); err != nil {
		return err
	}
	m.out = map[string]any{
		"kind":     KindControllerResponse,
		"response": rm.out,
	}
	return nil
}

func connectionMap(c ring.Connection) map[string]any {
	return map[string]any{
		"from":          c.From.String(),
		"from_location": c.FromLocation.String(),
		"to":            c.To.String(),
		"to_location":   c.ToLocation.String(),
	}
}

type peerMapper struct {
	out map[string]any
}

func (m *peerMapper) VisitAddedConnection(c *AddedConnection) error {
	m.out = connectionMap(c.Connection())
	m.out["type"] = c.Kind()
	if c.Transaction != nil {
		m.out["transaction"] = string(*c.Transaction)
	}
	return nil
}

func (m *peerMapper) VisitRemovedConnection(c *RemovedConnection) error {
	m.out = map[string]any{
		"type": c.Kind(),
		"at":   c.At.String(),
		"from": c.From.String(),
	}
	return nil
}

func (m *peerMapper) VisitError(e *Error) error {
	m.out = map[string]any{"type": e.Kind(), "message": e.Message}
	return nil
}

type responseMapper struct {
	out map[string]any
}

func (m *responseMapper) VisitError(e *Error) error {
	m.out = map[string]any{"type": e.Kind(), "message": e.Message}
	return nil
}

func (m *responseMapper) VisitOk(o *Ok) error {
	m.out = map[string]any{"type": o.Kind()}
	if o.Message != nil {
		m.out["message"] = *o.Message
	}
	return nil
}

type contractMapper struct {
	out map[string]any
}

func (m *contractMapper) base(c ContractChangeType, key ring.ContractKey) map[string]any {
	m.out = map[string]any{
		"type":        c.Kind(),
		"transaction": string(c.Tx()),
		"key":         string(key),
		"timestamp":   c.Millis(),
	}
	return m.out
}

func (m *contractMapper) VisitPutRequest(c *PutRequest) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitPutSuccess(c *PutSuccess) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitPutFailure(c *PutFailure) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	return nil
}

func (m *contractMapper) VisitUpdateRequest(c *UpdateRequest) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitUpdateSuccess(c *UpdateSuccess) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitUpdateFailure(c *UpdateFailure) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	return nil
}

func (m *contractMapper) VisitBroadcastEmitted(c *BroadcastEmitted) error {
	o := m.base(c, c.Key)
	o["upstream"], o["sender"] = c.Upstream, c.Sender
	o["contract_location"] = c.ContractLocation.String()
	to := make([]any, len(c.BroadcastTo))
	for i, p := range c.BroadcastTo {
		to[i] = p
	}
	o["broadcast_to"] = to
	o["broadcasted_to"] = uint64(c.BroadcastedTo)
	return nil
}

func (m *contractMapper) VisitBroadcastReceived(c *BroadcastReceived) error {
	o := m.base(c, c.Key)
	o["requester"], o["target"] = c.Requester, c.Target
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitGetContract(c *GetContract) error {
	o := m.base(c, c.Key)
	o["requester"] = c.Requester
	o["contract_location"] = c.ContractLocation.String()
	return nil
}

func (m *contractMapper) VisitSubscribedToContract(c *SubscribedToContract) error {
	o := m.base(c, c.Key)
	o["requester"] = c.Requester
	o["contract_location"] = c.ContractLocation.String()
	o["at_peer"] = c.AtPeer
	o["at_peer_location"] = c.AtPeerLocation.String()
	return nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalCanonicalString(val)
	case uint64:
		return []byte(strconv.FormatUint(val, 10)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case int:
		return []byte(strconv.Itoa(val)), nil
	case bool:
		return []byte(strconv.FormatBool(val)), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		return marshalCanonicalObject(val)
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// RFC 8785 orders by UTF-16 code units, which differs from Go's UTF-8
	// byte order for characters outside the BMP.
	slices.SortFunc(keys, compareKeysRFC8785)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// marshalCanonicalString escapes only quote, backslash and control
// characters. U+2028/U+2029 and HTML characters stay literal.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters, leaving an escaped backslash
// followed by "u2028" untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) {
			if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" &&
				(data[i+5] == '8' || data[i+5] == '9') {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
			// Any other escape pair is copied whole so an escaped backslash
			// never starts a new sequence.
			out = append(out, data[i], data[i+1])
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}
