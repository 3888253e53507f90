package catalog

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/txn"
)

// Union records share one layout: {1: discriminant, 2: payload}.
const (
	unionDiscriminant protowire.Number = 1
	unionPayload      protowire.Number = 2
)

// encoder appends fields in the order they are written. Callers write fields
// in ascending number order so the output is canonical.
// The first error sticks; later writes are no-ops.
type encoder struct {
	record string
	buf    []byte
	err    error
}

func newEncoder(record string) *encoder {
	return &encoder{record: record}
}

func (e *encoder) missing(field string) {
	if e.err == nil {
		e.err = &MissingRequiredFieldError{Record: e.record, Field: field}
	}
}

func (e *encoder) str(num protowire.Number, s string) {
	if e.err != nil {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}

func (e *encoder) optStr(num protowire.Number, s *string) {
	if s != nil {
		e.str(num, *s)
	}
}

func (e *encoder) requiredStr(num protowire.Number, field, s string) {
	if s == "" {
		e.missing(field)
		return
	}
	e.str(num, s)
}

func (e *encoder) transaction(num protowire.Number, tx txn.Transaction) {
	e.requiredStr(num, "transaction", string(tx))
}

func (e *encoder) peer(num protowire.Number, field string, p ring.PeerID) {
	if p.IsZero() {
		e.missing(field)
		return
	}
	if e.err != nil {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, p.Bytes())
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	if e.err != nil {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) location(num protowire.Number, field string, l ring.Location) {
	if e.err != nil {
		return
	}
	if _, err := ring.NewLocation(float64(l)); err != nil {
		e.err = &FieldError{Record: e.record, Field: field, Err: err}
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(float64(l)))
}

func (e *encoder) nested(num protowire.Number, sub []byte, err error) {
	if e.err != nil {
		return
	}
	if err != nil {
		e.err = err
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub)
}

func (e *encoder) finish() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.buf == nil {
		return []byte{}, nil
	}
	return e.buf, nil
}

// encodeUnion wraps an encoded variant payload with its discriminant.
func encodeUnion(union string, disc uint64, payload []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	e := newEncoder(union)
	e.varint(unionDiscriminant, disc)
	e.nested(unionPayload, payload, nil)
	return e.finish()
}

// field is one raw field value as read off the wire.
type field struct {
	typ protowire.Type
	u   uint64
	b   []byte
}

// reader holds the fields of one decoded record. Accessors record the first
// error and return zero values afterwards; callers check err once at the end.
type reader struct {
	record string
	fields map[protowire.Number][]field
	err    error
}

func readRecord(record string, b []byte) (*reader, error) {
	r := &reader{record: record, fields: make(map[protowire.Number][]field)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, &MalformedError{Record: record, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, &MalformedError{Record: record, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		r.fields[num] = append(r.fields[num], f)
	}
	return r, nil
}

// last returns the final occurrence of a singular field, checking its wire type.
func (r *reader) last(num protowire.Number, name string, want protowire.Type, required bool) (field, bool) {
	if r.err != nil {
		return field{}, false
	}
	fs := r.fields[num]
	if len(fs) == 0 {
		if required {
			r.err = &MissingRequiredFieldError{Record: r.record, Field: name}
		}
		return field{}, false
	}
	f := fs[len(fs)-1]
	if f.typ != want {
		r.err = &MalformedError{
			Record: r.record,
			Err:    fmt.Errorf("field %q has wire type %d, want %d", name, f.typ, want),
		}
		return field{}, false
	}
	return f, true
}

func (r *reader) str(num protowire.Number, name string) string {
	f, ok := r.last(num, name, protowire.BytesType, true)
	if !ok {
		return ""
	}
	return string(f.b)
}

func (r *reader) optStr(num protowire.Number, name string) *string {
	f, ok := r.last(num, name, protowire.BytesType, false)
	if !ok {
		return nil
	}
	s := string(f.b)
	return &s
}

func (r *reader) transaction(num protowire.Number) txn.Transaction {
	return txn.Transaction(r.str(num, "transaction"))
}

func (r *reader) optTransaction(num protowire.Number) *txn.Transaction {
	s := r.optStr(num, "transaction")
	if s == nil {
		return nil
	}
	tx := txn.Transaction(*s)
	return &tx
}

func (r *reader) contractKey(num protowire.Number) ring.ContractKey {
	return ring.ContractKey(r.str(num, "key"))
}

func (r *reader) peer(num protowire.Number, name string) ring.PeerID {
	f, ok := r.last(num, name, protowire.BytesType, true)
	if !ok {
		return ring.PeerID{}
	}
	id, err := ring.NewPeerID(f.b)
	if err != nil {
		r.err = &FieldError{Record: r.record, Field: name, Err: err}
		return ring.PeerID{}
	}
	return id
}

func (r *reader) varint(num protowire.Number, name string) uint64 {
	f, ok := r.last(num, name, protowire.VarintType, true)
	if !ok {
		return 0
	}
	return f.u
}

func (r *reader) u32(num protowire.Number, name string) uint32 {
	v := r.varint(num, name)
	if v > math.MaxUint32 {
		if r.err == nil {
			r.err = &FieldError{Record: r.record, Field: name, Err: fmt.Errorf("%d overflows uint32", v)}
		}
		return 0
	}
	return uint32(v)
}

func (r *reader) location(num protowire.Number, name string) ring.Location {
	f, ok := r.last(num, name, protowire.Fixed64Type, true)
	if !ok {
		return 0
	}
	loc, err := ring.NewLocation(math.Float64frombits(f.u))
	if err != nil {
		r.err = &FieldError{Record: r.record, Field: name, Err: err}
		return 0
	}
	return loc
}

func (r *reader) nested(num protowire.Number, name string) []byte {
	f, ok := r.last(num, name, protowire.BytesType, true)
	if !ok {
		return nil
	}
	return f.b
}

// repeatedBytes returns every occurrence of a repeated length-delimited field.
func (r *reader) repeatedBytes(num protowire.Number, name string) [][]byte {
	if r.err != nil {
		return nil
	}
	var out [][]byte
	for _, f := range r.fields[num] {
		if f.typ != protowire.BytesType {
			r.err = &MalformedError{
				Record: r.record,
				Err:    fmt.Errorf("field %q has wire type %d, want %d", name, f.typ, protowire.BytesType),
			}
			return nil
		}
		out = append(out, f.b)
	}
	return out
}

func (r *reader) repeatedStr(num protowire.Number, name string) []string {
	raw := r.repeatedBytes(num, name)
	if raw == nil {
		return nil
	}
	out := make([]string, len(raw))
	for i, b := range raw {
		out[i] = string(b)
	}
	return out
}

// readUnion splits a union record into discriminant and payload.
func readUnion(union string, b []byte) (uint64, []byte, error) {
	r, err := readRecord(union, b)
	if err != nil {
		return 0, nil, err
	}
	disc := r.varint(unionDiscriminant, "discriminant")
	payload := r.nested(unionPayload, "payload")
	if r.err != nil {
		return 0, nil, r.err
	}
	return disc, payload, nil
}
