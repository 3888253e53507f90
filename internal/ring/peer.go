package ring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrEmptyPeerID is returned when a peer id has no bytes.
var ErrEmptyPeerID = errors.New("peer id is empty")

// PeerID is an opaque byte identifier for a network peer.
// The bytes are held in a string so the value is immutable and comparable.
type PeerID struct {
	b string
}

// NewPeerID copies b into a PeerID.
func NewPeerID(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return PeerID{}, ErrEmptyPeerID
	}
	return PeerID{b: string(b)}, nil
}

// MustPeerID is like NewPeerID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPeerID(b []byte) PeerID {
	id, err := NewPeerID(b)
	if err != nil {
		panic(err)
	}
	return id
}

// ParsePeerID decodes the base58 text form produced by String.
func ParsePeerID(s string) (PeerID, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("parse peer id %q: %w", s, err)
	}
	return NewPeerID(b)
}

// Bytes returns a copy of the identifier bytes.
func (p PeerID) Bytes() []byte {
	return []byte(p.b)
}

// IsZero reports whether p was never assigned.
func (p PeerID) IsZero() bool {
	return p.b == ""
}

// Equal reports whether p and o identify the same peer.
func (p PeerID) Equal(o PeerID) bool {
	return p.b == o.b
}

// Compare orders peer ids by their raw bytes.
func (p PeerID) Compare(o PeerID) int {
	return strings.Compare(p.b, o.b)
}

// String renders the id in base58.
func (p PeerID) String() string {
	if p.b == "" {
		return ""
	}
	return base58.Encode([]byte(p.b))
}
