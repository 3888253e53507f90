package ring

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/mr-tron/base58"
)

// ErrEmptyContractKey is returned when a contract key is blank.
var ErrEmptyContractKey = errors.New("contract key is empty")

// DomainContractKey separates contract key hashes from other hashes.
const DomainContractKey = "ringtrail/contract-key/v1"

// ContractKey identifies a contract's code and parameters.
type ContractKey string

// NewContractKey validates s as a contract key.
func NewContractKey(s string) (ContractKey, error) {
	if s == "" {
		return "", ErrEmptyContractKey
	}
	return ContractKey(s), nil
}

// DeriveContractKey hashes a code key and its parameters into a contract key.
// The same inputs always yield the same key.
func DeriveContractKey(codeKey, params string) ContractKey {
	h := sha256.New()
	h.Write([]byte(DomainContractKey))
	h.Write([]byte{0x00})
	h.Write([]byte(codeKey))
	h.Write([]byte{0x00})
	h.Write([]byte(params))
	return ContractKey(base58.Encode(h.Sum(nil)))
}

// Location places the key on the ring: the top 53 bits of the key's hash,
// scaled into [0, 1).
func (k ContractKey) Location() Location {
	sum := sha256.Sum256([]byte(k))
	return Location(float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53))
}

// Connection is one known link between two peers, as carried in topology
// snapshots.
type Connection struct {
	From         PeerID
	FromLocation Location
	To           PeerID
	ToLocation   Location
}
