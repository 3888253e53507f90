package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DomainEvent separates event ids from any other hash over the same bytes.
// The version suffix allows a later algorithm migration.
const DomainEvent = "ringtrail/event/v1"

// DomainEmission separates ids of sequenced emissions from content ids.
const DomainEmission = "ringtrail/emission/v1"

// EventID computes the content-addressed id of ev:
// SHA256(domain + 0x00 + wire encoding), hex encoded.
//
// The wire encoding is deterministic, so re-delivering the same event yields
// the same id.
func EventID(ev Event) (string, error) {
	b, err := EncodeEvent(ev)
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}
	return IDOf(b), nil
}

// IDOf computes the event id of an already encoded envelope.
func IDOf(encoded []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainEvent))
	h.Write([]byte{0x00})
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentAddressed reports whether ev is identified by its bytes alone.
//
// Contract changes carry a transaction and a timestamp, so equal bytes are
// the same event. Peer changes and controller responses carry neither: two
// equal encodings are two separate occurrences.
func ContentAddressed(ev Event) bool {
	_, ok := ev.(*ContractChange)
	return ok
}

// RecordID returns the id of ev stored at position seq. Content-addressed
// events get IDOf(encoded) regardless of seq; any other event gets
// SHA256(emission domain + 0x00 + seq (big endian) + wire encoding).
func RecordID(ev Event, encoded []byte, seq int64) string {
	if ContentAddressed(ev) {
		return IDOf(encoded)
	}
	h := sha256.New()
	h.Write([]byte(DomainEmission))
	h.Write([]byte{0x00})
	h.Write(binary.BigEndian.AppendUint64(nil, uint64(seq)))
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil))
}
