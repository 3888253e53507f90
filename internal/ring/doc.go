// Package ring provides the identity vocabulary shared by every other package:
// peer identifiers, ring locations and contract keys.
//
// This package contains value types only. It imports nothing internal so that
// catalog, presence and journal can all depend on it without cycles.
//
// Key constraints:
//   - Location is always in [0, 1); construction rejects anything else
//   - PeerID is immutable once assigned (backed by a string, never a shared slice)
//   - Peer ids render as base58 wherever they appear as text
package ring
