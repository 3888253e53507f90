package ring

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocation_Range(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		ok    bool
	}{
		{"zero", 0.0, true},
		{"middle", 0.5, true},
		{"just below one", math.Nextafter(1, 0), true},
		{"one", 1.0, false},
		{"negative", -0.0001, false},
		{"above", 1.5, false},
		{"nan", math.NaN(), false},
		{"inf", math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := NewLocation(tt.value)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.value, loc.Float())
				return
			}
			var oor *OutOfRangeError
			require.True(t, errors.As(err, &oor), "expected OutOfRangeError, got %v", err)
		})
	}
}

func TestDistance_WrapsAroundRing(t *testing.T) {
	assert.InDelta(t, 0.2, Distance(MustLocation(0.9), MustLocation(0.1)), 1e-12)
	assert.InDelta(t, 0.25, Distance(MustLocation(0.25), MustLocation(0.5)), 1e-12)
	assert.Equal(t, 0.0, Distance(MustLocation(0.3), MustLocation(0.3)))
}

func TestPeerID_Base58RoundTrip(t *testing.T) {
	id := MustPeerID([]byte{0x01, 0x02, 0xfe, 0xff})

	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))
	assert.Equal(t, 0, id.Compare(parsed))
}

func TestPeerID_Immutable(t *testing.T) {
	raw := []byte("peer-a")
	id := MustPeerID(raw)
	raw[0] = 'X'

	assert.Equal(t, []byte("peer-a"), id.Bytes())

	out := id.Bytes()
	out[0] = 'Y'
	assert.Equal(t, []byte("peer-a"), id.Bytes())
}

func TestPeerID_Empty(t *testing.T) {
	_, err := NewPeerID(nil)
	assert.ErrorIs(t, err, ErrEmptyPeerID)

	var zero PeerID
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.String())
}

func TestNewContractKey(t *testing.T) {
	_, err := NewContractKey("")
	assert.ErrorIs(t, err, ErrEmptyContractKey)

	k, err := NewContractKey("ping-abc")
	require.NoError(t, err)
	assert.Equal(t, ContractKey("ping-abc"), k)
}

func TestDeriveContractKey(t *testing.T) {
	a := DeriveContractKey("code", "tag-1")
	assert.Equal(t, a, DeriveContractKey("code", "tag-1"))
	assert.NotEqual(t, a, DeriveContractKey("code", "tag-2"))
	assert.NotEqual(t, DeriveContractKey("ab", "c"), DeriveContractKey("a", "bc"))
}

func TestContractKey_Location(t *testing.T) {
	for _, k := range []ContractKey{"", "a", DeriveContractKey("code", "tag")} {
		loc := k.Location()
		_, err := NewLocation(loc.Float())
		assert.NoError(t, err, "key %q", k)
		assert.Equal(t, loc, k.Location())
	}
}
