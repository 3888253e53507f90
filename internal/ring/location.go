package ring

import (
	"fmt"
	"math"
	"strconv"
)

// Location is a coordinate on the unit ring, always in [0, 1).
type Location float64

// OutOfRangeError reports a location outside [0, 1).
type OutOfRangeError struct {
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("location %v out of range [0, 1)", e.Value)
}

// NewLocation validates f and returns it as a Location.
// NaN and infinities are out of range.
func NewLocation(f float64) (Location, error) {
	if math.IsNaN(f) || f < 0 || f >= 1 {
		return 0, &OutOfRangeError{Value: f}
	}
	return Location(f), nil
}

// MustLocation is like NewLocation but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustLocation(f float64) Location {
	l, err := NewLocation(f)
	if err != nil {
		panic(err)
	}
	return l
}

// Float returns the raw coordinate.
func (l Location) Float() float64 {
	return float64(l)
}

// Distance returns the shortest distance between a and b around the ring.
// The result is in [0, 0.5].
func Distance(a, b Location) float64 {
	d := math.Abs(float64(a) - float64(b))
	return math.Min(d, 1-d)
}

// String returns the shortest decimal form that round-trips.
func (l Location) String() string {
	return strconv.FormatFloat(float64(l), 'g', -1, 64)
}
