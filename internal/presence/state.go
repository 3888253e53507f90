package presence

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"
)

// State is a set of peer names with their last-seen timestamps.
//
// The zero value is an empty state ready to use; New is shorthand for it.
// The underlying map is never handed out: Record, Merge and Prune are the
// only mutation paths.
type State struct {
	seen map[string]time.Time
}

// New returns an empty state.
func New() *State {
	return &State{seen: make(map[string]time.Time)}
}

// FromMap builds a state holding a copy of entries.
func FromMap(entries map[string]time.Time) *State {
	s := New()
	for name, at := range entries {
		s.seen[name] = at
	}
	return s
}

// Record sets the last-seen time for name, overwriting any previous value.
// No expiry happens here.
func (s *State) Record(name string, at time.Time) {
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	s.seen[name] = at
}

// Merge folds other into s and returns the entries of s that changed.
//
// Incoming entries older than ttl at now are ignored. Any other incoming
// entry replaces the local one when the local is absent or strictly older;
// on equal timestamps the local entry is kept. After all incoming entries are
// processed, every local entry older than ttl at now is removed. Removals by
// expiry are never reported in the delta.
func (s *State) Merge(other *State, ttl time.Duration, now time.Time) Delta {
	delta := make(Delta)
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	if other != nil {
		for name, ts := range other.seen {
			if expired(ts, ttl, now) {
				continue
			}
			if local, ok := s.seen[name]; ok && !local.Before(ts) {
				continue
			}
			s.seen[name] = ts
			delta[name] = ts
		}
	}
	s.Prune(ttl, now)
	return delta
}

// Prune removes entries older than ttl at now and returns how many were
// removed.
func (s *State) Prune(ttl time.Duration, now time.Time) int {
	removed := 0
	for name, ts := range s.seen {
		if expired(ts, ttl, now) {
			delete(s.seen, name)
			removed++
		}
	}
	return removed
}

// expired reports whether an entry stamped ts has age > ttl at now.
func expired(ts time.Time, ttl time.Duration, now time.Time) bool {
	return now.After(ts.Add(ttl))
}

// Len returns the number of entries.
func (s *State) Len() int { return len(s.seen) }

// Contains reports whether name has an entry.
func (s *State) Contains(name string) bool {
	_, ok := s.seen[name]
	return ok
}

// Get returns the last-seen time for name.
func (s *State) Get(name string) (time.Time, bool) {
	ts, ok := s.seen[name]
	return ts, ok
}

// Names returns the entry names in ascending order.
func (s *State) Names() []string {
	return slices.Sorted(maps.Keys(s.seen))
}

// All yields every entry in ascending name order.
func (s *State) All() iter.Seq2[string, time.Time] {
	return func(yield func(string, time.Time) bool) {
		for _, name := range s.Names() {
			if !yield(name, s.seen[name]) {
				return
			}
		}
	}
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	return &State{seen: maps.Clone(s.seen)}
}

// Equal reports whether s and o hold the same names with equal timestamps.
// A nil state equals an empty one.
func (s *State) Equal(o *State) bool {
	var a, b map[string]time.Time
	if s != nil {
		a = s.seen
	}
	if o != nil {
		b = o.seen
	}
	return maps.EqualFunc(a, b, time.Time.Equal)
}

// Render writes one "name: timestamp" line per entry, sorted by name.
func (s *State) Render(w io.Writer) error {
	for name, ts := range s.All() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", name, ts.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

// String returns the Render output.
func (s *State) String() string {
	var b strings.Builder
	_ = s.Render(&b)
	return b.String()
}

// MarshalJSON encodes the state as an object of RFC 3339 timestamps.
func (s *State) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(s.seen))
	for name, ts := range s.seen {
		out[name] = ts.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the contents of s with the decoded object.
func (s *State) UnmarshalJSON(b []byte) error {
	var in map[string]string
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("decode presence state: %w", err)
	}
	seen := make(map[string]time.Time, len(in))
	for name, raw := range in {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("decode presence state: entry %q: %w", name, err)
		}
		seen[name] = ts
	}
	s.seen = seen
	return nil
}

// Delta holds the entries changed by one Merge call. It is owned by the
// caller.
type Delta map[string]time.Time

// Len returns the number of changed entries.
func (d Delta) Len() int { return len(d) }

// Names returns the changed names in ascending order.
func (d Delta) Names() []string {
	return slices.Sorted(maps.Keys(d))
}
