package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ringtrail/internal/ping"
)

// DefaultStart is the clock origin of scenarios without a start time.
var DefaultStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Scenario defines a presence merge scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 clock origin. Defaults to DefaultStart.
	Start string `yaml:"start,omitempty"`

	// Options are the ping contract options shared by every replica, in
	// the same form as a ping options file.
	Options map[string]any `yaml:"options"`

	// Replicas names the replicas to create, each owned by its own peer.
	Replicas []string `yaml:"replicas"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Touch   *TouchStep   `yaml:"touch,omitempty"`
	Deliver *DeliverStep `yaml:"deliver,omitempty"`
	Publish *PublishStep `yaml:"publish,omitempty"`
	Advance string       `yaml:"advance,omitempty"`
}

// Step kinds.
const (
	StepTouch   = "touch"
	StepDeliver = "deliver"
	StepPublish = "publish"
	StepAdvance = "advance"
)

// Kinds returns the kinds set on s.
func (s Step) Kinds() []string {
	var kinds []string
	if s.Touch != nil {
		kinds = append(kinds, StepTouch)
	}
	if s.Deliver != nil {
		kinds = append(kinds, StepDeliver)
	}
	if s.Publish != nil {
		kinds = append(kinds, StepPublish)
	}
	if s.Advance != "" {
		kinds = append(kinds, StepAdvance)
	}
	return kinds
}

// TouchStep stamps Name on Replica at the current time.
type TouchStep struct {
	Replica string `yaml:"replica"`
	Name    string `yaml:"name"`
}

// DeliverStep applies State to replica To as if broadcast by From.
type DeliverStep struct {
	To   string `yaml:"to"`
	From string `yaml:"from"`

	// Transaction defaults to "tx-<step index>".
	Transaction string `yaml:"transaction,omitempty"`

	State map[string]string `yaml:"state"`
}

// PublishStep sends the current state of From to To.
type PublishStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Replica is used by state and contains.
	Replica string `yaml:"replica,omitempty"`

	// Replicas is used by converged. Empty means all replicas.
	Replicas []string `yaml:"replicas,omitempty"`

	// State is the exact expected state (state).
	State map[string]string `yaml:"state,omitempty"`

	// Names are the expected present names (contains) or changed names (delta).
	Names []string `yaml:"names,omitempty"`

	// Absent are names that must not be present (contains).
	Absent []string `yaml:"absent,omitempty"`

	// Step is the step index whose delta is checked (delta).
	Step *int `yaml:"step,omitempty"`

	// Variant and Count are used by event_count.
	Variant string `yaml:"variant,omitempty"`
	Count   int    `yaml:"count,omitempty"`

	// Transaction and Status are used by transaction_status. Targets and
	// Receivers optionally check how many peers the transaction was
	// broadcast to and how many recorded its receipt.
	Transaction string `yaml:"transaction,omitempty"`
	Status      string `yaml:"status,omitempty"`
	Targets     *int   `yaml:"targets,omitempty"`
	Receivers   *int   `yaml:"receivers,omitempty"`
}

// Assertion type constants.
const (
	AssertState             = "state"
	AssertContains          = "contains"
	AssertDelta             = "delta"
	AssertConverged         = "converged"
	AssertEventCount        = "event_count"
	AssertTransactionStatus = "transaction_status"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is invalid.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// StartTime returns the parsed clock origin.
func (s *Scenario) StartTime() (time.Time, error) {
	if s.Start == "" {
		return DefaultStart, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t, nil
}

// PingOptions loads the scenario options through the ping options schema,
// so defaults and validation match a ping options file.
func (s *Scenario) PingOptions() (ping.Options, error) {
	data, err := yaml.Marshal(s.Options)
	if err != nil {
		return ping.Options{}, fmt.Errorf("options: %w", err)
	}
	return ping.LoadOptions(data)
}

// ParseTimestamp parses an RFC 3339 timestamp or a signed duration offset
// from start.
func ParseTimestamp(start time.Time, s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: want RFC 3339 or an offset such as -6s", s)
	}
	return start.Add(d), nil
}

// ParseEntries parses a name to timestamp map.
func ParseEntries(start time.Time, entries map[string]string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(entries))
	for name, raw := range entries {
		ts, err := ParseTimestamp(start, raw)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		out[name] = ts
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	start, err := s.StartTime()
	if err != nil {
		return err
	}
	if _, err := s.PingOptions(); err != nil {
		return err
	}

	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	for i, name := range s.Replicas {
		if name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if slices.Index(s.Replicas, name) != i {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, name)
		}
	}
	known := func(name string) bool { return slices.Contains(s.Replicas, name) }

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step, start, known); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Steps), start, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, start time.Time, known func(string) bool) error {
	kinds := step.Kinds()
	if len(kinds) != 1 {
		return fmt.Errorf("steps[%d]: exactly one of touch, deliver, publish, advance is required, got %v", i, kinds)
	}

	switch kinds[0] {
	case StepTouch:
		if !known(step.Touch.Replica) {
			return fmt.Errorf("steps[%d].touch: unknown replica %q", i, step.Touch.Replica)
		}
		if step.Touch.Name == "" {
			return fmt.Errorf("steps[%d].touch: name is required", i)
		}
	case StepDeliver:
		if !known(step.Deliver.To) {
			return fmt.Errorf("steps[%d].deliver: unknown replica %q", i, step.Deliver.To)
		}
		if step.Deliver.From == "" {
			return fmt.Errorf("steps[%d].deliver: from is required", i)
		}
		if step.Deliver.State == nil {
			return fmt.Errorf("steps[%d].deliver: state is required (use {} for an empty state)", i)
		}
		if _, err := ParseEntries(start, step.Deliver.State); err != nil {
			return fmt.Errorf("steps[%d].deliver: %w", i, err)
		}
	case StepPublish:
		if !known(step.Publish.From) {
			return fmt.Errorf("steps[%d].publish: unknown replica %q", i, step.Publish.From)
		}
		if !known(step.Publish.To) {
			return fmt.Errorf("steps[%d].publish: unknown replica %q", i, step.Publish.To)
		}
		if step.Publish.From == step.Publish.To {
			return fmt.Errorf("steps[%d].publish: a replica cannot publish to itself", i)
		}
	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", i, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d].advance: must be positive, got %s", i, d)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int, start time.Time, known func(string) bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if !known(a.Replica) {
			return fmt.Errorf("assertions[%d]: unknown replica %q for state", index, a.Replica)
		}
		if a.State == nil {
			return fmt.Errorf("assertions[%d]: state is required for state (use {} for an empty state)", index)
		}
		if _, err := ParseEntries(start, a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertContains:
		if !known(a.Replica) {
			return fmt.Errorf("assertions[%d]: unknown replica %q for contains", index, a.Replica)
		}
		if len(a.Names) == 0 && len(a.Absent) == 0 {
			return fmt.Errorf("assertions[%d]: names or absent is required for contains", index)
		}
	case AssertDelta:
		if a.Step == nil {
			return fmt.Errorf("assertions[%d]: step is required for delta", index)
		}
		if *a.Step < 0 || *a.Step >= steps {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
		}
	case AssertConverged:
		for _, r := range a.Replicas {
			if !known(r) {
				return fmt.Errorf("assertions[%d]: unknown replica %q for converged", index, r)
			}
		}
	case AssertEventCount:
		if a.Variant == "" {
			return fmt.Errorf("assertions[%d]: variant is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertTransactionStatus:
		if a.Transaction == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: transaction and status are required for transaction_status", index)
		}
		if (a.Targets != nil && *a.Targets < 0) || (a.Receivers != nil && *a.Receivers < 0) {
			return fmt.Errorf("assertions[%d]: targets and receivers must be non-negative for transaction_status", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
