// Package ping implements the demonstration presence contract: each replica
// holds a presence.State, stamps its own peer name periodically, and merges
// the state broadcast by other replicas.
package ping

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed options.cue
var optionsSchema string

// Option defaults.
const (
	DefaultTTL       = 5 * time.Second
	DefaultFrequency = time.Second
)

// Options configure one ping contract. Immutable after load.
type Options struct {
	TTL       time.Duration
	Frequency time.Duration
	Tag       string
	CodeKey   string
}

// ConfigError reports an invalid or missing option.
type ConfigError struct {
	Option  string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("ping options: %s", e.Message)
	}
	return fmt.Sprintf("ping option %q: %s", e.Option, e.Message)
}

// LoadOptionsFile reads and loads a YAML options file.
func LoadOptionsFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("read options: %w", err)
	}
	return LoadOptions(data)
}

// LoadOptions decodes YAML options, validates them against the embedded
// schema (which also supplies defaults) and parses the durations.
func LoadOptions(data []byte) (Options, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Options{}, &ConfigError{Message: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(optionsSchema, cue.Filename("options.cue"))
	if err := schema.Err(); err != nil {
		return Options{}, fmt.Errorf("compile options schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Options")).Unify(ctx.Encode(raw))
	if err := v.Validate(); err != nil {
		return Options{}, formatCUEError(err)
	}

	var strs [4]string
	for i, name := range []string{"ttl", "frequency", "tag", "code_key"} {
		f, _ := v.LookupPath(cue.ParsePath(name)).Default()
		if !f.IsConcrete() {
			return Options{}, &ConfigError{Option: name, Message: "required option is missing"}
		}
		s, err := f.String()
		if err != nil {
			return Options{}, formatCUEError(err)
		}
		strs[i] = s
	}

	ttl, err := parseDuration("ttl", strs[0])
	if err != nil {
		return Options{}, err
	}
	freq, err := parseDuration("frequency", strs[1])
	if err != nil {
		return Options{}, err
	}
	return Options{TTL: ttl, Frequency: freq, Tag: strs[2], CodeKey: strs[3]}, nil
}

// Validate checks options built in code rather than loaded from YAML.
func (o Options) Validate() error {
	if o.TTL <= 0 {
		return &ConfigError{Option: "ttl", Message: "must be positive"}
	}
	if o.Frequency <= 0 {
		return &ConfigError{Option: "frequency", Message: "must be positive"}
	}
	if o.Tag == "" {
		return &ConfigError{Option: "tag", Message: "required option is missing"}
	}
	if o.CodeKey == "" {
		return &ConfigError{Option: "code_key", Message: "required option is missing"}
	}
	return nil
}

func parseDuration(option, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &ConfigError{Option: option, Message: err.Error()}
	}
	if d <= 0 {
		return 0, &ConfigError{Option: option, Message: fmt.Sprintf("must be positive, got %s", s)}
	}
	return d, nil
}

// formatCUEError turns the first schema violation into a ConfigError naming
// the offending option.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Message: err.Error()}
	}
	first := errs[0]
	option := ""
	if path := first.Path(); len(path) > 0 {
		option = path[len(path)-1]
	}
	format, args := first.Msg()
	return &ConfigError{Option: option, Message: fmt.Sprintf(format, args...)}
}
