package ping

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions_Defaults(t *testing.T) {
	opts, err := LoadOptions([]byte("tag: lobby\ncode_key: abc\n"))
	require.NoError(t, err)
	assert.Equal(t, Options{TTL: DefaultTTL, Frequency: DefaultFrequency, Tag: "lobby", CodeKey: "abc"}, opts)
}

func TestLoadOptionsFile(t *testing.T) {
	opts, err := LoadOptionsFile(filepath.Join("testdata", "ping.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, opts.TTL)
	assert.Equal(t, 2*time.Second, opts.Frequency)
	assert.Equal(t, "lobby", opts.Tag)
	assert.Equal(t, "7Xk2hQ9dmP4vYqL3", opts.CodeKey)

	_, err = LoadOptionsFile(filepath.Join("testdata", "missing.yaml"))
	assert.ErrorContains(t, err, "read options")
}

func TestLoadOptions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		option  string
		message string
	}{
		{"missing tag", "code_key: abc\n", "tag", "required option is missing"},
		{"missing code key", "tag: lobby\n", "code_key", "required option is missing"},
		{"empty document", "", "tag", "required option is missing"},
		{"malformed ttl", "ttl: five seconds\ntag: a\ncode_key: b\n", "ttl", "invalid duration"},
		{"malformed frequency", "frequency: 1x\ntag: a\ncode_key: b\n", "frequency", "unknown unit"},
		{"zero ttl", "ttl: 0s\ntag: a\ncode_key: b\n", "ttl", "must be positive"},
		{"negative frequency", "frequency: -1s\ntag: a\ncode_key: b\n", "frequency", "must be positive"},
		{"empty tag", "tag: \"\"\ncode_key: b\n", "tag", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOptions([]byte(tt.yaml))
			var cfg *ConfigError
			require.True(t, errors.As(err, &cfg), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.option, cfg.Option)
			assert.Contains(t, cfg.Message, tt.message)
		})
	}
}

func TestLoadOptions_RejectsSchemaViolations(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown option": "tag: a\ncode_key: b\nretries: 3\n",
		"numeric ttl":    "ttl: 5\ntag: a\ncode_key: b\n",
		"not a mapping":  "- tag\n- code_key\n",
		"invalid yaml":   "tag: [unterminated\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadOptions([]byte(doc))
			var cfg *ConfigError
			assert.True(t, errors.As(err, &cfg), "expected ConfigError, got %v", err)
		})
	}
}

func TestOptions_Validate(t *testing.T) {
	ok := Options{TTL: time.Second, Frequency: time.Second, Tag: "a", CodeKey: "b"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.TTL = 0
	assert.EqualError(t, bad.Validate(), `ping option "ttl": must be positive`)

	bad = ok
	bad.CodeKey = ""
	assert.EqualError(t, bad.Validate(), `ping option "code_key": required option is missing`)
}
