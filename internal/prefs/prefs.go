// Package prefs loads operator preferences that shape validation and
// commit policy: how strictly the semantic checks run, whether commits are
// forced, which external programs to use and the default operation
// timeouts.
package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CheckFrequency controls when semantic checks run.
type CheckFrequency string

const (
	CheckAlways   CheckFrequency = "always"
	CheckOnVerify CheckFrequency = "on-verify"
	CheckNever    CheckFrequency = "never"
)

// Preferences is the full preference set.
type Preferences struct {
	CheckFrequency CheckFrequency `yaml:"check_frequency"`
	// Force lets commits proceed over conflicts and failed verification
	// without asking.
	Force bool `yaml:"force"`
	// SemanticTolerance is the number of semantic warnings accepted before
	// verification fails.
	SemanticTolerance int               `yaml:"semantic_tolerance"`
	Editor            string            `yaml:"editor"`
	Simulate          Simulate          `yaml:"simulate"`
	DotProgram        string            `yaml:"dot_program"`
	DefaultTimeouts   map[string]string `yaml:"default_timeouts"`
}

// Simulate names the simulator programs.
type Simulate struct {
	Primary  string `yaml:"primary"`
	Fallback string `yaml:"fallback"`
}

// Default returns the built-in preferences.
func Default() Preferences {
	return Preferences{
		CheckFrequency:    CheckAlways,
		SemanticTolerance: 1,
		Editor:            "vi",
		Simulate:          Simulate{Primary: "crm_simulate", Fallback: "ptest"},
		DotProgram:        "dot",
		DefaultTimeouts: map[string]string{
			"start":   "20s",
			"stop":    "20s",
			"monitor": "20s",
			"default": "20s",
		},
	}
}

// Load reads preferences from path on top of the defaults. An empty path
// or a missing file yields the defaults.
func Load(path string) (Preferences, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Preferences{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes YAML preferences on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (Preferences, error) {
	p := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Preferences{}, fmt.Errorf("parse preferences: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Preferences{}, err
	}
	return p, nil
}

// ApplyEnv overrides preferences from CIBCONF_* environment variables.
func (p *Preferences) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CIBCONF_FORCE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CIBCONF_FORCE: %w", err)
		}
		p.Force = b
	}
	if v, ok := lookup("CIBCONF_EDITOR"); ok && v != "" {
		p.Editor = v
	}
	if v, ok := lookup("CIBCONF_CHECK_FREQUENCY"); ok {
		p.CheckFrequency = CheckFrequency(v)
	}
	return p.Validate()
}

// Validate checks preference values.
func (p Preferences) Validate() error {
	switch p.CheckFrequency {
	case CheckAlways, CheckOnVerify, CheckNever:
	default:
		return fmt.Errorf("check_frequency: invalid value %q", p.CheckFrequency)
	}
	if p.SemanticTolerance < 0 {
		return fmt.Errorf("semantic_tolerance: must not be negative, got %d", p.SemanticTolerance)
	}
	return nil
}

// Timeout returns the default timeout for an operation, falling back to
// the "default" entry.
func (p Preferences) Timeout(op string) (string, bool) {
	if t, ok := p.DefaultTimeouts[op]; ok {
		return t, true
	}
	t, ok := p.DefaultTimeouts["default"]
	return t, ok
}
