package policy

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FilePolicy mirrors RetryPolicy but uses strings for durations and
// pointers for optional fields to make TOML friendly. Omitted fields
// inherit from the base policy they are applied onto.
type FilePolicy struct {
	MaxRetries        *int     `toml:"max_retries"`
	BaseDelay         string   `toml:"base_delay"`
	BackoffMultiplier *float64 `toml:"backoff_multiplier"`
	Retryable         []string `toml:"retryable"`
	NonRetryable      []string `toml:"non_retryable"`
}

// FileSet is the TOML shape of a policy set: a default table plus
// per-agent-type tables.
type FileSet struct {
	Default FilePolicy            `toml:"default"`
	Types   map[string]FilePolicy `toml:"types"`
}

// LoadFile reads a policy set from a TOML file. Fields omitted from the
// file keep the built-in default values; per-type tables start from the
// file's default table.
func LoadFile(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse reads a policy set from TOML bytes.
func Parse(b []byte) (*Set, error) {
	var fs FileSet
	if err := toml.Unmarshal(b, &fs); err != nil {
		return nil, fmt.Errorf("policy: parse: %w", err)
	}
	return FromFileSet(fs)
}

// FromFileSet builds a validated policy set from the TOML shape.
func FromFileSet(fs FileSet) (*Set, error) {
	def, err := applyFilePolicy(Default(), fs.Default)
	if err != nil {
		return nil, fmt.Errorf("policy: default: %w", err)
	}

	set := NewSet(def)
	for agentType, fp := range fs.Types {
		p, err := applyFilePolicy(def, fp)
		if err != nil {
			return nil, fmt.Errorf("policy: type %q: %w", agentType, err)
		}
		set.SetType(agentType, p)
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// applyFilePolicy overlays the fields present in fp onto base.
func applyFilePolicy(base RetryPolicy, fp FilePolicy) (RetryPolicy, error) {
	out := base
	if fp.MaxRetries != nil {
		out.MaxRetries = *fp.MaxRetries
	}
	if fp.BaseDelay != "" {
		d, err := time.ParseDuration(fp.BaseDelay)
		if err != nil {
			return out, fmt.Errorf("invalid base_delay %q: %w", fp.BaseDelay, err)
		}
		out.BaseDelay = d
	}
	if fp.BackoffMultiplier != nil {
		out.BackoffMultiplier = *fp.BackoffMultiplier
	}
	if fp.Retryable != nil {
		out.RetryableConditions = fp.Retryable
	}
	if fp.NonRetryable != nil {
		out.NonRetryableConditions = fp.NonRetryable
	}
	return out, nil
}
