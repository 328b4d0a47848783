package policy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// RetryPolicy governs bounded, backoff-delayed restart attempts after an
// agent failure. A policy is resolved once per recovery attempt sequence
// and treated as immutable for its duration.
type RetryPolicy struct {
	// MaxRetries is the number of automatic restart attempts before
	// fallback strategies are escalated to.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// BackoffMultiplier scales the delay for each subsequent retry.
	BackoffMultiplier float64

	// RetryableConditions, when non-empty, restricts retries to errors
	// whose text contains one of these substrings.
	RetryableConditions []string

	// NonRetryableConditions lists error substrings that always skip
	// retries and escalate straight to fallback strategies.
	NonRetryableConditions []string
}

// Default returns the retry policy used when no type-specific policy is
// configured.
func Default() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks the policy for usable values.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("policy: max_retries must be >= 0")
	}
	if p.BaseDelay < 0 {
		return errors.New("policy: base_delay must be >= 0")
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("policy: backoff_multiplier must be >= 1, got %v", p.BackoffMultiplier)
	}
	return nil
}

// Delay returns the backoff delay for the Nth retry attempt (1-based):
// BaseDelay * BackoffMultiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := math.Pow(p.BackoffMultiplier, float64(attempt-1))
	return time.Duration(float64(p.BaseDelay) * factor)
}

// Retryable classifies an error against the policy's condition lists.
// Non-retryable conditions win over retryable ones. When a retryable
// list is present, only matching errors are retried; otherwise every
// error not excluded is retryable.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	for _, cond := range p.NonRetryableConditions {
		if cond != "" && strings.Contains(text, cond) {
			return false
		}
	}
	if len(p.RetryableConditions) == 0 {
		return true
	}
	for _, cond := range p.RetryableConditions {
		if cond != "" && strings.Contains(text, cond) {
			return true
		}
	}
	return false
}

// Set holds a default retry policy plus per-agent-type overrides.
// It is safe for concurrent use; the policy watcher plugin swaps its
// contents at runtime.
type Set struct {
	mu     sync.RWMutex
	def    RetryPolicy
	byType map[string]RetryPolicy
}

// NewSet creates a policy set with the given default policy.
func NewSet(def RetryPolicy) *Set {
	return &Set{
		def:    def,
		byType: make(map[string]RetryPolicy),
	}
}

// SetType registers a policy for an agent type, replacing any existing one.
func (s *Set) SetType(agentType string, p RetryPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType[agentType] = p
}

// Resolve returns the policy for the given agent type, falling back to
// the default when no type-specific policy exists.
func (s *Set) Resolve(agentType string) RetryPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byType[agentType]; ok {
		return p
	}
	return s.def
}

// DefaultPolicy returns the set's default policy.
func (s *Set) DefaultPolicy() RetryPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// ReplaceFrom swaps this set's contents with those of another set.
// Used for hot reload so that holders of the pointer see the new policies.
func (s *Set) ReplaceFrom(other *Set) {
	other.mu.RLock()
	def := other.def
	byType := make(map[string]RetryPolicy, len(other.byType))
	for k, v := range other.byType {
		byType[k] = v
	}
	other.mu.RUnlock()

	s.mu.Lock()
	s.def = def
	s.byType = byType
	s.mu.Unlock()
}

// Validate checks the default and every per-type policy.
func (s *Set) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.def.Validate(); err != nil {
		return err
	}
	for agentType, p := range s.byType {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("type %q: %w", agentType, err)
		}
	}
	return nil
}
