// Package policy defines retry policies for agent fault recovery.
//
// A RetryPolicy bounds automatic restart attempts and shapes their
// exponential backoff. Policies are looked up per agent type with a
// default fallback via a Set, which supports atomic hot reload from a
// TOML file.
package policy
