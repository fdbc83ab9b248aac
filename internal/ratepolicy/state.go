// Package ratepolicy implements C1: a per-account state machine combining
// rate-limit accounting and a circuit breaker, deciding whether an
// account is fetchable right now.
package ratepolicy

import (
	"net/http"
	"strconv"
	"time"
)

// DefaultThreshold is the default number of consecutive failures that
// opens the circuit.
const DefaultThreshold = 3

// DefaultCooldown is the default circuit-open duration.
const DefaultCooldown = 5 * time.Minute

// State is the per-account rate-limit and circuit-breaker state. Nil
// pointer fields mean "unknown/never observed".
type State struct {
	Remaining          *int
	LimitTotal         *int
	ResetAt            *time.Time
	ConsecutiveFailures int
	LastFailureAt      *time.Time
	CircuitOpenUntil   *time.Time
}

// Policy evaluates and updates State using a configurable threshold and
// cooldown (defaults match spec.md §3's THRESHOLD=3, cooldown=5m).
type Policy struct {
	Threshold int
	Cooldown  time.Duration
}

// New returns a Policy with the given threshold/cooldown, falling back to
// the spec defaults for non-positive values.
func New(threshold int, cooldown time.Duration) Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return Policy{Threshold: threshold, Cooldown: cooldown}
}

// ShouldFetch reports whether a fetch may be attempted now.
//
// Precedence (spec.md §4.1): a non-null, unexpired ResetAt with
// Remaining==0 suppresses fetching regardless of circuit state; an open
// circuit suppresses fetching regardless of rate counters. Either check
// alone is sufficient to gate.
func (p Policy) ShouldFetch(s State, now time.Time) bool {
	if s.Remaining != nil && *s.Remaining == 0 && s.ResetAt != nil && now.Before(*s.ResetAt) {
		return false
	}
	if s.CircuitOpenUntil != nil && now.Before(*s.CircuitOpenUntil) {
		return false
	}
	return true
}

// UpdateOnSuccess extracts rate-limit counters from conventional response
// headers and clears failure/circuit bookkeeping.
func (p Policy) UpdateOnSuccess(s State, headers http.Header) State {
	next := s

	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			next.Remaining = &n
		}
	}
	if v := headers.Get("X-RateLimit-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			next.LimitTotal = &n
		}
	}
	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(n, 0)
			next.ResetAt = &t
		}
	}

	next.ConsecutiveFailures = 0
	next.LastFailureAt = nil
	next.CircuitOpenUntil = nil
	return next
}

// UpdateOnFailure records a failed fetch attempt. When retryAfterSeconds
// is non-nil, Remaining is forced to 0 and ResetAt pushed out accordingly,
// preserving any other previously observed counters. Crossing the
// threshold opens the circuit for Cooldown.
func (p Policy) UpdateOnFailure(s State, retryAfterSeconds *int, now time.Time) State {
	next := s
	next.ConsecutiveFailures = s.ConsecutiveFailures + 1
	next.LastFailureAt = &now

	if next.ConsecutiveFailures >= p.Threshold {
		openUntil := now.Add(p.Cooldown)
		next.CircuitOpenUntil = &openUntil
	}

	if retryAfterSeconds != nil {
		zero := 0
		next.Remaining = &zero
		resetAt := now.Add(time.Duration(*retryAfterSeconds) * time.Second)
		next.ResetAt = &resetAt
	}

	return next
}
