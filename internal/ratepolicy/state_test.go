package ratepolicy_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/f0rbit/media-timeline/internal/ratepolicy"
)

func intPtr(n int) *int { return &n }

func TestShouldFetch_PermittedByDefault(t *testing.T) {
	p := ratepolicy.New(0, 0)
	if !p.ShouldFetch(ratepolicy.State{}, time.Now()) {
		t.Fatal("zero-value state should permit fetching")
	}
}

func TestShouldFetch_RateExhaustedSuppressesRegardlessOfCircuit(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	reset := now.Add(5 * time.Minute)
	s := ratepolicy.State{Remaining: intPtr(0), ResetAt: &reset}
	if p.ShouldFetch(s, now) {
		t.Fatal("expected gating when remaining=0 and reset_at in the future")
	}
}

func TestShouldFetch_OpenCircuitSuppressesRegardlessOfCounters(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	openUntil := now.Add(5 * time.Minute)
	s := ratepolicy.State{Remaining: intPtr(100), CircuitOpenUntil: &openUntil}
	if p.ShouldFetch(s, now) {
		t.Fatal("expected gating when circuit is open, even with remaining counters available")
	}
}

func TestShouldFetch_ExpiredResetPermits(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	past := now.Add(-time.Minute)
	s := ratepolicy.State{Remaining: intPtr(0), ResetAt: &past}
	if !p.ShouldFetch(s, now) {
		t.Fatal("expected a fetch to be permitted once reset_at has passed")
	}
}

func TestUpdateOnSuccess_ClearsFailureState(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	openUntil := now.Add(time.Minute)
	s := ratepolicy.State{ConsecutiveFailures: 5, LastFailureAt: &now, CircuitOpenUntil: &openUntil}

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "42")
	h.Set("X-RateLimit-Limit", "60")
	h.Set("X-RateLimit-Reset", "1700000000")

	next := p.UpdateOnSuccess(s, h)
	if next.ConsecutiveFailures != 0 || next.LastFailureAt != nil || next.CircuitOpenUntil != nil {
		t.Fatalf("expected success to clear failure bookkeeping, got %+v", next)
	}
	if next.Remaining == nil || *next.Remaining != 42 {
		t.Fatalf("expected remaining=42, got %+v", next.Remaining)
	}
	if next.LimitTotal == nil || *next.LimitTotal != 60 {
		t.Fatalf("expected limit_total=60, got %+v", next.LimitTotal)
	}
}

func TestUpdateOnFailure_OpensCircuitAtThreshold(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	s := ratepolicy.State{ConsecutiveFailures: 2}

	next := p.UpdateOnFailure(s, nil, now)
	if next.ConsecutiveFailures != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", next.ConsecutiveFailures)
	}
	if next.CircuitOpenUntil == nil {
		t.Fatal("expected circuit to open upon crossing the threshold")
	}
	if !next.CircuitOpenUntil.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected cooldown of 5m, got open-until %v vs now %v", next.CircuitOpenUntil, now)
	}
}

func TestUpdateOnFailure_BelowThresholdLeavesCircuitClosed(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	next := p.UpdateOnFailure(ratepolicy.State{}, nil, time.Now())
	if next.ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", next.ConsecutiveFailures)
	}
	if next.CircuitOpenUntil != nil {
		t.Fatal("circuit should remain closed below threshold")
	}
}

func TestUpdateOnFailure_RetryAfterForcesRemainingZero(t *testing.T) {
	p := ratepolicy.New(3, 5*time.Minute)
	now := time.Now()
	retryAfter := 120
	next := p.UpdateOnFailure(ratepolicy.State{}, &retryAfter, now)
	if next.Remaining == nil || *next.Remaining != 0 {
		t.Fatalf("expected remaining forced to 0, got %+v", next.Remaining)
	}
	if next.ResetAt == nil || !next.ResetAt.Equal(now.Add(120*time.Second)) {
		t.Fatalf("expected reset_at = now+120s, got %+v", next.ResetAt)
	}
}
