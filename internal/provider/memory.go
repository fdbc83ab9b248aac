package provider

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/f0rbit/media-timeline/internal/platform"
)

// MemoryProvider is a deterministic in-memory Provider double. Tests
// configure Payload up front, then observe CallCount and toggle
// SimulateRateLimit/SimulateAuthExpired to force the next Fetch to
// short-circuit with the corresponding error — observationally
// indistinguishable from a real adapter at the Provider interface.
type MemoryProvider struct {
	mu       sync.Mutex
	plat     platform.Platform
	Payload  any
	callCount int64

	simulateRateLimit  atomic.Bool
	simulateAuthExpired atomic.Bool
	rateLimitRetryAfter int
}

// NewMemoryProvider returns a double for plat that returns payload on
// every Fetch until a simulate flag is toggled.
func NewMemoryProvider(plat platform.Platform, payload any) *MemoryProvider {
	return &MemoryProvider{plat: plat, Payload: payload, rateLimitRetryAfter: 60}
}

func (m *MemoryProvider) Platform() platform.Platform { return m.plat }

// CallCount returns the number of Fetch invocations observed so far.
func (m *MemoryProvider) CallCount() int64 { return atomic.LoadInt64(&m.callCount) }

// SetSimulateRateLimit arms a one-shot rate_limited error
// on the next Fetch call.
func (m *MemoryProvider) SetSimulateRateLimit(retryAfter int) {
	m.mu.Lock()
	m.rateLimitRetryAfter = retryAfter
	m.mu.Unlock()
	m.simulateRateLimit.Store(true)
}

// SetSimulateAuthExpired arms a one-shot auth_expired error on the next
// Fetch call.
func (m *MemoryProvider) SetSimulateAuthExpired() {
	m.simulateAuthExpired.Store(true)
}

func (m *MemoryProvider) Fetch(ctx context.Context, token string) (any, error) {
	atomic.AddInt64(&m.callCount, 1)

	if m.simulateRateLimit.CompareAndSwap(true, false) {
		m.mu.Lock()
		retryAfter := m.rateLimitRetryAfter
		m.mu.Unlock()
		return nil, RateLimited(retryAfter)
	}
	if m.simulateAuthExpired.CompareAndSwap(true, false) {
		return nil, AuthExpired("simulated auth expiry")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Payload, nil
}

var _ Provider = (*MemoryProvider)(nil)
