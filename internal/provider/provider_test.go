package provider

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/f0rbit/media-timeline/internal/platform"
)

func TestMemoryProviderReturnsPayloadByDefault(t *testing.T) {
	m := NewMemoryProvider(platform.GitHost, map[string]any{"ok": true})
	payload, err := m.Fetch(context.Background(), "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.(map[string]any)["ok"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if m.CallCount() != 1 {
		t.Fatalf("expected call count 1, got %d", m.CallCount())
	}
}

func TestMemoryProviderSimulateRateLimitIsOneShot(t *testing.T) {
	m := NewMemoryProvider(platform.GitHost, "payload")
	m.SetSimulateRateLimit(42)

	_, err := m.Fetch(context.Background(), "token")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrRateLimited || perr.RetryAfter != 42 {
		t.Fatalf("expected rate_limited(42), got %v", err)
	}

	payload, err := m.Fetch(context.Background(), "token")
	if err != nil {
		t.Fatalf("expected second call to succeed once the one-shot flag clears, got %v", err)
	}
	if payload != "payload" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestMemoryProviderSimulateAuthExpired(t *testing.T) {
	m := NewMemoryProvider(platform.Microblog, "payload")
	m.SetSimulateAuthExpired()
	_, err := m.Fetch(context.Background(), "token")
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrAuthExpired {
		t.Fatalf("expected auth_expired, got %v", err)
	}
}

func TestRegistryUnknownPlatform(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(platform.Platform("bogus"))
	perr, ok := err.(*Error)
	if !ok || perr.Kind != ErrUnknownPlatform {
		t.Fatalf("expected unknown_platform, got %v", err)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	m := NewMemoryProvider(platform.Video, "payload")
	r.Register(m)

	got, err := r.Get(platform.Video)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != m {
		t.Fatalf("expected registry to return the registered provider")
	}
}

func TestGitHostClassifyErrorPrecedence(t *testing.T) {
	a := &GitHostAdapter{}

	// 429 is always rate_limited regardless of other headers.
	resp429 := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"120"}}}
	if err := a.classifyError(resp429).(*Error); err.Kind != ErrRateLimited || err.RetryAfter != 120 {
		t.Fatalf("expected rate_limited(120) for 429, got %+v", err)
	}

	// 403 with remaining==0 is rate_limited, computed from reset header.
	resetAt := time.Now().Add(30 * time.Second).Unix()
	resp403 := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{
		"X-Ratelimit-Remaining": {"0"},
		"X-Ratelimit-Reset":     {strconv.FormatInt(resetAt, 10)},
	}}
	err403 := a.classifyError(resp403).(*Error)
	if err403.Kind != ErrRateLimited {
		t.Fatalf("expected 403+remaining=0 to classify as rate_limited, got %+v", err403)
	}

	// 401 without remaining header is auth_expired.
	resp401 := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
	err401 := a.classifyError(resp401).(*Error)
	if err401.Kind != ErrAuthExpired {
		t.Fatalf("expected bare 401 to classify as auth_expired, got %+v", err401)
	}

	// Any other non-200 is api_error.
	resp500 := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}}
	err500 := a.classifyError(resp500).(*Error)
	if err500.Kind != ErrAPIError || err500.Status != 500 {
		t.Fatalf("expected api_error(500), got %+v", err500)
	}
}
