// Package provider implements C2: per-platform fetch adapters behind a
// single capability interface, plus deterministic in-memory doubles
// used by tests and the memory-backed demo wiring.
package provider

import (
	"context"
	"fmt"

	"github.com/f0rbit/media-timeline/internal/platform"
)

// Provider is the capability every platform adapter and its memory
// double satisfy: fetch raw provider output for one account's token.
// Implementations return (payload, nil) on success or (nil, *Error) on
// any recognized failure; Go errors that are not *Error indicate a bug
// in the adapter itself, not an in-band provider failure.
type Provider interface {
	Platform() platform.Platform
	Fetch(ctx context.Context, token string) (any, error)
}

// ErrorKind is the closed tagged set a Provider may fail with.
type ErrorKind string

const (
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrAuthExpired     ErrorKind = "auth_expired"
	ErrNetworkError    ErrorKind = "network_error"
	ErrAPIError        ErrorKind = "api_error"
	ErrParseError      ErrorKind = "parse_error"
	ErrUnknownPlatform ErrorKind = "unknown_platform"
)

// Error is the tagged ProviderError sum type. Exactly the fields
// relevant to Kind are meaningful; the scheduler switches on Kind to
// decide how to update ratepolicy.State.
type Error struct {
	Kind         ErrorKind
	RetryAfter   int // seconds; rate_limited only
	Message      string
	Status       int // api_error only
	Cause        error
	PlatformName string // unknown_platform only
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrRateLimited:
		return fmt.Sprintf("provider: rate limited, retry after %ds", e.RetryAfter)
	case ErrAuthExpired:
		return fmt.Sprintf("provider: auth expired: %s", e.Message)
	case ErrNetworkError:
		return fmt.Sprintf("provider: network error: %v", e.Cause)
	case ErrAPIError:
		return fmt.Sprintf("provider: api error %d: %s", e.Status, e.Message)
	case ErrParseError:
		return fmt.Sprintf("provider: parse error: %s", e.Message)
	case ErrUnknownPlatform:
		return fmt.Sprintf("provider: unknown platform %q", e.PlatformName)
	default:
		return fmt.Sprintf("provider: unrecognized error kind %q", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func RateLimited(retryAfter int) *Error {
	return &Error{Kind: ErrRateLimited, RetryAfter: retryAfter}
}

func AuthExpired(message string) *Error {
	return &Error{Kind: ErrAuthExpired, Message: message}
}

func NetworkError(cause error) *Error {
	return &Error{Kind: ErrNetworkError, Cause: cause}
}

func APIError(status int, message string) *Error {
	return &Error{Kind: ErrAPIError, Status: status, Message: message}
}

func ParseError(message string) *Error {
	return &Error{Kind: ErrParseError, Message: message}
}

func UnknownPlatform(name string) *Error {
	return &Error{Kind: ErrUnknownPlatform, PlatformName: name}
}

// Registry is a dispatch table keyed by platform name, mirroring the
// shape of a connector registry: construction-time registration, then
// read-mostly lookups from concurrent scheduler workers.
type Registry struct {
	providers map[platform.Platform]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[platform.Platform]Provider)}
}

// Register adds a provider, keyed by its own declared platform.
func (r *Registry) Register(p Provider) {
	r.providers[p.Platform()] = p
}

// Get returns the adapter for a platform, or an unknown_platform error.
func (r *Registry) Get(p platform.Platform) (Provider, error) {
	adapter, ok := r.providers[p]
	if !ok {
		return nil, UnknownPlatform(string(p))
	}
	return adapter, nil
}
