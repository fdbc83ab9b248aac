package provider

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PoolConfig configures the shared HTTP transport every adapter uses.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultPoolConfig returns production-grade pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		DialTimeout:           10 * time.Second,
		ResponseHeaderTimeout: 0, // handled by the caller's context deadline
	}
}

// ConnectionPool is a shared *http.Client per platform, each fronted by
// its own token-bucket limiter so one slow or chatty platform cannot
// starve the others' outbound request budget.
type ConnectionPool struct {
	mu       sync.Mutex
	clients  map[string]*http.Client
	limiters map[string]*rate.Limiter
	config   PoolConfig
}

// NewConnectionPool returns an empty pool using config for every
// platform client it lazily creates.
func NewConnectionPool(config PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		clients:  make(map[string]*http.Client),
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// Client returns the shared *http.Client for a platform, creating one
// on first use.
func (p *ConnectionPool) Client(platformName string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[platformName]; ok {
		return c
	}
	transport := &http.Transport{
		MaxIdleConns:        p.config.MaxIdleConns,
		MaxIdleConnsPerHost: p.config.MaxIdleConnsPerHost,
		IdleConnTimeout:     p.config.IdleConnTimeout,
		TLSHandshakeTimeout: p.config.TLSHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   p.config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: p.config.ResponseHeaderTimeout,
	}
	client := &http.Client{Transport: transport}
	p.clients[platformName] = client
	return client
}

// Limiter returns the self-throttling token-bucket limiter for a
// platform, creating one with the given rate on first use. Adapters
// call Wait(ctx) before issuing a request so a burst of scheduler
// workers never exceeds the platform's advertised budget even before
// the platform itself returns a 429.
func (p *ConnectionPool) Limiter(platformName string, ratePerSecond float64, burst int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[platformName]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	p.limiters[platformName] = l
	return l
}
