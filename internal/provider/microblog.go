package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

const microblogFeedLimit = 50

// MicroblogAdapter fetches the author's most recent feed items with an
// opaque cursor, one page per invocation.
type MicroblogAdapter struct {
	baseURL string
	pool    *ConnectionPool
}

func NewMicroblogAdapter(pool *ConnectionPool, baseURL string) *MicroblogAdapter {
	return &MicroblogAdapter{baseURL: baseURL, pool: pool}
}

func (a *MicroblogAdapter) Platform() platform.Platform { return platform.Microblog }

func (a *MicroblogAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("microblog", 3, 6)
	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	client := a.pool.Client("microblog")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/feed?limit=%d", a.baseURL, microblogFeedLimit), nil)
	if err != nil {
		return nil, NetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, RateLimited(parseRetryAfter(resp.Header))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, AuthExpired(fmt.Sprintf("microblog returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, APIError(resp.StatusCode, fmt.Sprintf("microblog returned status %d", resp.StatusCode))
	}

	var raw normalize.MicroblogRaw
	if err := decodeJSONResponse(resp, &raw); err != nil {
		return nil, ParseError("decode microblog feed: " + err.Error())
	}
	return raw, nil
}
