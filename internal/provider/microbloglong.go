package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

const microblogLongPageSize = 50

// MicroblogLongAdapter fetches a bounded page of the authenticated
// user's long-form posts.
type MicroblogLongAdapter struct {
	baseURL string
	pool    *ConnectionPool
}

func NewMicroblogLongAdapter(pool *ConnectionPool, baseURL string) *MicroblogLongAdapter {
	return &MicroblogLongAdapter{baseURL: baseURL, pool: pool}
}

func (a *MicroblogLongAdapter) Platform() platform.Platform { return platform.MicroblogLong }

func (a *MicroblogLongAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("microblog-long", 1, 3)
	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	client := a.pool.Client("microblog-long")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/users/me/tweets?max_results=%d", a.baseURL, microblogLongPageSize), nil)
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
		return nil, AuthExpired(fmt.Sprintf("microblog-long returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, APIError(resp.StatusCode, fmt.Sprintf("microblog-long returned status %d", resp.StatusCode))
	}

	var page struct {
		VerifiedType string                         `json:"verified_type"`
		Tweets       []normalize.MicroblogLongTweet `json:"tweets"`
	}
	if err := decodeJSONResponse(resp, &page); err != nil {
		return nil, ParseError("decode microblog-long tweets: " + err.Error())
	}

	tweets := make(map[string]normalize.MicroblogLongTweet, len(page.Tweets))
	for _, tw := range page.Tweets {
		tweets[tw.ID] = tw
	}

	return normalize.MicroblogLongRaw{
		Meta:   normalize.MicroblogLongMeta{VerifiedType: normalize.VerifiedType(page.VerifiedType)},
		Tweets: tweets,
	}, nil
}
