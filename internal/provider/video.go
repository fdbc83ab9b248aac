package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

const videoPlaylistLimit = 50

// VideoAdapter fetches up to videoPlaylistLimit playlist items for the
// authenticated channel.
type VideoAdapter struct {
	baseURL string
	pool    *ConnectionPool
}

func NewVideoAdapter(pool *ConnectionPool, baseURL string) *VideoAdapter {
	return &VideoAdapter{baseURL: baseURL, pool: pool}
}

func (a *VideoAdapter) Platform() platform.Platform { return platform.Video }

func (a *VideoAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("video", 2, 4)
	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	client := a.pool.Client("video")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/playlistItems?maxResults=%d", a.baseURL, videoPlaylistLimit), nil)
	if err != nil {
		return nil, NetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(resp.Body)
		if strings.Contains(strings.ToLower(string(body)), "quota") {
			return nil, RateLimited(3600)
		}
		return nil, AuthExpired(fmt.Sprintf("video returned status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, RateLimited(parseRetryAfter(resp.Header))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, APIError(resp.StatusCode, fmt.Sprintf("video returned status %d", resp.StatusCode))
	}

	var raw normalize.VideoRaw
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, ParseError("decode video playlist: " + err.Error())
	}
	return raw, nil
}
