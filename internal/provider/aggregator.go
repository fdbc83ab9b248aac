package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

const (
	aggregatorUserAgent  = "media-timeline-ingestion/1.0 (+https://github.com/f0rbit/media-timeline)"
	aggregatorDefaultMax = 1000
	aggregatorPageSize   = 100
)

// AggregatorAdapter fetches a paginated link-aggregator history, capping
// total posts and comments at configurable maxima. A single-call
// User-Agent is required by the upstream API's usage policy.
type AggregatorAdapter struct {
	baseURL     string
	pool        *ConnectionPool
	maxPosts    int
	maxComments int
}

func NewAggregatorAdapter(pool *ConnectionPool, baseURL string, maxPosts, maxComments int) *AggregatorAdapter {
	if maxPosts <= 0 {
		maxPosts = aggregatorDefaultMax
	}
	if maxComments <= 0 {
		maxComments = aggregatorDefaultMax
	}
	return &AggregatorAdapter{baseURL: baseURL, pool: pool, maxPosts: maxPosts, maxComments: maxComments}
}

func (a *AggregatorAdapter) Platform() platform.Platform { return platform.Aggregator }

func (a *AggregatorAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("link-aggregator", 1, 2)
	client := a.pool.Client("link-aggregator")

	posts, err := a.fetchPosts(ctx, limiter, client, token)
	if err != nil {
		return nil, err
	}
	comments, err := a.fetchComments(ctx, limiter, client, token)
	if err != nil {
		return nil, err
	}

	meta := normalize.AggregatorMeta{SubredditsActive: unionSubreddits(posts, comments)}
	postMap := make(map[string]normalize.AggregatorPost, len(posts))
	for _, p := range posts {
		postMap[p.PostID] = p
	}
	commentMap := make(map[string]normalize.AggregatorComment, len(comments))
	for _, c := range comments {
		commentMap[c.CommentID] = c
	}

	return normalize.AggregatorRaw{Meta: meta, Posts: postMap, Comments: commentMap}, nil
}

type aggregatorLimiter interface {
	Wait(ctx context.Context) error
}

func (a *AggregatorAdapter) fetchPosts(ctx context.Context, limiter aggregatorLimiter, client *http.Client, token string) ([]normalize.AggregatorPost, error) {
	var all []normalize.AggregatorPost
	after := ""
	for len(all) < a.maxPosts {
		resp, nextAfter, apiErr := a.fetchPage(ctx, limiter, client, token, "/submitted", after)
		if apiErr != nil {
			return nil, apiErr
		}
		var page struct {
			Posts []normalize.AggregatorPost `json:"posts"`
		}
		if err := decodeJSONResponse(resp, &page); err != nil {
			return nil, ParseError("decode link-aggregator posts page: " + err.Error())
		}
		all = append(all, page.Posts...)
		if nextAfter == "" || len(page.Posts) == 0 {
			break
		}
		after = nextAfter
	}
	if len(all) > a.maxPosts {
		all = all[:a.maxPosts]
	}
	return all, nil
}

func (a *AggregatorAdapter) fetchComments(ctx context.Context, limiter aggregatorLimiter, client *http.Client, token string) ([]normalize.AggregatorComment, error) {
	var all []normalize.AggregatorComment
	after := ""
	for len(all) < a.maxComments {
		resp, nextAfter, apiErr := a.fetchPage(ctx, limiter, client, token, "/comments", after)
		if apiErr != nil {
			return nil, apiErr
		}
		var page struct {
			Comments []normalize.AggregatorComment `json:"comments"`
		}
		if err := decodeJSONResponse(resp, &page); err != nil {
			return nil, ParseError("decode link-aggregator comments page: " + err.Error())
		}
		all = append(all, page.Comments...)
		if nextAfter == "" || len(page.Comments) == 0 {
			break
		}
		after = nextAfter
	}
	if len(all) > a.maxComments {
		all = all[:a.maxComments]
	}
	return all, nil
}

// fetchPage issues one paginated request and returns the raw response
// (caller decodes the page-specific shape) plus the "after" cursor
// read out of the response header, since pagination metadata is
// uniform across the posts and comments endpoints.
func (a *AggregatorAdapter) fetchPage(ctx context.Context, limiter aggregatorLimiter, client *http.Client, token, path, after string) (*http.Response, string, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, "", NetworkError(err)
	}
	url := fmt.Sprintf("%s%s?limit=%d", a.baseURL, path, aggregatorPageSize)
	if after != "" {
		url += "&after=" + after
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", NetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", aggregatorUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", NetworkError(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, "", RateLimited(parseRetryAfter(resp.Header))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, "", AuthExpired(fmt.Sprintf("link-aggregator returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", APIError(resp.StatusCode, fmt.Sprintf("link-aggregator returned status %d", resp.StatusCode))
	}
	return resp, resp.Header.Get("X-Aggregator-After"), nil
}

func unionSubreddits(posts []normalize.AggregatorPost, comments []normalize.AggregatorComment) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, p := range posts {
		add(p.Subreddit)
	}
	for _, c := range comments {
		add(c.Subreddit)
	}
	return out
}
