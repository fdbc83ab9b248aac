package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

const gitHostMaxRepos = 5

// GitHostAdapter fetches the authenticated user's most recently pushed
// repositories, then each one's latest commits and open/recent pull
// requests.
type GitHostAdapter struct {
	baseURL string
	pool    *ConnectionPool
	limiter struct {
		ratePerSecond float64
		burst         int
	}
}

// NewGitHostAdapter returns an adapter pointed at baseURL (the
// git-host API root, e.g. "https://api.github.com").
func NewGitHostAdapter(pool *ConnectionPool, baseURL string) *GitHostAdapter {
	return &GitHostAdapter{baseURL: baseURL, pool: pool}
}

func (a *GitHostAdapter) Platform() platform.Platform { return platform.GitHost }

func (a *GitHostAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("git-host", 5, 10)
	client := a.pool.Client("git-host")

	type repoListing struct {
		Owner         string    `json:"owner"`
		Name          string    `json:"name"`
		FullName      string    `json:"full_name"`
		DefaultBranch string    `json:"default_branch"`
		Private       bool      `json:"private"`
		PushedAt      time.Time `json:"pushed_at"`
		UpdatedAt     time.Time `json:"updated_at"`
	}

	var username string
	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	userResp, err := a.get(ctx, client, token, "/user")
	if err != nil {
		return nil, err
	}
	if err := decodeJSONResponse(userResp, &struct {
		Login *string `json:"login"`
	}{&username}); err != nil {
		return nil, ParseError("decode authenticated user: " + err.Error())
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	reposResp, err := a.get(ctx, client, token, "/user/repos?sort=pushed&per_page="+strconv.Itoa(gitHostMaxRepos))
	if err != nil {
		return nil, err
	}
	var listings []repoListing
	if err := decodeJSONResponse(reposResp, &listings); err != nil {
		return nil, ParseError("decode repo list: " + err.Error())
	}

	total := len(listings)
	if total > gitHostMaxRepos {
		listings = listings[:gitHostMaxRepos]
	}

	meta := normalize.GitHostMeta{
		Username:            username,
		TotalReposAvailable: total,
		ReposFetched:        len(listings),
		FetchedAt:           time.Now().UTC(),
	}
	repos := make(map[string]normalize.GitHostRepo, len(listings))

	for _, listing := range listings {
		meta.Repositories = append(meta.Repositories, normalize.GitHostRepoListing{
			Owner:         listing.Owner,
			Name:          listing.Name,
			FullName:      listing.FullName,
			DefaultBranch: listing.DefaultBranch,
			IsPrivate:     listing.Private,
			PushedAt:      listing.PushedAt,
			UpdatedAt:     listing.UpdatedAt,
		})

		if err := limiter.Wait(ctx); err != nil {
			return nil, NetworkError(err)
		}
		commits, err := a.fetchCommits(ctx, client, token, listing.FullName, listing.DefaultBranch)
		if err != nil {
			return nil, err
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, NetworkError(err)
		}
		prs, err := a.fetchPRs(ctx, client, token, listing.FullName)
		if err != nil {
			return nil, err
		}

		repos[listing.FullName] = normalize.GitHostRepo{Commits: commits, PRs: prs}
	}

	return normalize.GitHostRaw{Meta: meta, Repos: repos}, nil
}

func (a *GitHostAdapter) fetchCommits(ctx context.Context, client *http.Client, token, fullName, branch string) (map[string]normalize.GitHostCommit, error) {
	resp, err := a.get(ctx, client, token, fmt.Sprintf("/repos/%s/commits?sha=%s&per_page=30", fullName, branch))
	if err != nil {
		return nil, err
	}
	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		HTMLURL string `json:"html_url"`
	}
	if err := decodeJSONResponse(resp, &raw); err != nil {
		return nil, ParseError("decode commits for " + fullName + ": " + err.Error())
	}
	out := make(map[string]normalize.GitHostCommit, len(raw))
	for _, c := range raw {
		out[c.SHA] = normalize.GitHostCommit{
			SHA:       c.SHA,
			Message:   c.Commit.Message,
			Branch:    branch,
			Timestamp: c.Commit.Author.Date,
			URL:       c.HTMLURL,
		}
	}
	return out, nil
}

func (a *GitHostAdapter) fetchPRs(ctx context.Context, client *http.Client, token, fullName string) (map[string]normalize.GitHostPR, error) {
	resp, err := a.get(ctx, client, token, fmt.Sprintf("/repos/%s/pulls?state=all&sort=updated&direction=desc&per_page=20", fullName))
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Number    int       `json:"number"`
		Title     string    `json:"title"`
		State     string    `json:"state"`
		Merged    bool      `json:"merged"`
		MergedAt  *time.Time `json:"merged_at"`
		CreatedAt time.Time `json:"created_at"`
		Head      struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		MergeCommitSHA string `json:"merge_commit_sha"`
		HTMLURL        string `json:"html_url"`
	}
	if err := decodeJSONResponse(resp, &raw); err != nil {
		return nil, ParseError("decode pull requests for " + fullName + ": " + err.Error())
	}
	out := make(map[string]normalize.GitHostPR, len(raw))
	for _, pr := range raw {
		state := pr.State
		if pr.Merged {
			state = "merged"
		}
		key := strconv.Itoa(pr.Number)
		out[key] = normalize.GitHostPR{
			Number:         pr.Number,
			Title:          pr.Title,
			State:          state,
			HeadRef:        pr.Head.Ref,
			BaseRef:        pr.Base.Ref,
			CommitSHAs:     []string{pr.Head.SHA},
			MergeCommitSHA: pr.MergeCommitSHA,
			CreatedAt:      pr.CreatedAt,
			MergedAt:       pr.MergedAt,
			URL:            pr.HTMLURL,
		}
	}
	return out, nil
}

func (a *GitHostAdapter) get(ctx context.Context, client *http.Client, token, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, NetworkError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, NetworkError(err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, a.classifyError(resp)
}

// classifyError implements the git-host rate-limit header rule from
// the provider contract: 429 is always rate_limited; a 401/403 with
// remaining==0 is rate_limited with retry_after computed from the
// reset header, otherwise it is auth_expired.
func (a *GitHostAdapter) classifyError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return RateLimited(parseRetryAfter(resp.Header))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		remaining := resp.Header.Get("X-RateLimit-Remaining")
		if remaining == "0" {
			resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
			retryAfter := int(resetUnix - time.Now().Unix())
			if retryAfter < 0 {
				retryAfter = 0
			}
			return RateLimited(retryAfter)
		}
		return AuthExpired(fmt.Sprintf("git-host returned status %d", resp.StatusCode))
	}
	return APIError(resp.StatusCode, fmt.Sprintf("git-host returned status %d", resp.StatusCode))
}

func parseRetryAfter(h http.Header) int {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return secs
		}
	}
	return 60
}

func decodeJSONResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}
