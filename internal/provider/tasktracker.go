package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/platform"
)

// TaskTrackerAdapter fetches the full current task list in one call.
type TaskTrackerAdapter struct {
	baseURL string
	pool    *ConnectionPool
}

func NewTaskTrackerAdapter(pool *ConnectionPool, baseURL string) *TaskTrackerAdapter {
	return &TaskTrackerAdapter{baseURL: baseURL, pool: pool}
}

func (a *TaskTrackerAdapter) Platform() platform.Platform { return platform.TaskTracker }

func (a *TaskTrackerAdapter) Fetch(ctx context.Context, token string) (any, error) {
	limiter := a.pool.Limiter("task-tracker", 3, 6)
	if err := limiter.Wait(ctx); err != nil {
		return nil, NetworkError(err)
	}
	client := a.pool.Client("task-tracker")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/tasks", nil)
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
		return nil, AuthExpired(fmt.Sprintf("task-tracker returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, APIError(resp.StatusCode, fmt.Sprintf("task-tracker returned status %d", resp.StatusCode))
	}

	var raw normalize.TaskTrackerRaw
	if err := decodeJSONResponse(resp, &raw); err != nil {
		return nil, ParseError("decode task list: " + err.Error())
	}
	return raw, nil
}
