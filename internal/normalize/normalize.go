package normalize

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/timeline"
)

const (
	commitTitleMaxLen  = 72
	postTitleMaxLen    = 100
	ellipsis           = "…"
	verifiedBlue       = "blue"
	verifiedBusiness   = "business"
	verifiedGovernment = "government"
	verifiedNone       = "none"
)

func truncate(s string, max int) string {
	firstLine := s
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine = s[:idx]
	}
	runes := []rune(firstLine)
	if len(runes) <= max {
		return firstLine
	}
	return string(runes[:max]) + ellipsis
}

func lastURISegment(uri string) string {
	if idx := strings.LastIndexByte(uri, '/'); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}

// GitHost normalizes a composite git-host payload into commit and
// pull-request items across every repository it names. Malformed
// repositories are skipped; the function itself never errors.
func GitHost(log zerolog.Logger, raw GitHostRaw) []timeline.Item {
	var items []timeline.Item

	// PR events for the same (repo, number) collapse to the most recent.
	latestPR := make(map[string]GitHostPR)
	latestPRRepo := make(map[string]string)

	for repoName, repo := range raw.Repos {
		for _, c := range repo.Commits {
			if c.SHA == "" {
				log.Warn().Str("repo", repoName).Msg("dropping commit with empty sha")
				continue
			}
			items = append(items, timeline.Item{
				ID:        fmt.Sprintf("git:commit:%s:%s", repoName, shortSHA(c.SHA)),
				Platform:  "git-host",
				Type:      timeline.ItemCommit,
				Timestamp: c.Timestamp,
				Title:     truncate(c.Message, commitTitleMaxLen),
				URL:       c.URL,
				Commit: &timeline.CommitPayload{
					Repo:         repoName,
					SHA:          c.SHA,
					Message:      c.Message,
					Branch:       c.Branch,
					Additions:    c.Additions,
					Deletions:    c.Deletions,
					FilesChanged: c.FilesChanged,
				},
			})
		}
		for _, pr := range repo.PRs {
			key := fmt.Sprintf("%s#%d", repoName, pr.Number)
			existing, ok := latestPR[key]
			if !ok || prIsNewer(pr, existing) {
				latestPR[key] = pr
				latestPRRepo[key] = repoName
			}
		}
	}

	for key, pr := range latestPR {
		repoName := latestPRRepo[key]
		ts := pr.CreatedAt
		if pr.MergedAt != nil {
			ts = *pr.MergedAt
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("git:pr:%s:%d", repoName, pr.Number),
			Platform:  "git-host",
			Type:      timeline.ItemPullRequest,
			Timestamp: ts,
			Title:     pr.Title,
			URL:       pr.URL,
			PullRequest: &timeline.PullRequestPayload{
				Repo:           repoName,
				Number:         pr.Number,
				Title:          pr.Title,
				State:          timeline.PRState(pr.State),
				Action:         pr.Action,
				HeadRef:        pr.HeadRef,
				BaseRef:        pr.BaseRef,
				CommitSHAs:     pr.CommitSHAs,
				MergeCommitSHA: pr.MergeCommitSHA,
			},
		})
	}

	return items
}

func shortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}
	return sha[:7]
}

func prIsNewer(candidate, current GitHostPR) bool {
	cTime := candidate.CreatedAt
	if candidate.MergedAt != nil {
		cTime = *candidate.MergedAt
	}
	curTime := current.CreatedAt
	if current.MergedAt != nil {
		curTime = *current.MergedAt
	}
	return cTime.After(curTime)
}

// Microblog normalizes a page of feed items.
func Microblog(log zerolog.Logger, raw MicroblogRaw) []timeline.Item {
	var items []timeline.Item
	for _, p := range raw.Items {
		if p.URI == "" {
			log.Warn().Msg("dropping microblog post with empty uri")
			continue
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("bsky:post:%s", lastURISegment(p.URI)),
			Platform:  "microblog",
			Type:      timeline.ItemPost,
			Timestamp: p.CreatedAt,
			Title:     truncate(p.Text, postTitleMaxLen),
			Post: &timeline.PostPayload{
				Content:      p.Text,
				AuthorHandle: p.AuthorHandle,
				ReplyCount:   p.ReplyCount,
				RepostCount:  p.RepostCount,
				LikeCount:    p.LikeCount,
				HasMedia:     len(p.Embed.Images) > 0,
				IsReply:      p.IsReply,
				IsRepost:     p.ReasonTag == RepostReasonTag,
			},
		})
	}
	return items
}

// Video normalizes a page of playlist items.
func Video(log zerolog.Logger, raw VideoRaw) []timeline.Item {
	var items []timeline.Item
	for _, v := range raw.Items {
		if v.VideoID == "" {
			log.Warn().Msg("dropping video item with empty video id")
			continue
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("yt:video:%s", v.VideoID),
			Platform:  "video",
			Type:      timeline.ItemVideo,
			Timestamp: v.PublishedAt,
			Title:     v.Title,
			Video: &timeline.VideoPayload{
				ChannelID:    v.ChannelID,
				ChannelTitle: v.ChannelTitle,
				Description:  v.Description,
				ThumbnailURL: selectThumbnail(v.Thumbnails),
			},
		})
	}
	return items
}

func selectThumbnail(t VideoThumbnails) string {
	if t.High != "" {
		return t.High
	}
	if t.Medium != "" {
		return t.Medium
	}
	return t.Default
}

// TaskTracker normalizes the full current task list.
func TaskTracker(log zerolog.Logger, raw TaskTrackerRaw) []timeline.Item {
	var items []timeline.Item
	for _, tk := range raw.Tasks {
		if tk.TaskID == "" {
			log.Warn().Msg("dropping task with empty task id")
			continue
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("dp:task:%s", tk.TaskID),
			Platform:  "task-tracker",
			Type:      timeline.ItemTask,
			Timestamp: tk.UpdatedAt,
			Title:     tk.Title,
			URL:       tk.URL,
			Task: &timeline.TaskPayload{
				Status:      tk.Status,
				Priority:    tk.Priority,
				Project:     tk.Project,
				Tags:        tk.Tags,
				DueDate:     tk.DueDate,
				CompletedAt: tk.CompletedAt,
			},
		})
	}
	return items
}

// Aggregator normalizes link-aggregator posts and comments.
func Aggregator(log zerolog.Logger, raw AggregatorRaw) []timeline.Item {
	var items []timeline.Item
	for _, p := range raw.Posts {
		if p.PostID == "" {
			log.Warn().Msg("dropping aggregator post with empty post id")
			continue
		}
		title := p.Title
		if title == "" {
			title = truncate(p.Body, commitTitleMaxLen)
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("rd:post:%s", p.PostID),
			Platform:  "link-aggregator",
			Type:      timeline.ItemPost,
			Timestamp: p.CreatedAt,
			Title:     title,
			URL:       p.Permalink,
			Post: &timeline.PostPayload{
				Content: p.Body,
			},
		})
	}
	for _, c := range raw.Comments {
		if c.CommentID == "" {
			log.Warn().Msg("dropping aggregator comment with empty comment id")
			continue
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("rd:comment:%s", c.CommentID),
			Platform:  "link-aggregator",
			Type:      timeline.ItemComment,
			Timestamp: c.CreatedAt,
			Title:     truncate(c.Body, commitTitleMaxLen),
			URL:       c.Permalink,
			Comment: &timeline.CommentPayload{
				Subreddit:     c.Subreddit,
				LinkTitle:     c.ParentTitle,
				LinkPermalink: c.ParentURL,
				Score:         c.Score,
				IsOP:          c.IsSubmitter,
				ParentTitle:   c.ParentTitle,
				ParentURL:     c.ParentURL,
			},
		})
	}
	return items
}

// VerifiedType maps a raw verified_type string to its closed set.
func VerifiedType(raw string) string {
	switch raw {
	case verifiedBlue, verifiedBusiness, verifiedGovernment:
		return raw
	default:
		return verifiedNone
	}
}

// MicroblogLong normalizes a page of long-form posts.
func MicroblogLong(log zerolog.Logger, raw MicroblogLongRaw) []timeline.Item {
	var items []timeline.Item
	for _, tw := range raw.Tweets {
		if tw.ID == "" {
			log.Warn().Msg("dropping microblog-long tweet with empty id")
			continue
		}
		items = append(items, timeline.Item{
			ID:        fmt.Sprintf("mbl:post:%s", tw.ID),
			Platform:  "microblog-long",
			Type:      timeline.ItemPost,
			Timestamp: tw.CreatedAt,
			Title:     truncate(tw.Text, postTitleMaxLen),
			URL:       tw.URL,
			Post: &timeline.PostPayload{
				Content:      tw.Text,
				AuthorHandle: tw.AuthorHandle,
			},
		})
	}
	return items
}
