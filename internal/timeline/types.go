// Package timeline defines the common normalized record types (C5
// output) and assembles them into the grouped, deduplicated artifact
// read back by timeline clients (C6).
package timeline

import "time"

// ItemType discriminates which of Item's payload fields is set.
type ItemType string

const (
	ItemCommit      ItemType = "commit"
	ItemPullRequest ItemType = "pull_request"
	ItemPost        ItemType = "post"
	ItemVideo       ItemType = "video"
	ItemTask        ItemType = "task"
	ItemComment     ItemType = "comment"
)

// Item is the common normalized record every platform's raw payload is
// reduced to. The type-specific fields form its payload: exactly one of
// the Commit/PullRequest/Post/Video/Task/Comment fields is non-nil,
// matching Type.
type Item struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	Type      ItemType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`

	Commit      *CommitPayload      `json:"commit,omitempty"`
	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`
	Post        *PostPayload        `json:"post,omitempty"`
	Video       *VideoPayload       `json:"video,omitempty"`
	Task        *TaskPayload        `json:"task,omitempty"`
	Comment     *CommentPayload     `json:"comment,omitempty"`
}

// CommitPayload is the commit variant of Item's payload.
type CommitPayload struct {
	Repo          string `json:"repo"`
	SHA           string `json:"sha"`
	Message       string `json:"message"`
	Branch        string `json:"branch"`
	Additions     *int   `json:"additions,omitempty"`
	Deletions     *int   `json:"deletions,omitempty"`
	FilesChanged  *int   `json:"files_changed,omitempty"`
}

// PRState enumerates pull_request.state.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// CommitRef is an attached {sha, message, url} entry on an enriched PR.
type CommitRef struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// PullRequestPayload is the pull_request variant of Item's payload.
type PullRequestPayload struct {
	Repo           string      `json:"repo"`
	Number         int         `json:"number"`
	Title          string      `json:"title"`
	State          PRState     `json:"state"`
	Action         string      `json:"action"`
	HeadRef        string      `json:"head_ref"`
	BaseRef        string      `json:"base_ref"`
	CommitSHAs     []string    `json:"commit_shas"`
	MergeCommitSHA string      `json:"merge_commit_sha,omitempty"`
	Commits        []CommitRef `json:"commits,omitempty"`
}

// PostPayload is the post variant of Item's payload (microblog).
type PostPayload struct {
	Content      string `json:"content"`
	AuthorHandle string `json:"author_handle"`
	ReplyCount   int    `json:"reply_count"`
	RepostCount  int    `json:"repost_count"`
	LikeCount    int    `json:"like_count"`
	HasMedia     bool   `json:"has_media"`
	IsReply      bool   `json:"is_reply"`
	IsRepost     bool   `json:"is_repost"`
}

// VideoPayload is the video variant of Item's payload.
type VideoPayload struct {
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// TaskPayload is the task variant of Item's payload.
type TaskPayload struct {
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Project     string     `json:"project"`
	Tags        []string   `json:"tags,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CommentPayload is the comment variant of Item's payload
// (link-aggregator comments).
type CommentPayload struct {
	Subreddit       string `json:"subreddit"`
	LinkTitle       string `json:"link_title"`
	LinkPermalink   string `json:"link_permalink"`
	Score           int    `json:"score"`
	IsOP            bool   `json:"is_op"`
	ParentTitle     string `json:"parent_title,omitempty"`
	ParentURL       string `json:"parent_url,omitempty"`
}

// CommitGroup bundles orphan commits sharing (repo, branch, calendar
// date). It is a peer of Item under Entry, never an Item itself.
type CommitGroup struct {
	Type            string `json:"type"` // always "commit_group"
	Repo            string `json:"repo"`
	Branch          string `json:"branch"`
	Date            string `json:"date"` // YYYY-MM-DD
	Commits         []Item `json:"commits"`
	TotalAdditions  int    `json:"total_additions"`
	TotalDeletions  int    `json:"total_deletions"`
	TotalFiles      int    `json:"total_files_changed"`
}

// Entry is either a standalone Item or a CommitGroup. Exactly one of
// the two fields is set.
type Entry struct {
	Item         *Item
	CommitGroup  *CommitGroup
}

// Timestamp returns the entry's sort/group key timestamp.
func (e Entry) Timestamp() time.Time {
	if e.CommitGroup != nil && len(e.CommitGroup.Commits) > 0 {
		latest := e.CommitGroup.Commits[0].Timestamp
		for _, c := range e.CommitGroup.Commits[1:] {
			if c.Timestamp.After(latest) {
				latest = c.Timestamp
			}
		}
		return latest
	}
	if e.Item != nil {
		return e.Item.Timestamp
	}
	return time.Time{}
}

// DateGroup buckets entries under one UTC calendar date.
type DateGroup struct {
	Date  string  `json:"date"`
	Items []Entry `json:"items"`
}

// Artifact is the full timeline document stored at timeline/{user_id}.
type Artifact struct {
	UserID      string      `json:"user_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Groups      []DateGroup `json:"groups"`
}
