// Package normalize implements C5: a family of pure functions
// converting each platform's raw provider payload into the common
// timeline.Item sequence. Normalizers never panic on malformed input —
// individual bad items are dropped and logged, never fatal.
package normalize

import "time"

// GitHostRaw is the composite payload a git-host fetch produces:
// account meta plus, per repository, its commits and pull requests.
type GitHostRaw struct {
	Meta  GitHostMeta            `json:"meta"`
	Repos map[string]GitHostRepo `json:"repos"`
}

type GitHostMeta struct {
	Username           string                `json:"username"`
	Repositories       []GitHostRepoListing `json:"repositories"`
	TotalReposAvailable int                  `json:"total_repos_available"`
	ReposFetched        int                  `json:"repos_fetched"`
	FetchedAt           time.Time            `json:"fetched_at"`
}

type GitHostRepoListing struct {
	Owner          string    `json:"owner"`
	Name           string    `json:"name"`
	FullName       string    `json:"full_name"`
	DefaultBranch  string    `json:"default_branch"`
	Branches       []string  `json:"branches"`
	IsPrivate      bool      `json:"is_private"`
	PushedAt       time.Time `json:"pushed_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type GitHostRepo struct {
	Commits map[string]GitHostCommit `json:"commits"`
	PRs     map[string]GitHostPR     `json:"prs"`
}

type GitHostCommit struct {
	SHA          string    `json:"sha"`
	Message      string    `json:"message"`
	Branch       string    `json:"branch"`
	Timestamp    time.Time `json:"timestamp"`
	URL          string    `json:"url,omitempty"`
	Additions    *int      `json:"additions,omitempty"`
	Deletions    *int      `json:"deletions,omitempty"`
	FilesChanged *int      `json:"files_changed,omitempty"`
}

type GitHostPR struct {
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	State          string    `json:"state"`
	Action         string    `json:"action"`
	HeadRef        string    `json:"head_ref"`
	BaseRef        string    `json:"base_ref"`
	CommitSHAs     []string  `json:"commit_shas"`
	MergeCommitSHA string    `json:"merge_commit_sha,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	URL            string    `json:"url,omitempty"`
}

// MicroblogRaw is a page of the author's most recent feed items.
type MicroblogRaw struct {
	Items  []MicroblogPost `json:"items"`
	Cursor string          `json:"cursor,omitempty"`
}

type MicroblogEmbed struct {
	Images []any `json:"images,omitempty"`
}

type MicroblogPost struct {
	URI          string         `json:"uri"`
	Text         string         `json:"text"`
	AuthorHandle string         `json:"author_handle"`
	CreatedAt    time.Time      `json:"created_at"`
	ReplyCount   int            `json:"reply_count"`
	RepostCount  int            `json:"repost_count"`
	LikeCount    int            `json:"like_count"`
	Embed        MicroblogEmbed `json:"embed"`
	IsReply      bool           `json:"is_reply"`
	ReasonTag    string         `json:"reason_tag,omitempty"`
}

// RepostReasonTag is the marker value MicroblogPost.ReasonTag carries
// for reposts.
const RepostReasonTag = "repost"

// VideoRaw is a page of playlist items.
type VideoRaw struct {
	Items []VideoItem `json:"items"`
}

type VideoThumbnails struct {
	High    string `json:"high,omitempty"`
	Medium  string `json:"medium,omitempty"`
	Default string `json:"default,omitempty"`
}

type VideoItem struct {
	VideoID      string          `json:"video_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ChannelID    string          `json:"channel_id"`
	ChannelTitle string          `json:"channel_title"`
	PublishedAt  time.Time       `json:"published_at"`
	Thumbnails   VideoThumbnails `json:"thumbnails"`
}

// TaskTrackerRaw is the full current task list.
type TaskTrackerRaw struct {
	Tasks []TaskTrackerTask `json:"tasks"`
}

type TaskTrackerTask struct {
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Project     string     `json:"project"`
	Tags        []string   `json:"tags,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// AggregatorRaw is the link-aggregator composite payload.
type AggregatorRaw struct {
	Meta     AggregatorMeta              `json:"meta"`
	Posts    map[string]AggregatorPost    `json:"posts"`
	Comments map[string]AggregatorComment `json:"comments"`
}

type AggregatorMeta struct {
	SubredditsActive []string `json:"subreddits_active"`
}

type AggregatorPost struct {
	PostID    string    `json:"post_id"`
	Title     string    `json:"title"`
	Subreddit string    `json:"subreddit"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	Permalink string    `json:"permalink"`
	Body      string    `json:"body,omitempty"`
}

type AggregatorComment struct {
	CommentID     string    `json:"comment_id"`
	Body          string    `json:"body"`
	Subreddit     string    `json:"subreddit"`
	Score         int       `json:"score"`
	IsSubmitter   bool      `json:"is_submitter"`
	ParentTitle   string    `json:"parent_title,omitempty"`
	ParentURL     string    `json:"parent_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Permalink     string    `json:"permalink,omitempty"`
}

// MicroblogLongRaw is a bounded page of user-authored long-form posts.
type MicroblogLongRaw struct {
	Meta   MicroblogLongMeta          `json:"meta"`
	Tweets map[string]MicroblogLongTweet `json:"tweets"`
}

type MicroblogLongMeta struct {
	VerifiedType string `json:"verified_type"`
}

type MicroblogLongTweet struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorHandle string   `json:"author_handle"`
	CreatedAt   time.Time `json:"created_at"`
	URL         string    `json:"url,omitempty"`
}
