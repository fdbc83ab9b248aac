package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/timeline"
)

func TestGitHostCommitIDAndTitleTruncation(t *testing.T) {
	longMessage := strings.Repeat("x", 100) + "\nsecond line"
	raw := GitHostRaw{
		Repos: map[string]GitHostRepo{
			"u1/p": {
				Commits: map[string]GitHostCommit{
					"aaa1112233445566": {SHA: "aaa1112233445566", Message: longMessage, Branch: "main", Timestamp: time.Now()},
				},
			},
		},
	}
	items := GitHost(zerolog.Nop(), raw)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ID != "git:commit:u1/p:aaa1112" {
		t.Fatalf("expected sha truncated to 7 chars in id, got %s", items[0].ID)
	}
	if !strings.HasSuffix(items[0].Title, "…") || len([]rune(items[0].Title)) != commitTitleMaxLen+1 {
		t.Fatalf("expected title truncated at 72 runes with ellipsis, got %q (%d runes)", items[0].Title, len([]rune(items[0].Title)))
	}
}

func TestGitHostDropsCommitWithEmptySHA(t *testing.T) {
	raw := GitHostRaw{
		Repos: map[string]GitHostRepo{
			"u1/p": {Commits: map[string]GitHostCommit{"": {Message: "oops"}}},
		},
	}
	items := GitHost(zerolog.Nop(), raw)
	if len(items) != 0 {
		t.Fatalf("expected malformed commit to be dropped, got %d items", len(items))
	}
}

func TestGitHostPRUsesMergedAtOverCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	merged := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	raw := GitHostRaw{
		Repos: map[string]GitHostRepo{
			"u1/p": {
				PRs: map[string]GitHostPR{
					"1": {Number: 1, Title: "Add feature", CreatedAt: created, MergedAt: &merged},
				},
			},
		},
	}
	items := GitHost(zerolog.Nop(), raw)
	if len(items) != 1 {
		t.Fatalf("expected 1 PR item, got %d", len(items))
	}
	if !items[0].Timestamp.Equal(merged) {
		t.Fatalf("expected pr timestamp to use merged_at, got %v", items[0].Timestamp)
	}
	if items[0].ID != "git:pr:u1/p:1" {
		t.Fatalf("unexpected PR id: %s", items[0].ID)
	}
}

func TestGitHostPRDuplicateEventsMostRecentWins(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	raw := GitHostRaw{
		Repos: map[string]GitHostRepo{
			"u1/p": {
				PRs: map[string]GitHostPR{
					"1a": {Number: 1, Title: "opened", CreatedAt: older, State: "open"},
					"1b": {Number: 1, Title: "merged", CreatedAt: older, MergedAt: &newer, State: "merged"},
				},
			},
		},
	}
	items := GitHost(zerolog.Nop(), raw)
	if len(items) != 1 {
		t.Fatalf("expected dedup to a single PR item, got %d", len(items))
	}
	if items[0].PullRequest.State != timeline.PRStateMerged {
		t.Fatalf("expected most recent PR event to win, got state %s", items[0].PullRequest.State)
	}
}

func TestMicroblogIDFromURIAndRepostFlag(t *testing.T) {
	raw := MicroblogRaw{Items: []MicroblogPost{
		{URI: "at://did:plc:abc/app.bsky.feed.post/xyz123", Text: "hello world", ReasonTag: RepostReasonTag},
	}}
	items := Microblog(zerolog.Nop(), raw)
	if items[0].ID != "bsky:post:xyz123" {
		t.Fatalf("expected id from last uri segment, got %s", items[0].ID)
	}
	if !items[0].Post.IsRepost {
		t.Fatalf("expected repost flag to be set from reason tag")
	}
}

func TestVideoThumbnailPreference(t *testing.T) {
	raw := VideoRaw{Items: []VideoItem{
		{VideoID: "abc", Thumbnails: VideoThumbnails{Medium: "med.jpg", Default: "def.jpg"}},
	}}
	items := Video(zerolog.Nop(), raw)
	if items[0].Video.ThumbnailURL != "med.jpg" {
		t.Fatalf("expected medium over default when high is absent, got %s", items[0].Video.ThumbnailURL)
	}
}

func TestVerifiedTypeMapping(t *testing.T) {
	cases := map[string]string{"blue": "blue", "business": "business", "government": "government", "weird": "none", "": "none"}
	for in, want := range cases {
		if got := VerifiedType(in); got != want {
			t.Fatalf("VerifiedType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAggregatorCommentTitleFromBody(t *testing.T) {
	raw := AggregatorRaw{Comments: map[string]AggregatorComment{
		"c1": {CommentID: "c1", Body: "first line\nsecond line", IsSubmitter: true},
	}}
	items := Aggregator(zerolog.Nop(), raw)
	if items[0].Title != "first line" {
		t.Fatalf("expected title to be first line of body, got %q", items[0].Title)
	}
	if !items[0].Comment.IsOP {
		t.Fatalf("expected is_op to propagate from is_submitter")
	}
}
