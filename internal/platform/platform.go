// Package platform defines the closed set of upstream platforms the
// ingestion engine knows how to fetch from, and the single parser for
// store identities that every other package consults instead of
// splitting strings itself.
package platform

import (
	"fmt"
	"strings"
)

// Platform identifies one of the supported upstream services.
type Platform string

const (
	GitHost       Platform = "git-host"
	Microblog     Platform = "microblog"
	Video         Platform = "video"
	TaskTracker   Platform = "task-tracker"
	Aggregator    Platform = "aggregator"
	MicroblogLong Platform = "microblog-long"
)

// All lists every platform the engine dispatches to.
var All = []Platform{GitHost, Microblog, Video, TaskTracker, Aggregator, MicroblogLong}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	for _, known := range All {
		if p == known {
			return true
		}
	}
	return false
}

// StoreKind discriminates the shape of a store id.
type StoreKind int

const (
	KindUnknown StoreKind = iota
	KindRaw
	KindTimeline
	KindGitHostMeta
	KindGitHostCommits
	KindGitHostPRs
	KindAggregatorMeta
	KindAggregatorPosts
	KindAggregatorComments
	KindMicroblogLongMeta
	KindMicroblogLongTweets
)

// StoreID is the parsed form of a '/'-delimited store identity. Callers
// never split store id strings themselves; they call Parse and switch on
// Kind.
type StoreID struct {
	Kind     StoreKind
	Raw      string
	Platform Platform // set for KindRaw
	AccountID string  // set for KindRaw and the multi-store kinds
	UserID    string  // set for KindTimeline
	Owner     string  // set for repo-scoped multi-store kinds
	Repo      string  // set for repo-scoped multi-store kinds
	Host      string  // set for git-host multi-store kinds
}

// String reconstructs the canonical store id string.
func (id StoreID) String() string { return id.Raw }

// Parse recognizes the canonical store id schemas from spec.md §3:
//
//	raw/{platform}/{account_id}
//	timeline/{user_id}
//	{host}/{account_id}/meta
//	{host}/{account_id}/commits/{owner}/{repo}
//	{host}/{account_id}/prs/{owner}/{repo}
//	aggregator/{account_id}/meta|posts|comments
//	microblog-long/{account_id}/meta|tweets
func Parse(raw string) (StoreID, error) {
	if raw == "" || strings.Contains(raw, "//") {
		return StoreID{}, fmt.Errorf("platform: invalid store id %q", raw)
	}
	parts := strings.Split(raw, "/")
	for _, p := range parts {
		if p == "" {
			return StoreID{}, fmt.Errorf("platform: invalid store id %q: empty component", raw)
		}
	}

	switch {
	case parts[0] == "raw" && len(parts) == 3:
		p := Platform(parts[1])
		if !p.Valid() {
			return StoreID{}, fmt.Errorf("platform: unknown platform in store id %q", raw)
		}
		return StoreID{Kind: KindRaw, Raw: raw, Platform: p, AccountID: parts[2]}, nil

	case parts[0] == "timeline" && len(parts) == 2:
		return StoreID{Kind: KindTimeline, Raw: raw, UserID: parts[1]}, nil

	case parts[0] == string(Aggregator) && len(parts) == 3:
		switch parts[2] {
		case "meta":
			return StoreID{Kind: KindAggregatorMeta, Raw: raw, AccountID: parts[1]}, nil
		case "posts":
			return StoreID{Kind: KindAggregatorPosts, Raw: raw, AccountID: parts[1]}, nil
		case "comments":
			return StoreID{Kind: KindAggregatorComments, Raw: raw, AccountID: parts[1]}, nil
		}
		return StoreID{}, fmt.Errorf("platform: unrecognized aggregator store id %q", raw)

	case parts[0] == string(MicroblogLong) && len(parts) == 3:
		switch parts[2] {
		case "meta":
			return StoreID{Kind: KindMicroblogLongMeta, Raw: raw, AccountID: parts[1]}, nil
		case "tweets":
			return StoreID{Kind: KindMicroblogLongTweets, Raw: raw, AccountID: parts[1]}, nil
		}
		return StoreID{}, fmt.Errorf("platform: unrecognized microblog-long store id %q", raw)

	case len(parts) == 3 && parts[2] == "meta":
		// {host}/{account_id}/meta — the git-host family is keyed by an
		// arbitrary host name (e.g. "github", "gitlab"), not a fixed token.
		return StoreID{Kind: KindGitHostMeta, Raw: raw, Host: parts[0], AccountID: parts[1]}, nil

	case len(parts) == 5 && parts[2] == "commits":
		return StoreID{Kind: KindGitHostCommits, Raw: raw, Host: parts[0], AccountID: parts[1], Owner: parts[3], Repo: parts[4]}, nil

	case len(parts) == 5 && parts[2] == "prs":
		return StoreID{Kind: KindGitHostPRs, Raw: raw, Host: parts[0], AccountID: parts[1], Owner: parts[3], Repo: parts[4]}, nil
	}

	return StoreID{}, fmt.Errorf("platform: unrecognized store id %q", raw)
}

// RawStoreID builds the canonical "raw/{platform}/{account_id}" id.
func RawStoreID(p Platform, accountID string) string {
	return fmt.Sprintf("raw/%s/%s", p, accountID)
}

// TimelineStoreID builds the canonical "timeline/{user_id}" id.
func TimelineStoreID(userID string) string {
	return fmt.Sprintf("timeline/%s", userID)
}

// GitHostMetaStoreID builds "{host}/{account_id}/meta".
func GitHostMetaStoreID(host, accountID string) string {
	return fmt.Sprintf("%s/%s/meta", host, accountID)
}

// GitHostCommitsStoreID builds "{host}/{account_id}/commits/{owner}/{repo}".
func GitHostCommitsStoreID(host, accountID, owner, repo string) string {
	return fmt.Sprintf("%s/%s/commits/%s/%s", host, accountID, owner, repo)
}

// GitHostPRsStoreID builds "{host}/{account_id}/prs/{owner}/{repo}".
func GitHostPRsStoreID(host, accountID, owner, repo string) string {
	return fmt.Sprintf("%s/%s/prs/%s/%s", host, accountID, owner, repo)
}

// AggregatorStoreID builds "aggregator/{account_id}/{part}" for
// part in {meta, posts, comments}.
func AggregatorStoreID(accountID, part string) string {
	return fmt.Sprintf("%s/%s/%s", Aggregator, accountID, part)
}

// MicroblogLongStoreID builds "microblog-long/{account_id}/{part}" for
// part in {meta, tweets}.
func MicroblogLongStoreID(accountID, part string) string {
	return fmt.Sprintf("%s/%s/%s", MicroblogLong, accountID, part)
}

// NamespacePrefixesForAccount returns every store-id prefix that could
// hold data for accountID, across all platform-specific schemas. Used by
// delete-account to find every namespace to purge.
func NamespacePrefixesForAccount(p Platform, accountID string) []string {
	base := RawStoreID(p, accountID)
	switch p {
	case Aggregator:
		return []string{base, AggregatorStoreID(accountID, "meta"), AggregatorStoreID(accountID, "posts"), AggregatorStoreID(accountID, "comments")}
	case MicroblogLong:
		return []string{base, MicroblogLongStoreID(accountID, "meta"), MicroblogLongStoreID(accountID, "tweets")}
	case GitHost:
		// Repo-scoped commits/prs stores are enumerated by the caller from
		// the account's meta snapshot, since the set of repos is dynamic;
		// the prefix below only covers the fixed stores.
		return []string{base}
	default:
		return []string{base}
	}
}
