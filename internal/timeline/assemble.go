package timeline

import (
	"sort"
)

// Assemble implements C6: given every normalized item contributing to
// one user's timeline, produce the grouped, deduplicated, descending
// artifact body (everything but UserID/GeneratedAt, which the caller
// stamps). Pure and side-effect free.
func Assemble(items []Item) []DateGroup {
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	absorbed := absorbedCommitSHAs(sorted)

	var standaloneCommits []Item
	var enrichedPRs []Item
	var others []Item

	prBySHA := attachCommits(sorted, absorbed)

	for _, it := range sorted {
		switch it.Type {
		case ItemCommit:
			if _, ok := absorbed[it.Commit.SHA]; ok {
				continue
			}
			standaloneCommits = append(standaloneCommits, it)
		case ItemPullRequest:
			if enriched, ok := prBySHA[prKey(it)]; ok {
				enrichedPRs = append(enrichedPRs, enriched)
			} else {
				enrichedPRs = append(enrichedPRs, it)
			}
		default:
			others = append(others, it)
		}
	}

	groups := groupOrphanCommits(standaloneCommits)

	entries := make([]Entry, 0, len(groups)+len(enrichedPRs)+len(others))
	for i := range groups {
		g := groups[i]
		entries = append(entries, Entry{CommitGroup: &g})
	}
	for i := range enrichedPRs {
		it := enrichedPRs[i]
		entries = append(entries, Entry{Item: &it})
	}
	for i := range others {
		it := others[i]
		entries = append(entries, Entry{Item: &it})
	}

	return partitionByDate(entries)
}

// absorbedCommitSHAs collects S := ⋃ {pr.commit_shas ∪
// {pr.merge_commit_sha}} across all PR items.
func absorbedCommitSHAs(items []Item) map[string]struct{} {
	out := make(map[string]struct{})
	for _, it := range items {
		if it.Type != ItemPullRequest || it.PullRequest == nil {
			continue
		}
		for _, sha := range it.PullRequest.CommitSHAs {
			out[sha] = struct{}{}
		}
		if it.PullRequest.MergeCommitSHA != "" {
			out[it.PullRequest.MergeCommitSHA] = struct{}{}
		}
	}
	return out
}

func prKey(it Item) string {
	return it.PullRequest.Repo + "#" + it.ID
}

// attachCommits builds, for every PR item, an enriched copy whose
// Commits field lists the matching {sha, message, url} triples in the
// stable order the PR's CommitSHAs names them.
func attachCommits(items []Item, absorbed map[string]struct{}) map[string]Item {
	bySHA := make(map[string]Item)
	for _, it := range items {
		if it.Type == ItemCommit {
			bySHA[it.Commit.SHA] = it
		}
	}

	out := make(map[string]Item)
	for _, it := range items {
		if it.Type != ItemPullRequest || it.PullRequest == nil {
			continue
		}
		pr := *it.PullRequest
		commits := make([]CommitRef, 0, len(pr.CommitSHAs))
		for _, sha := range pr.CommitSHAs {
			c, ok := bySHA[sha]
			if !ok {
				continue
			}
			commits = append(commits, CommitRef{SHA: sha, Message: c.Commit.Message, URL: c.URL})
		}
		pr.Commits = commits
		enriched := it
		enriched.PullRequest = &pr
		out[prKey(it)] = enriched
		_ = absorbed
	}
	return out
}

// groupOrphanCommits groups commits by (repo, branch, UTC calendar
// date), summing totals and sorting each group's commits descending.
func groupOrphanCommits(commits []Item) []CommitGroup {
	type key struct{ repo, branch, date string }
	index := make(map[key]int)
	var groups []CommitGroup

	for _, c := range commits {
		date := c.Timestamp.UTC().Format("2006-01-02")
		k := key{c.Commit.Repo, c.Commit.Branch, date}
		idx, ok := index[k]
		if !ok {
			groups = append(groups, CommitGroup{
				Type:   "commit_group",
				Repo:   c.Commit.Repo,
				Branch: c.Commit.Branch,
				Date:   date,
			})
			idx = len(groups) - 1
			index[k] = idx
		}
		groups[idx].Commits = append(groups[idx].Commits, c)
		if c.Commit.Additions != nil {
			groups[idx].TotalAdditions += *c.Commit.Additions
		}
		if c.Commit.Deletions != nil {
			groups[idx].TotalDeletions += *c.Commit.Deletions
		}
		if c.Commit.FilesChanged != nil {
			groups[idx].TotalFiles += *c.Commit.FilesChanged
		}
	}

	for i := range groups {
		sort.SliceStable(groups[i].Commits, func(a, b int) bool {
			return groups[i].Commits[a].Timestamp.After(groups[i].Commits[b].Timestamp)
		})
	}
	return groups
}

// partitionByDate buckets entries by their UTC calendar date key,
// emitting groups in strictly descending date order.
func partitionByDate(entries []Entry) []DateGroup {
	index := make(map[string]int)
	var groups []DateGroup

	for _, e := range entries {
		var date string
		if e.CommitGroup != nil {
			date = e.CommitGroup.Date
		} else {
			date = e.Timestamp().UTC().Format("2006-01-02")
		}
		idx, ok := index[date]
		if !ok {
			groups = append(groups, DateGroup{Date: date})
			idx = len(groups) - 1
			index[date] = idx
		}
		groups[idx].Items = append(groups[idx].Items, e)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date > groups[j].Date
	})
	return groups
}
