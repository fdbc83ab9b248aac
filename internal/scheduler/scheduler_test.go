package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/credential"
	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/objectstore"
	"github.com/f0rbit/media-timeline/internal/platform"
	"github.com/f0rbit/media-timeline/internal/provider"
	"github.com/f0rbit/media-timeline/internal/ratepolicy"
	"github.com/f0rbit/media-timeline/internal/repo"
	"github.com/f0rbit/media-timeline/internal/timeline"
)

var testKey = credential.DeriveKey([]byte("test-passphrase"), []byte("test-salt"))

func encryptedToken(t *testing.T, plaintext string) string {
	t.Helper()
	ct, err := credential.Encrypt([]byte(plaintext), testKey)
	if err != nil {
		t.Fatalf("encrypt test token: %v", err)
	}
	return ct
}

type harness struct {
	r         *repo.MemoryRepository
	objects   *objectstore.Registry
	providers *provider.Registry
	sched     *Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := repo.NewMemoryRepository()
	backend := objectstore.NewMemoryBackend()
	objects := objectstore.NewRegistry(backend, r)
	providers := provider.NewRegistry()

	cfg := DefaultConfig()
	cfg.EncryptionKey = testKey
	s := New(r, objects, providers, zerolog.Nop(), cfg)

	return &harness{r: r, objects: objects, providers: providers, sched: s}
}

func seedGitHostAccount(t *testing.T, h *harness, accountID string, owners []string) repo.Account {
	t.Helper()
	a := repo.Account{
		ID:                   accountID,
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: encryptedToken(t, "token-"+accountID),
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	for _, userID := range owners {
		h.r.SeedAccount(a, userID, repo.RoleOwner)
	}
	return a
}

func singleCommitRaw(repoFullName, sha, message string, ts time.Time) normalize.GitHostRaw {
	return normalize.GitHostRaw{
		Meta: normalize.GitHostMeta{
			Username:     "u1",
			Repositories: []normalize.GitHostRepoListing{{Owner: "u1", Name: "p", FullName: repoFullName, DefaultBranch: "main"}},
			FetchedAt:    ts,
		},
		Repos: map[string]normalize.GitHostRepo{
			repoFullName: {
				Commits: map[string]normalize.GitHostCommit{
					sha: {SHA: sha, Message: message, Branch: "main", Timestamp: ts},
				},
			},
		},
	}
}

func readTimeline(t *testing.T, h *harness, userID string) (timeline.Artifact, repo.SnapshotMeta) {
	t.Helper()
	store := h.objects.Store(platform.TimelineStoreID(userID))
	var artifact timeline.Artifact
	meta, err := store.GetLatestJSON(context.Background(), &artifact)
	if err != nil {
		t.Fatalf("read timeline for %s: %v", userID, err)
	}
	return artifact, meta
}

// S1 — single user, single commit, fresh install.
func TestS1SingleUserSingleCommitFreshInstall(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	ts := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	raw := singleCommitRaw("u1/p", "aaa111", "Initial commit", ts)
	h.providers.Register(provider.NewMemoryProvider(platform.GitHost, raw))

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ProcessedAccounts != 1 || result.TimelinesGenerated != 1 || len(result.FailedAccounts) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.UpdatedUsers) != 1 || result.UpdatedUsers[0] != "U1" {
		t.Fatalf("expected updated_users=[U1], got %v", result.UpdatedUsers)
	}

	artifact, _ := readTimeline(t, h, "U1")
	if len(artifact.Groups) != 1 || artifact.Groups[0].Date != "2024-01-15" {
		t.Fatalf("expected one date group 2024-01-15, got %+v", artifact.Groups)
	}
	entries := artifact.Groups[0].Items
	if len(entries) != 1 || entries[0].CommitGroup == nil {
		t.Fatalf("expected one commit group entry, got %+v", entries)
	}
	cg := entries[0].CommitGroup
	if cg.Repo != "u1/p" || cg.Branch != "main" || len(cg.Commits) != 1 || cg.Commits[0].Commit.SHA != "aaa111" {
		t.Fatalf("unexpected commit group: %+v", cg)
	}
}

// S2 — rate-limited account is skipped entirely.
func TestS2RateLimitedAccountSkipped(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	remaining := 0
	resetAt := time.Now().Add(300 * time.Second)
	if err := h.r.UpsertRateState(context.Background(), "A1", ratepolicy.State{Remaining: &remaining, ResetAt: &resetAt}); err != nil {
		t.Fatalf("seed rate state: %v", err)
	}

	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "msg", time.Now()))
	h.providers.Register(mp)

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ProcessedAccounts != 1 || len(result.UpdatedUsers) != 0 || result.TimelinesGenerated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if mp.CallCount() != 0 {
		t.Fatalf("expected provider not to be called while gated, got %d calls", mp.CallCount())
	}
}

// S3 — circuit open after failures behaves identically to S2.
func TestS3CircuitOpenSkipsAccount(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	openUntil := time.Now().Add(300 * time.Second)
	if err := h.r.UpsertRateState(context.Background(), "A1", ratepolicy.State{ConsecutiveFailures: 5, CircuitOpenUntil: &openUntil}); err != nil {
		t.Fatalf("seed rate state: %v", err)
	}

	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "msg", time.Now()))
	h.providers.Register(mp)

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ProcessedAccounts != 1 || len(result.UpdatedUsers) != 0 || result.TimelinesGenerated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if mp.CallCount() != 0 {
		t.Fatalf("expected provider not to be called while circuit open, got %d calls", mp.CallCount())
	}
}

// S4 — a shared account fetched once still updates every member's timeline.
func TestS4SharedAccountThreeMembers(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1", "U2", "U3"})

	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "msg", time.Now()))
	h.providers.Register(mp)

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if mp.CallCount() != 1 {
		t.Fatalf("expected exactly one provider fetch for the shared account, got %d", mp.CallCount())
	}
	if result.TimelinesGenerated != 3 {
		t.Fatalf("expected 3 timelines generated, got %d", result.TimelinesGenerated)
	}
	gotUsers := append([]string(nil), result.UpdatedUsers...)
	sort.Strings(gotUsers)
	want := []string{"U1", "U2", "U3"}
	if len(gotUsers) != len(want) {
		t.Fatalf("expected updated_users %v, got %v", want, gotUsers)
	}
	for i := range want {
		if gotUsers[i] != want[i] {
			t.Fatalf("expected updated_users %v, got %v", want, gotUsers)
		}
	}

	for _, u := range want {
		artifact, _ := readTimeline(t, h, u)
		if artifact.UserID != u {
			t.Fatalf("timeline for %s has wrong user id %q", u, artifact.UserID)
		}
	}
}

// S5 — a PR absorbs its own commits out of the standalone commit group.
func TestS5PRAbsorbsCommits(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	ts := time.Now().UTC()
	raw := normalize.GitHostRaw{
		Meta: normalize.GitHostMeta{
			Username:     "u1",
			Repositories: []normalize.GitHostRepoListing{{Owner: "u1", Name: "p", FullName: "u1/p", DefaultBranch: "main"}},
			FetchedAt:    ts,
		},
		Repos: map[string]normalize.GitHostRepo{
			"u1/p": {
				Commits: map[string]normalize.GitHostCommit{
					"pr1-a":   {SHA: "pr1-a", Message: "first", Branch: "feature", Timestamp: ts},
					"pr1-b":   {SHA: "pr1-b", Message: "second", Branch: "feature", Timestamp: ts.Add(time.Minute)},
					"orphanx": {SHA: "orphanx", Message: "standalone", Branch: "main", Timestamp: ts.Add(2 * time.Minute)},
				},
				PRs: map[string]normalize.GitHostPR{
					"1": {Number: 1, Title: "Feature", State: "open", CommitSHAs: []string{"pr1-a", "pr1-b"}, CreatedAt: ts},
				},
			},
		},
	}
	h.providers.Register(provider.NewMemoryProvider(platform.GitHost, raw))

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TimelinesGenerated != 1 {
		t.Fatalf("expected one timeline generated, got %+v", result)
	}

	artifact, _ := readTimeline(t, h, "U1")
	var commitGroups, prEntries int
	var sawOrphan bool
	var prCommitCount int
	for _, g := range artifact.Groups {
		for _, e := range g.Items {
			if e.CommitGroup != nil {
				commitGroups++
				for _, c := range e.CommitGroup.Commits {
					if c.Commit.SHA == "orphanx" {
						sawOrphan = true
					}
					if c.Commit.SHA == "pr1-a" || c.Commit.SHA == "pr1-b" {
						t.Fatalf("PR-absorbed commit %s leaked into a standalone commit group", c.Commit.SHA)
					}
				}
			}
			if e.Item != nil && e.Item.Type == timeline.ItemPullRequest {
				prEntries++
				if e.Item.PullRequest != nil {
					prCommitCount = len(e.Item.PullRequest.Commits)
				}
			}
		}
	}
	if commitGroups != 1 || !sawOrphan {
		t.Fatalf("expected exactly one commit group containing the orphan commit, got %d groups (sawOrphan=%v)", commitGroups, sawOrphan)
	}
	if prEntries != 1 || prCommitCount != 2 {
		t.Fatalf("expected one PR entry with 2 attached commits, got %d entries with %d commits", prEntries, prCommitCount)
	}
}

// S6 — incremental merge across two invocations never duplicates a commit
// and always bumps the content hash and version.
func TestS6IncrementalMerge(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	ts := time.Now().UTC()
	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "first", ts))
	h.providers.Register(mp)

	if _, err := h.sched.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	commitsStore := h.objects.Store(platform.GitHostCommitsStoreID(h.sched.config.GitHostName, "A1", "u1", "p"))
	firstSnap, err := commitsStore.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("read commits after first run: %v", err)
	}

	mp.Payload = normalize.GitHostRaw{
		Meta: normalize.GitHostMeta{Username: "u1", Repositories: []normalize.GitHostRepoListing{{Owner: "u1", Name: "p", FullName: "u1/p", DefaultBranch: "main"}}, FetchedAt: ts},
		Repos: map[string]normalize.GitHostRepo{
			"u1/p": {Commits: map[string]normalize.GitHostCommit{
				"aaa111": {SHA: "aaa111", Message: "first", Branch: "main", Timestamp: ts},
				"bbb222": {SHA: "bbb222", Message: "second", Branch: "main", Timestamp: ts.Add(time.Minute)},
			}},
		},
	}

	if _, err := h.sched.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	secondSnap, err := commitsStore.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("read commits after second run: %v", err)
	}
	if secondSnap.Meta.Version == firstSnap.Meta.Version {
		t.Fatalf("expected a new version after the second merge")
	}
	if secondSnap.Meta.ContentHash == firstSnap.Meta.ContentHash {
		t.Fatalf("expected content hash to change once bbb222 is merged in")
	}

	decoded, err := decodeCommitsObject(secondSnap.Data)
	if err != nil {
		t.Fatalf("decode merged commits: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected exactly 2 merged commits, got %d", len(decoded))
	}
	if _, ok := decoded["aaa111"]; !ok {
		t.Fatalf("expected aaa111 to survive the merge")
	}
	if _, ok := decoded["bbb222"]; !ok {
		t.Fatalf("expected bbb222 to be added by the merge")
	}
}

func decodeCommitsObject(raw []byte) (map[string]any, error) {
	var decoded struct {
		Commits map[string]any `json:"commits"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded.Commits, nil
}

// S7 — when every fetch fails this invocation, the prior timeline for the
// affected user is left untouched.
func TestS7AllFetchesFailPriorTimelinePreserved(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	// Seed a prior timeline snapshot directly, as if written by an earlier
	// successful invocation.
	timelineStore := h.objects.Store(platform.TimelineStoreID("U1"))
	priorResult, err := timelineStore.PutJSON(context.Background(), timeline.Artifact{UserID: "U1", GeneratedAt: time.Now().UTC()}, objectstore.PutOptions{})
	if err != nil {
		t.Fatalf("seed prior timeline: %v", err)
	}

	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "msg", time.Now()))
	mp.SetSimulateAuthExpired()
	h.providers.Register(mp)

	result, err := h.sched.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.TimelinesGenerated != 0 {
		t.Fatalf("expected no timelines generated, got %+v", result)
	}
	if len(result.FailedAccounts) != 1 || result.FailedAccounts[0] != "A1" {
		t.Fatalf("expected A1 in failed_accounts, got %v", result.FailedAccounts)
	}

	_, meta := readTimeline(t, h, "U1")
	if meta.Version != priorResult.Version {
		t.Fatalf("expected prior timeline version %q to be preserved, got %q", priorResult.Version, meta.Version)
	}
}

// Invariant 3 — gating precedence holds even when both rate and circuit
// state would independently gate the account.
func TestGatingPrecedenceBothConditions(t *testing.T) {
	h := newHarness(t)
	seedGitHostAccount(t, h, "A1", []string{"U1"})

	remaining := 0
	resetAt := time.Now().Add(time.Minute)
	openUntil := time.Now().Add(time.Minute)
	if err := h.r.UpsertRateState(context.Background(), "A1", ratepolicy.State{
		Remaining: &remaining, ResetAt: &resetAt, ConsecutiveFailures: 5, CircuitOpenUntil: &openUntil,
	}); err != nil {
		t.Fatalf("seed rate state: %v", err)
	}

	mp := provider.NewMemoryProvider(platform.GitHost, singleCommitRaw("u1/p", "aaa111", "msg", time.Now()))
	h.providers.Register(mp)

	if _, err := h.sched.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if mp.CallCount() != 0 {
		t.Fatalf("expected the account to remain gated, got %d calls", mp.CallCount())
	}
}
