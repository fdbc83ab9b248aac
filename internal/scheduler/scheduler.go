// Package scheduler implements C7: the ingestion orchestrator tying
// together the rate policy, provider adapters, merge engine, versioned
// object store, normalizer, and timeline assembler into one periodic
// invocation.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/f0rbit/media-timeline/internal/credential"
	"github.com/f0rbit/media-timeline/internal/merge"
	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/objectstore"
	"github.com/f0rbit/media-timeline/internal/platform"
	"github.com/f0rbit/media-timeline/internal/provider"
	"github.com/f0rbit/media-timeline/internal/ratepolicy"
	"github.com/f0rbit/media-timeline/internal/repo"
	"github.com/f0rbit/media-timeline/internal/timeline"
)

// Config controls one Scheduler's resource usage.
type Config struct {
	WorkerPoolSize          int
	InvocationTimeout       time.Duration
	ProviderFetchTimeout    time.Duration
	RatePolicy              ratepolicy.Policy
	EncryptionKey           []byte
	GitHostName             string // host token used when building git-host store ids, e.g. "git-host"
}

// DefaultConfig returns production defaults; WorkerPoolSize defaults to
// 4x the available CPUs, matching the teacher's pool-sizing heuristic
// for I/O-bound fan-out.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize:       runtime.GOMAXPROCS(0) * 4,
		InvocationTimeout:    5 * time.Minute,
		ProviderFetchTimeout: 30 * time.Second,
		RatePolicy:           ratepolicy.New(0, 0),
		GitHostName:          "git-host",
	}
}

// CronResult summarizes one invocation.
type CronResult struct {
	ProcessedAccounts  int      `json:"processed_accounts"`
	UpdatedUsers       []string `json:"updated_users"`
	FailedAccounts     []string `json:"failed_accounts"`
	TimelinesGenerated int      `json:"timelines_generated"`
}

// accountOutcome is the per-account settlement the scheduler's worker
// pool reports back to the invocation coordinator.
type accountOutcome struct {
	accountID string
	platform  platform.Platform
	success   bool
	gated     bool
}

// Scheduler wires the engine's components together for one invocation
// at a time; it holds no per-invocation state between Run calls.
type Scheduler struct {
	repo      repo.Repository
	objects   *objectstore.Registry
	providers *provider.Registry
	log       zerolog.Logger
	config    Config

	group singleflight.Group
}

// New returns a Scheduler.
func New(r repo.Repository, objects *objectstore.Registry, providers *provider.Registry, log zerolog.Logger, config Config) *Scheduler {
	return &Scheduler{repo: r, objects: objects, providers: providers, log: log.With().Str("component", "scheduler").Logger(), config: config}
}

// Run executes one ingestion invocation: enumerate active accounts,
// fan out per-account fetches under a bounded worker pool with
// per-account serialization, then rebuild the timeline of every user
// with at least one successful fetch this invocation.
func (s *Scheduler) Run(ctx context.Context) (CronResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.InvocationTimeout)
	defer cancel()

	byUser, err := s.repo.ListActiveAccountsByUser(ctx)
	if err != nil {
		return CronResult{}, fmt.Errorf("scheduler: enumerate active accounts: %w", err)
	}

	uniqueAccounts := make(map[string]repo.Account)
	for _, accounts := range byUser {
		for _, a := range accounts {
			uniqueAccounts[a.ID] = a
		}
	}

	outcomes := s.fanOutAccounts(ctx, uniqueAccounts)

	failedSet := make(map[string]struct{})
	succeededSet := make(map[string]struct{})
	for _, o := range outcomes {
		if o.success {
			succeededSet[o.accountID] = struct{}{}
		} else if !o.gated {
			failedSet[o.accountID] = struct{}{}
		}
	}

	var updatedUsers []string
	var failedAccounts []string
	for id := range failedSet {
		failedAccounts = append(failedAccounts, id)
	}

	timelinesGenerated := 0
	for userID, accounts := range byUser {
		hasSuccess := false
		for _, a := range accounts {
			if _, ok := succeededSet[a.ID]; ok {
				hasSuccess = true
				break
			}
		}
		if !hasSuccess {
			continue
		}
		if err := s.rebuildUserTimeline(ctx, userID, accounts); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("timeline rebuild failed")
			continue
		}
		updatedUsers = append(updatedUsers, userID)
		timelinesGenerated++
	}

	return CronResult{
		ProcessedAccounts:  len(uniqueAccounts),
		UpdatedUsers:       updatedUsers,
		FailedAccounts:     failedAccounts,
		TimelinesGenerated: timelinesGenerated,
	}, nil
}

// fanOutAccounts dispatches one fetch per unique account across a
// bounded worker pool, settling every account exactly once even though
// a shared account may be referenced by several users.
func (s *Scheduler) fanOutAccounts(ctx context.Context, accounts map[string]repo.Account) []accountOutcome {
	jobs := make(chan repo.Account)
	results := make(chan accountOutcome, len(accounts))

	var wg sync.WaitGroup
	poolSize := s.config.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- s.processAccount(ctx, a)
			}
		}()
	}

	go func() {
		for _, a := range accounts {
			jobs <- a
		}
		close(jobs)
	}()

	wg.Wait()
	close(results)

	outcomes := make([]accountOutcome, 0, len(accounts))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// processAccount runs the idle -> gated|fetching -> success|failure
// state machine for one account. singleflight is a backstop: the
// unique-account dedup above already guarantees at most one call per
// account id, but keying by account id here makes that guarantee
// explicit and panic-safe under future refactors.
func (s *Scheduler) processAccount(ctx context.Context, a repo.Account) accountOutcome {
	v, _, _ := s.group.Do(a.ID, func() (any, error) {
		return s.fetchAndStore(ctx, a), nil
	})
	return v.(accountOutcome)
}

func (s *Scheduler) fetchAndStore(ctx context.Context, a repo.Account) (outcome accountOutcome) {
	outcome = accountOutcome{accountID: a.ID, platform: a.Platform}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("account_id", a.ID).Msg("recovered from panic processing account")
			outcome.success = false
		}
	}()

	state, err := s.repo.GetRateState(ctx, a.ID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("load rate state failed")
		return outcome
	}
	if !s.config.RatePolicy.ShouldFetch(state, time.Now()) {
		outcome.gated = true
		return outcome
	}

	adapter, err := s.providers.Get(a.Platform)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("no provider registered")
		return outcome
	}

	token, err := credential.Decrypt(a.EncryptedAccessToken, s.config.EncryptionKey)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("token decryption failed")
		return outcome
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.ProviderFetchTimeout)
	defer cancel()
	raw, err := adapter.Fetch(fetchCtx, string(token))
	if err != nil {
		s.recordFailure(ctx, a.ID, state, err)
		return outcome
	}

	if err := s.storeFetchResult(ctx, a, raw); err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("store fetch result failed")
		s.recordFailure(ctx, a.ID, state, err)
		return outcome
	}

	newState := s.config.RatePolicy.UpdateOnSuccess(state, nil)
	if err := s.repo.UpsertRateState(ctx, a.ID, newState); err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("persist rate state failed")
	}
	if err := s.repo.TouchLastFetched(ctx, a.ID, time.Now().UTC()); err != nil {
		s.log.Error().Err(err).Str("account_id", a.ID).Msg("touch last_fetched_at failed")
	}

	outcome.success = true
	return outcome
}

func (s *Scheduler) recordFailure(ctx context.Context, accountID string, state ratepolicy.State, fetchErr error) {
	var retryAfter *int
	if perr, ok := fetchErr.(*provider.Error); ok && perr.Kind == provider.ErrRateLimited {
		ra := perr.RetryAfter
		retryAfter = &ra
	}
	newState := s.config.RatePolicy.UpdateOnFailure(state, retryAfter, time.Now())
	if err := s.repo.UpsertRateState(ctx, accountID, newState); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("persist failed rate state failed")
	}
}

// storeFetchResult dispatches by platform: multi-store platforms merge
// into the prior stored state before writing; single-raw platforms
// write the normalized raw payload directly.
func (s *Scheduler) storeFetchResult(ctx context.Context, a repo.Account, raw any) error {
	tags := []string{"platform:" + string(a.Platform), "account:" + a.ID}

	switch a.Platform {
	case platform.GitHost:
		return s.storeGitHost(ctx, a, raw.(normalize.GitHostRaw), tags)
	case platform.Aggregator:
		return s.storeAggregator(ctx, a, raw.(normalize.AggregatorRaw), tags)
	case platform.MicroblogLong:
		return s.storeMicroblogLong(ctx, a, raw.(normalize.MicroblogLongRaw), tags)
	default:
		return s.storeSingleRaw(ctx, a, raw, tags)
	}
}

func (s *Scheduler) storeSingleRaw(ctx context.Context, a repo.Account, raw any, tags []string) error {
	store := s.objects.Store(platform.RawStoreID(a.Platform, a.ID))
	_, err := store.PutJSON(ctx, raw, objectstore.PutOptions{Tags: tags})
	return err
}

func (s *Scheduler) storeGitHost(ctx context.Context, a repo.Account, raw normalize.GitHostRaw, tags []string) error {
	host := s.config.GitHostName

	metaStore := s.objects.Store(platform.GitHostMetaStoreID(host, a.ID))
	if _, err := metaStore.PutJSON(ctx, raw.Meta, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put git-host meta: %w", err)
	}

	for fullName, repoPayload := range raw.Repos {
		owner, name := splitFullName(fullName)

		commitsStore := s.objects.Store(platform.GitHostCommitsStoreID(host, a.ID, owner, name))
		existing, err := getLatestObjectOrEmpty(ctx, commitsStore)
		if err != nil {
			return err
		}
		incoming := map[string]any{"commits": toAnyMap(repoPayload.Commits)}
		result := merge.Commits(existing, incoming)
		body, err := merge.EncodeObject(result.Merged)
		if err != nil {
			return fmt.Errorf("scheduler: encode merged commits: %w", err)
		}
		if _, err := commitsStore.Put(ctx, body, objectstore.PutOptions{Tags: tags}); err != nil {
			return fmt.Errorf("scheduler: put commits for %s: %w", fullName, err)
		}

		prsStore := s.objects.Store(platform.GitHostPRsStoreID(host, a.ID, owner, name))
		existingPRs, err := getLatestObjectOrEmpty(ctx, prsStore)
		if err != nil {
			return err
		}
		incomingPRs := map[string]any{"pull_requests": toAnyMapPR(repoPayload.PRs)}
		prResult := merge.PullRequests(existingPRs, incomingPRs)
		prBody, err := merge.EncodeObject(prResult.Merged)
		if err != nil {
			return fmt.Errorf("scheduler: encode merged prs: %w", err)
		}
		if _, err := prsStore.Put(ctx, prBody, objectstore.PutOptions{Tags: tags}); err != nil {
			return fmt.Errorf("scheduler: put prs for %s: %w", fullName, err)
		}
	}
	return nil
}

func (s *Scheduler) storeAggregator(ctx context.Context, a repo.Account, raw normalize.AggregatorRaw, tags []string) error {
	metaStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "meta"))
	if _, err := metaStore.PutJSON(ctx, raw.Meta, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put aggregator meta: %w", err)
	}

	postsStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "posts"))
	existingPosts, err := getLatestObjectOrEmpty(ctx, postsStore)
	if err != nil {
		return err
	}
	postsResult := merge.AggregatorPosts(existingPosts, map[string]any{"posts": toAnyMapGeneric(raw.Posts)})
	postsBody, err := merge.EncodeObject(postsResult.Merged)
	if err != nil {
		return err
	}
	if _, err := postsStore.Put(ctx, postsBody, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put aggregator posts: %w", err)
	}

	commentsStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "comments"))
	existingComments, err := getLatestObjectOrEmpty(ctx, commentsStore)
	if err != nil {
		return err
	}
	commentsResult := merge.AggregatorComments(existingComments, map[string]any{"comments": toAnyMapGeneric(raw.Comments)})
	commentsBody, err := merge.EncodeObject(commentsResult.Merged)
	if err != nil {
		return err
	}
	if _, err := commentsStore.Put(ctx, commentsBody, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put aggregator comments: %w", err)
	}
	return nil
}

func (s *Scheduler) storeMicroblogLong(ctx context.Context, a repo.Account, raw normalize.MicroblogLongRaw, tags []string) error {
	metaStore := s.objects.Store(platform.MicroblogLongStoreID(a.ID, "meta"))
	if _, err := metaStore.PutJSON(ctx, raw.Meta, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put microblog-long meta: %w", err)
	}

	tweetsStore := s.objects.Store(platform.MicroblogLongStoreID(a.ID, "tweets"))
	existing, err := getLatestObjectOrEmpty(ctx, tweetsStore)
	if err != nil {
		return err
	}
	result := merge.MicroblogLongTweets(existing, map[string]any{"tweets": toAnyMapGeneric(raw.Tweets)})
	body, err := merge.EncodeObject(result.Merged)
	if err != nil {
		return err
	}
	if _, err := tweetsStore.Put(ctx, body, objectstore.PutOptions{Tags: tags}); err != nil {
		return fmt.Errorf("scheduler: put microblog-long tweets: %w", err)
	}
	return nil
}

func getLatestObjectOrEmpty(ctx context.Context, store *objectstore.Store) (map[string]any, error) {
	snap, err := store.GetLatest(ctx)
	if err != nil {
		if err == repo.ErrNotFound {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("scheduler: read existing snapshot %s: %w", store.StoreID(), err)
	}
	return merge.DecodeObject(snap.Data)
}

func splitFullName(fullName string) (owner, name string) {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:]
		}
	}
	return "", fullName
}

func toAnyMap(m map[string]normalize.GitHostCommit) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = structToAny(v)
	}
	return out
}

func toAnyMapPR(m map[string]normalize.GitHostPR) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = structToAny(v)
	}
	return out
}

func toAnyMapGeneric[T any](m map[string]T) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = structToAny(v)
	}
	return out
}

// structToAny round-trips v through JSON so the merge engine's
// generic map[string]any operations see the same shape the store
// would have decoded from disk.
func structToAny(v any) any {
	body, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out
}

// rebuildUserTimeline collects the latest snapshot of every account
// contributing to userID, normalizes and assembles them, and writes a
// new timeline/{user_id} snapshot with source provenance.
func (s *Scheduler) rebuildUserTimeline(ctx context.Context, userID string, accounts []repo.Account) error {
	var items []timeline.Item
	var parents []objectstore.ParentRef

	for _, a := range accounts {
		accountItems, accountParents, err := s.readAccountItems(ctx, a)
		if err != nil {
			s.log.Warn().Err(err).Str("account_id", a.ID).Msg("skipping account in timeline rebuild")
			continue
		}
		items = append(items, accountItems...)
		parents = append(parents, accountParents...)
	}

	groups := timeline.Assemble(items)
	artifact := timeline.Artifact{UserID: userID, GeneratedAt: time.Now().UTC(), Groups: groups}

	store := s.objects.Store(platform.TimelineStoreID(userID))
	_, err := store.PutJSON(ctx, artifact, objectstore.PutOptions{
		Tags:    []string{"user:" + userID},
		Parents: parents,
	})
	return err
}

func (s *Scheduler) readAccountItems(ctx context.Context, a repo.Account) ([]timeline.Item, []objectstore.ParentRef, error) {
	switch a.Platform {
	case platform.GitHost:
		return s.readGitHostItems(ctx, a)
	case platform.Aggregator:
		return s.readAggregatorItems(ctx, a)
	case platform.MicroblogLong:
		return s.readMicroblogLongItems(ctx, a)
	case platform.Microblog:
		return readSingleRawItems(ctx, s, a, func(raw normalize.MicroblogRaw) []timeline.Item {
			return normalize.Microblog(s.log, raw)
		})
	case platform.Video:
		return readSingleRawItems(ctx, s, a, func(raw normalize.VideoRaw) []timeline.Item {
			return normalize.Video(s.log, raw)
		})
	case platform.TaskTracker:
		return readSingleRawItems(ctx, s, a, func(raw normalize.TaskTrackerRaw) []timeline.Item {
			return normalize.TaskTracker(s.log, raw)
		})
	default:
		return nil, nil, fmt.Errorf("scheduler: unsupported platform %q", a.Platform)
	}
}

// readSingleRawItems is a free function, not a method, because Go
// methods cannot carry their own type parameters: T is inferred from
// normalizeFn at each call site above.
func readSingleRawItems[T any](ctx context.Context, s *Scheduler, a repo.Account, normalizeFn func(T) []timeline.Item) ([]timeline.Item, []objectstore.ParentRef, error) {
	store := s.objects.Store(platform.RawStoreID(a.Platform, a.ID))
	snap, err := store.GetLatest(ctx)
	if err != nil {
		return nil, nil, err
	}
	var raw T
	if err := json.Unmarshal(snap.Data, &raw); err != nil {
		return nil, nil, fmt.Errorf("scheduler: decode raw payload for %s: %w", store.StoreID(), err)
	}
	items := normalizeFn(raw)
	return items, []objectstore.ParentRef{{StoreID: store.StoreID(), Version: snap.Meta.Version, Role: "source"}}, nil
}

func (s *Scheduler) readGitHostItems(ctx context.Context, a repo.Account) ([]timeline.Item, []objectstore.ParentRef, error) {
	host := s.config.GitHostName
	metaStore := s.objects.Store(platform.GitHostMetaStoreID(host, a.ID))
	metaSnap, err := metaStore.GetLatest(ctx)
	if err != nil {
		return nil, nil, err
	}
	var meta normalize.GitHostMeta
	if err := json.Unmarshal(metaSnap.Data, &meta); err != nil {
		return nil, nil, fmt.Errorf("scheduler: decode git-host meta: %w", err)
	}

	parents := []objectstore.ParentRef{{StoreID: metaStore.StoreID(), Version: metaSnap.Meta.Version, Role: "source"}}
	repos := make(map[string]normalize.GitHostRepo)

	for _, listing := range meta.Repositories {
		owner, name := splitFullName(listing.FullName)

		commitsStore := s.objects.Store(platform.GitHostCommitsStoreID(host, a.ID, owner, name))
		commitsSnap, err := commitsStore.GetLatest(ctx)
		if err != nil && err != repo.ErrNotFound {
			return nil, nil, err
		}
		var commits map[string]normalize.GitHostCommit
		if err == nil {
			var decoded struct {
				Commits map[string]normalize.GitHostCommit `json:"commits"`
			}
			if err := json.Unmarshal(commitsSnap.Data, &decoded); err != nil {
				return nil, nil, fmt.Errorf("scheduler: decode commits for %s: %w", listing.FullName, err)
			}
			commits = decoded.Commits
			parents = append(parents, objectstore.ParentRef{StoreID: commitsStore.StoreID(), Version: commitsSnap.Meta.Version, Role: "source"})
		}

		prsStore := s.objects.Store(platform.GitHostPRsStoreID(host, a.ID, owner, name))
		prsSnap, err := prsStore.GetLatest(ctx)
		if err != nil && err != repo.ErrNotFound {
			return nil, nil, err
		}
		var prs map[string]normalize.GitHostPR
		if err == nil {
			var decoded struct {
				PullRequests map[string]normalize.GitHostPR `json:"pull_requests"`
			}
			if err := json.Unmarshal(prsSnap.Data, &decoded); err != nil {
				return nil, nil, fmt.Errorf("scheduler: decode prs for %s: %w", listing.FullName, err)
			}
			prs = decoded.PullRequests
			parents = append(parents, objectstore.ParentRef{StoreID: prsStore.StoreID(), Version: prsSnap.Meta.Version, Role: "source"})
		}

		repos[listing.FullName] = normalize.GitHostRepo{Commits: commits, PRs: prs}
	}

	items := normalize.GitHost(s.log, normalize.GitHostRaw{Meta: meta, Repos: repos})
	return items, parents, nil
}

func (s *Scheduler) readAggregatorItems(ctx context.Context, a repo.Account) ([]timeline.Item, []objectstore.ParentRef, error) {
	metaStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "meta"))
	metaSnap, err := metaStore.GetLatest(ctx)
	if err != nil {
		return nil, nil, err
	}
	var meta normalize.AggregatorMeta
	if err := json.Unmarshal(metaSnap.Data, &meta); err != nil {
		return nil, nil, fmt.Errorf("scheduler: decode aggregator meta: %w", err)
	}
	parents := []objectstore.ParentRef{{StoreID: metaStore.StoreID(), Version: metaSnap.Meta.Version, Role: "source"}}

	postsStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "posts"))
	var posts map[string]normalize.AggregatorPost
	if snap, err := postsStore.GetLatest(ctx); err == nil {
		var decoded struct {
			Posts map[string]normalize.AggregatorPost `json:"posts"`
		}
		if err := json.Unmarshal(snap.Data, &decoded); err != nil {
			return nil, nil, fmt.Errorf("scheduler: decode aggregator posts: %w", err)
		}
		posts = decoded.Posts
		parents = append(parents, objectstore.ParentRef{StoreID: postsStore.StoreID(), Version: snap.Meta.Version, Role: "source"})
	} else if err != repo.ErrNotFound {
		return nil, nil, err
	}

	commentsStore := s.objects.Store(platform.AggregatorStoreID(a.ID, "comments"))
	var comments map[string]normalize.AggregatorComment
	if snap, err := commentsStore.GetLatest(ctx); err == nil {
		var decoded struct {
			Comments map[string]normalize.AggregatorComment `json:"comments"`
		}
		if err := json.Unmarshal(snap.Data, &decoded); err != nil {
			return nil, nil, fmt.Errorf("scheduler: decode aggregator comments: %w", err)
		}
		comments = decoded.Comments
		parents = append(parents, objectstore.ParentRef{StoreID: commentsStore.StoreID(), Version: snap.Meta.Version, Role: "source"})
	} else if err != repo.ErrNotFound {
		return nil, nil, err
	}

	items := normalize.Aggregator(s.log, normalize.AggregatorRaw{Meta: meta, Posts: posts, Comments: comments})
	return items, parents, nil
}

func (s *Scheduler) readMicroblogLongItems(ctx context.Context, a repo.Account) ([]timeline.Item, []objectstore.ParentRef, error) {
	metaStore := s.objects.Store(platform.MicroblogLongStoreID(a.ID, "meta"))
	metaSnap, err := metaStore.GetLatest(ctx)
	if err != nil {
		return nil, nil, err
	}
	var meta normalize.MicroblogLongMeta
	if err := json.Unmarshal(metaSnap.Data, &meta); err != nil {
		return nil, nil, fmt.Errorf("scheduler: decode microblog-long meta: %w", err)
	}
	parents := []objectstore.ParentRef{{StoreID: metaStore.StoreID(), Version: metaSnap.Meta.Version, Role: "source"}}

	tweetsStore := s.objects.Store(platform.MicroblogLongStoreID(a.ID, "tweets"))
	var tweets map[string]normalize.MicroblogLongTweet
	if snap, err := tweetsStore.GetLatest(ctx); err == nil {
		var decoded struct {
			Tweets map[string]normalize.MicroblogLongTweet `json:"tweets"`
		}
		if err := json.Unmarshal(snap.Data, &decoded); err != nil {
			return nil, nil, fmt.Errorf("scheduler: decode microblog-long tweets: %w", err)
		}
		tweets = decoded.Tweets
		parents = append(parents, objectstore.ParentRef{StoreID: tweetsStore.StoreID(), Version: snap.Meta.Version, Role: "source"})
	} else if err != repo.ErrNotFound {
		return nil, nil, err
	}

	items := normalize.MicroblogLong(s.log, normalize.MicroblogLongRaw{Meta: meta, Tweets: tweets})
	return items, parents, nil
}
