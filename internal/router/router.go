// Package router implements C10: the admin HTTP API chi.Router mounted by
// cmd/ingestiond. Every route is a thin wrapper over an ordinary exported
// Go function in internal/scheduler or internal/objectstore — the HTTP
// layer adds no business logic of its own.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/config"
	"github.com/f0rbit/media-timeline/internal/middleware"
	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/objectstore"
	"github.com/f0rbit/media-timeline/internal/observability"
	"github.com/f0rbit/media-timeline/internal/platform"
	"github.com/f0rbit/media-timeline/internal/repo"
	"github.com/f0rbit/media-timeline/internal/scheduler"
)

// Deps bundles everything the admin API's routes dispatch into.
type Deps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Scheduler   *scheduler.Scheduler
	Objects     *objectstore.Registry
	Repo        repo.Repository
	Metrics     *observability.Metrics
	GitHostName string
}

// New returns a configured chi.Router with the full middleware chain and
// every C10 route mounted.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(d.Config.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.MaxBodySize(d.Config.MaxBodyBytes))

	timeoutMW := middleware.NewTimeout(d.Logger, d.Config.RequestTimeout)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ingestiond"})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "ingestiond"})
	})

	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.Handler())
	}

	h := &handlers{d: d}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMW.Handler)

		r.Post("/ingestion/run", h.runIngestion)
		r.Get("/timelines/{user_id}", h.getTimeline)
		r.Get("/raw/{platform}/{account_id}", h.getRaw)
		r.Delete("/accounts/{account_id}", h.deleteAccount)
	})

	return r
}

type handlers struct {
	d Deps
}

// runIngestion invokes C7's run_ingestion and returns the CronResult.
func (h *handlers) runIngestion(w http.ResponseWriter, r *http.Request) {
	result, err := h.d.Scheduler.Run(r.Context())
	if err != nil {
		h.d.Logger.Error().Err(err).Msg("ingestion run failed")
		writeJSON(w, http.StatusInternalServerError, errBody("ingestion_failed"))
		return
	}
	if h.d.Metrics != nil {
		h.d.Metrics.TrackInvocation(observability.CronOutcome{
			ProcessedAccounts:  result.ProcessedAccounts,
			FailedAccounts:     len(result.FailedAccounts),
			TimelinesGenerated: result.TimelinesGenerated,
		}, 0)
	}
	writeJSON(w, http.StatusOK, result)
}

// getTimeline implements get_latest_timeline(user_id).
func (h *handlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	store := h.d.Objects.Store(platform.TimelineStoreID(userID))

	var artifact any
	if _, err := store.GetLatestJSON(r.Context(), &artifact); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errBody("not_found"))
			return
		}
		h.d.Logger.Error().Err(err).Str("user_id", userID).Msg("get timeline failed")
		writeJSON(w, http.StatusInternalServerError, errBody("internal_error"))
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// getRaw implements get_latest_raw(platform, account_id). For the
// single-raw platforms this reads the raw/{platform}/{account_id} store
// directly; the multi-store platforms (git-host, aggregator,
// microblog-long) don't keep one literal "raw" snapshot, so this serves
// their meta store instead, the closest analogue of "the latest fetch".
func (h *handlers) getRaw(w http.ResponseWriter, r *http.Request) {
	p := platform.Platform(chi.URLParam(r, "platform"))
	accountID := chi.URLParam(r, "account_id")
	if !p.Valid() {
		writeJSON(w, http.StatusBadRequest, errBody("unknown_platform"))
		return
	}

	storeID := h.rawStoreID(p, accountID)
	store := h.d.Objects.Store(storeID)

	snap, err := store.GetLatest(r.Context())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errBody("not_found"))
			return
		}
		h.d.Logger.Error().Err(err).Str("store_id", storeID).Msg("get raw failed")
		writeJSON(w, http.StatusInternalServerError, errBody("internal_error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Snapshot-Version", snap.Meta.Version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Data)
}

// gitHostRepoStoreIDs enumerates the per-repo commits/prs store ids for a
// git-host account from its meta snapshot, since the set of repos is
// dynamic and not derivable from the account id alone.
func (h *handlers) gitHostRepoStoreIDs(ctx context.Context, accountID string) []string {
	metaStore := h.d.Objects.Store(platform.GitHostMetaStoreID(h.d.GitHostName, accountID))
	var meta normalize.GitHostMeta
	if _, err := metaStore.GetLatestJSON(ctx, &meta); err != nil {
		return nil
	}

	var ids []string
	for _, listing := range meta.Repositories {
		ids = append(ids,
			platform.GitHostCommitsStoreID(h.d.GitHostName, accountID, listing.Owner, listing.Name),
			platform.GitHostPRsStoreID(h.d.GitHostName, accountID, listing.Owner, listing.Name),
		)
	}
	return ids
}

func (h *handlers) rawStoreID(p platform.Platform, accountID string) string {
	switch p {
	case platform.GitHost:
		return platform.GitHostMetaStoreID(h.d.GitHostName, accountID)
	case platform.Aggregator:
		return platform.AggregatorStoreID(accountID, "meta")
	case platform.MicroblogLong:
		return platform.MicroblogLongStoreID(accountID, "meta")
	default:
		return platform.RawStoreID(p, accountID)
	}
}

// deleteAccount implements delete-account: removes the account row, its
// memberships, and every store namespace it occupies.
func (h *handlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")

	account, err := h.d.Repo.GetAccount(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errBody("not_found"))
			return
		}
		h.d.Logger.Error().Err(err).Str("account_id", accountID).Msg("lookup account for delete failed")
		writeJSON(w, http.StatusInternalServerError, errBody("internal_error"))
		return
	}

	storeIDs := platform.NamespacePrefixesForAccount(account.Platform, account.ID)
	if account.Platform == platform.GitHost {
		storeIDs = append(storeIDs, h.gitHostRepoStoreIDs(r.Context(), account.ID)...)
		storeIDs = append(storeIDs, platform.GitHostMetaStoreID(h.d.GitHostName, account.ID))
	}

	var deletedStores []string
	for _, storeID := range storeIDs {
		if err := h.d.Objects.DeleteNamespace(r.Context(), storeID); err != nil {
			h.d.Logger.Error().Err(err).Str("store_id", storeID).Msg("delete store namespace failed")
			writeJSON(w, http.StatusInternalServerError, errBody("internal_error"))
			return
		}
		deletedStores = append(deletedStores, storeID)
	}

	affectedUsers, err := h.d.Repo.DeleteAccountCascade(r.Context(), accountID)
	if err != nil {
		h.d.Logger.Error().Err(err).Str("account_id", accountID).Msg("delete account cascade failed")
		writeJSON(w, http.StatusInternalServerError, errBody("internal_error"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_stores": deletedStores,
		"affected_users": affectedUsers,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errBody(code string) map[string]string {
	return map[string]string{"error": code}
}
