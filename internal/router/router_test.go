package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/f0rbit/media-timeline/internal/config"
	"github.com/f0rbit/media-timeline/internal/credential"
	"github.com/f0rbit/media-timeline/internal/normalize"
	"github.com/f0rbit/media-timeline/internal/objectstore"
	"github.com/f0rbit/media-timeline/internal/platform"
	"github.com/f0rbit/media-timeline/internal/provider"
	"github.com/f0rbit/media-timeline/internal/repo"
	"github.com/f0rbit/media-timeline/internal/scheduler"
)

var testKey = credential.DeriveKey([]byte("router-test-passphrase"), []byte("router-test-salt"))

func newTestServer(t *testing.T) (*httptest.Server, *repo.MemoryRepository, *objectstore.Registry, *provider.MemoryProvider) {
	t.Helper()
	r := repo.NewMemoryRepository()
	backend := objectstore.NewMemoryBackend()
	objects := objectstore.NewRegistry(backend, r)
	providers := provider.NewRegistry()
	mp := provider.NewMemoryProvider(platform.GitHost, normalize.GitHostRaw{
		Meta: normalize.GitHostMeta{Username: "u1", Repositories: []normalize.GitHostRepoListing{{Owner: "u1", Name: "p", FullName: "u1/p", DefaultBranch: "main"}}, FetchedAt: time.Now()},
		Repos: map[string]normalize.GitHostRepo{
			"u1/p": {Commits: map[string]normalize.GitHostCommit{"aaa111": {SHA: "aaa111", Message: "init", Branch: "main", Timestamp: time.Now()}}},
		},
	})
	providers.Register(mp)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.EncryptionKey = testKey
	sched := scheduler.New(r, objects, providers, zerolog.Nop(), schedCfg)

	cfg := &config.Config{
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1024 * 1024,
		RequestTimeout: 5 * time.Second,
	}

	h := New(Deps{
		Config:      cfg,
		Logger:      zerolog.Nop(),
		Scheduler:   sched,
		Objects:     objects,
		Repo:        r,
		GitHostName: schedCfg.GitHostName,
	})

	return httptest.NewServer(h), r, objects, mp
}

func encryptedToken(t *testing.T, plaintext string) string {
	t.Helper()
	ct, err := credential.Encrypt([]byte(plaintext), testKey)
	if err != nil {
		t.Fatalf("encrypt test token: %v", err)
	}
	return ct
}

func seedAccount(r *repo.MemoryRepository, accountID, userID string) {
	r.SeedAccount(repo.Account{
		ID:                   accountID,
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: "",
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}, userID, repo.RoleOwner)
}

func TestHealthzReady(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	defer srv.Close()

	for _, path := range []string{"/healthz", "/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestRunIngestionEndToEnd(t *testing.T) {
	srv, r, _, _ := newTestServer(t)
	defer srv.Close()

	a := repo.Account{
		ID:                   "A1",
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: encryptedToken(t, "tok"),
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	r.SeedAccount(a, "U1", repo.RoleOwner)

	resp, err := http.Post(srv.URL+"/v1/ingestion/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST ingestion/run: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result scheduler.CronResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ProcessedAccounts != 1 || result.TimelinesGenerated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetTimelineNotFound(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/timelines/nobody")
	if err != nil {
		t.Fatalf("GET timeline: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "not_found" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestGetTimelineAfterRun(t *testing.T) {
	srv, r, _, _ := newTestServer(t)
	defer srv.Close()

	a := repo.Account{
		ID:                   "A1",
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: encryptedToken(t, "tok"),
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	r.SeedAccount(a, "U1", repo.RoleOwner)

	if _, err := http.Post(srv.URL+"/v1/ingestion/run", "application/json", nil); err != nil {
		t.Fatalf("run ingestion: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/timelines/U1")
	if err != nil {
		t.Fatalf("GET timeline: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGetRawMetaForGitHost(t *testing.T) {
	srv, r, _, _ := newTestServer(t)
	defer srv.Close()

	a := repo.Account{
		ID:                   "A1",
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: encryptedToken(t, "tok"),
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	r.SeedAccount(a, "U1", repo.RoleOwner)

	if _, err := http.Post(srv.URL+"/v1/ingestion/run", "application/json", nil); err != nil {
		t.Fatalf("run ingestion: %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/raw/git-host/A1")
	if err != nil {
		t.Fatalf("GET raw: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var meta normalize.GitHostMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.Username != "u1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestDeleteAccountRemovesMembershipsAndStores(t *testing.T) {
	srv, r, objects, _ := newTestServer(t)
	defer srv.Close()

	a := repo.Account{
		ID:                   "A1",
		Platform:             platform.GitHost,
		PlatformUsername:     "u1",
		EncryptedAccessToken: encryptedToken(t, "tok"),
		IsActive:             true,
		CreatedAt:            time.Now(),
		UpdatedAt:            time.Now(),
	}
	r.SeedAccount(a, "U1", repo.RoleOwner)

	if _, err := http.Post(srv.URL+"/v1/ingestion/run", "application/json", nil); err != nil {
		t.Fatalf("run ingestion: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/accounts/A1", nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE account: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		DeletedStores []string `json:"deleted_stores"`
		AffectedUsers []string `json:"affected_users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if len(body.AffectedUsers) != 1 || body.AffectedUsers[0] != "U1" {
		t.Fatalf("unexpected affected_users: %v", body.AffectedUsers)
	}

	metaStore := objects.Store(platform.GitHostMetaStoreID("git-host", "A1"))
	if _, err := metaStore.GetLatest(context.Background()); err == nil {
		t.Fatalf("expected meta store to be gone after delete")
	}

	if _, err := r.GetAccount(context.Background(), "A1"); err == nil {
		t.Fatalf("expected account row to be gone after delete")
	}
}
