package repo

import (
	"context"
	"sync"
	"time"

	"github.com/f0rbit/media-timeline/internal/ratepolicy"
)

// MemoryRepository is a deterministic in-memory Repository double for
// tests, observationally equivalent to PostgresRepository at the
// Repository interface.
type MemoryRepository struct {
	mu sync.Mutex

	accounts    map[string]Account
	memberships map[string][]struct {
		UserID string
		Role   Role
	}
	rateStates map[string]ratepolicy.State
	manifests  map[string][]SnapshotMeta // store id -> versions, oldest first
	parents    map[string][]ParentEdge   // child store id -> edges
}

// NewMemoryRepository returns an empty repository double.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]Account),
		memberships: make(map[string][]struct {
			UserID string
			Role   Role
		}),
		rateStates: make(map[string]ratepolicy.State),
		manifests:  make(map[string][]SnapshotMeta),
		parents:    make(map[string][]ParentEdge),
	}
}

// SeedAccount registers an account and a membership, for test setup.
func (m *MemoryRepository) SeedAccount(a Account, userID string, role Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	m.memberships[a.ID] = append(m.memberships[a.ID], struct {
		UserID string
		Role   Role
	}{userID, role})
}

func (m *MemoryRepository) ListActiveAccountsByUser(_ context.Context) (map[string][]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Account)
	for accountID, members := range m.memberships {
		a, ok := m.accounts[accountID]
		if !ok || !a.IsActive {
			continue
		}
		for _, mem := range members {
			out[mem.UserID] = append(out[mem.UserID], a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) GetAccount(_ context.Context, accountID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryRepository) GetRateState(_ context.Context, accountID string) (ratepolicy.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateStates[accountID], nil
}

func (m *MemoryRepository) UpsertRateState(_ context.Context, accountID string, s ratepolicy.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateStates[accountID] = s
	return nil
}

func (m *MemoryRepository) TouchLastFetched(_ context.Context, accountID string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.LastFetchedAt = &when
	m.accounts[accountID] = a
	return nil
}

func (m *MemoryRepository) DeleteAccountCascade(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	for _, mem := range m.memberships[accountID] {
		users = append(users, mem.UserID)
	}
	delete(m.memberships, accountID)
	delete(m.accounts, accountID)
	delete(m.rateStates, accountID)
	return users, nil
}

func (m *MemoryRepository) InsertSnapshotManifest(_ context.Context, meta SnapshotMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifests[meta.StoreID] = append(m.manifests[meta.StoreID], meta)
	return nil
}

func (m *MemoryRepository) InsertParentEdges(_ context.Context, edges []ParentEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.parents[e.ChildStoreID] = append(m.parents[e.ChildStoreID], e)
	}
	return nil
}

func (m *MemoryRepository) GetSnapshotManifest(_ context.Context, storeID, version string) (SnapshotMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.manifests[storeID] {
		if v.Version == version {
			return v, nil
		}
	}
	return SnapshotMeta{}, ErrNotFound
}

func (m *MemoryRepository) GetLatestSnapshotManifest(_ context.Context, storeID string) (SnapshotMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.manifests[storeID]
	if len(versions) == 0 {
		return SnapshotMeta{}, ErrNotFound
	}
	latest := versions[0]
	for _, v := range versions[1:] {
		if v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return latest, nil
}

func (m *MemoryRepository) ListSnapshotManifests(_ context.Context, storeID string) ([]SnapshotMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := append([]SnapshotMeta(nil), m.manifests[storeID]...)
	sortSnapshotsDescending(versions)
	return versions, nil
}

func (m *MemoryRepository) DeleteStore(_ context.Context, storeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.manifests, storeID)
	delete(m.parents, storeID)
	for child, edges := range m.parents {
		kept := edges[:0]
		for _, e := range edges {
			if e.ParentStoreID != storeID {
				kept = append(kept, e)
			}
		}
		m.parents[child] = kept
	}
	return nil
}

func sortSnapshotsDescending(versions []SnapshotMeta) {
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j].CreatedAt.After(versions[j-1].CreatedAt); j-- {
			versions[j], versions[j-1] = versions[j-1], versions[j]
		}
	}
}

var _ Repository = (*MemoryRepository)(nil)
