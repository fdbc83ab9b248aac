// Package repo is the C8 relational repository: accounts, memberships,
// rate-limit state, and the versioned object store's manifest/parent
// edges, all backed by Postgres via pgx.
package repo

import (
	"context"
	"time"

	"github.com/f0rbit/media-timeline/internal/platform"
	"github.com/f0rbit/media-timeline/internal/ratepolicy"
)

// Role is an account membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Account mirrors the `accounts` table (spec.md §3).
type Account struct {
	ID                    string
	Platform              platform.Platform
	PlatformUserID        string
	PlatformUsername      string
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	TokenExpiresAt        *time.Time
	IsActive              bool
	LastFetchedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SnapshotMeta mirrors one row of `corpus_snapshots`.
type SnapshotMeta struct {
	StoreID     string
	Version     string
	ContentHash string
	CreatedAt   time.Time
	Tags        []string
	Metadata    map[string]string
}

// ParentEdge mirrors one row of `corpus_parents`.
type ParentEdge struct {
	ChildStoreID   string
	ChildVersion   string
	ParentStoreID  string
	ParentVersion  string
	Role           string
}

// AccountRepository is the C8 surface the scheduler needs for accounts,
// memberships, and rate state.
type AccountRepository interface {
	// ListActiveAccountsByUser returns every active account joined to its
	// memberships, grouped by user id (spec.md §4.7 step 1).
	ListActiveAccountsByUser(ctx context.Context) (map[string][]Account, error)

	GetAccount(ctx context.Context, accountID string) (Account, error)

	GetRateState(ctx context.Context, accountID string) (ratepolicy.State, error)
	UpsertRateState(ctx context.Context, accountID string, s ratepolicy.State) error

	TouchLastFetched(ctx context.Context, accountID string, when time.Time) error

	// DeleteAccountCascade removes the account row and its memberships,
	// returning the set of users who had a membership to it.
	DeleteAccountCascade(ctx context.Context, accountID string) (affectedUsers []string, err error)
}

// ManifestRepository is the C8 surface backing the versioned object
// store's manifest and parent-edge tables.
type ManifestRepository interface {
	InsertSnapshotManifest(ctx context.Context, meta SnapshotMeta) error
	InsertParentEdges(ctx context.Context, edges []ParentEdge) error
	GetSnapshotManifest(ctx context.Context, storeID, version string) (SnapshotMeta, error)
	GetLatestSnapshotManifest(ctx context.Context, storeID string) (SnapshotMeta, error)
	ListSnapshotManifests(ctx context.Context, storeID string) ([]SnapshotMeta, error)
	DeleteStore(ctx context.Context, storeID string) error
}

// Repository is the full C8 surface.
type Repository interface {
	AccountRepository
	ManifestRepository
}

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "repo: not found" }
