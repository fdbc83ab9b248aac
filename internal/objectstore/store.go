// Package objectstore implements C3: an append-only, content-addressed
// store. Each Put yields a new version id and records content hash,
// timestamp, parent references, and tags; gets are served from the
// manifest (repo.ManifestRepository) and the blob Backend.
package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/f0rbit/media-timeline/internal/repo"
)

// ParentRef references a source snapshot contributing to a derived one.
type ParentRef struct {
	StoreID string
	Version string
	Role    string
}

// PutOptions configures a Put call.
type PutOptions struct {
	Tags    []string
	Parents []ParentRef
}

// PutResult is returned by Put.
type PutResult struct {
	Version     string
	ContentHash string
}

// Snapshot is a fully materialized get/get_latest result.
type Snapshot struct {
	Meta repo.SnapshotMeta
	Data []byte
}

// Store operates on one logical store id.
type Store struct {
	storeID  string
	backend  Backend
	manifest repo.ManifestRepository
}

// New returns a Store bound to storeID.
func New(storeID string, backend Backend, manifest repo.ManifestRepository) *Store {
	return &Store{storeID: storeID, backend: backend, manifest: manifest}
}

// StoreID returns the store id this Store is bound to.
func (s *Store) StoreID() string { return s.storeID }

// Put serializes payload, hashes it, assigns a new monotone version id,
// writes the blob, and records the manifest row and parent edges.
//
// Two Puts of byte-identical payloads yield the same ContentHash but
// distinct Versions — duplicate content is permitted; callers read
// ContentHash to detect it (spec.md §3, invariant 2 in §8).
func (s *Store) Put(ctx context.Context, payload []byte, opts PutOptions) (PutResult, error) {
	hash := sha256.Sum256(payload)
	contentHash := hex.EncodeToString(hash[:])

	version, err := uuid.NewV7()
	if err != nil {
		return PutResult{}, fmt.Errorf("objectstore: generate version id: %w", err)
	}
	versionStr := version.String()

	blobKey := s.storeID + "@" + versionStr
	if err := s.backend.Put(ctx, blobKey, payload); err != nil {
		return PutResult{}, fmt.Errorf("objectstore: put blob: %w", err)
	}

	createdAt := time.Now().UTC()
	meta := repo.SnapshotMeta{
		StoreID:     s.storeID,
		Version:     versionStr,
		ContentHash: contentHash,
		CreatedAt:   createdAt,
		Tags:        opts.Tags,
	}
	if err := s.manifest.InsertSnapshotManifest(ctx, meta); err != nil {
		return PutResult{}, fmt.Errorf("objectstore: insert manifest: %w", err)
	}

	if len(opts.Parents) > 0 {
		edges := make([]repo.ParentEdge, 0, len(opts.Parents))
		for _, p := range opts.Parents {
			edges = append(edges, repo.ParentEdge{
				ChildStoreID:  s.storeID,
				ChildVersion:  versionStr,
				ParentStoreID: p.StoreID,
				ParentVersion: p.Version,
				Role:          p.Role,
			})
		}
		if err := s.manifest.InsertParentEdges(ctx, edges); err != nil {
			return PutResult{}, fmt.Errorf("objectstore: insert parent edges: %w", err)
		}
	}

	return PutResult{Version: versionStr, ContentHash: contentHash}, nil
}

// Get fetches one specific version.
func (s *Store) Get(ctx context.Context, version string) (Snapshot, error) {
	meta, err := s.manifest.GetSnapshotManifest(ctx, s.storeID, version)
	if err != nil {
		return Snapshot{}, err
	}
	data, ok, err := s.backend.Get(ctx, s.storeID+"@"+version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("objectstore: get blob: %w", err)
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("objectstore: manifest row exists for %s@%s but blob is missing", s.storeID, version)
	}
	return Snapshot{Meta: meta, Data: data}, nil
}

// GetLatest fetches the most recently successfully Put snapshot.
func (s *Store) GetLatest(ctx context.Context) (Snapshot, error) {
	meta, err := s.manifest.GetLatestSnapshotManifest(ctx, s.storeID)
	if err != nil {
		return Snapshot{}, err
	}
	data, ok, err := s.backend.Get(ctx, s.storeID+"@"+meta.Version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("objectstore: get blob: %w", err)
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("objectstore: manifest row exists for %s@%s but blob is missing", s.storeID, meta.Version)
	}
	return Snapshot{Meta: meta, Data: data}, nil
}

// List returns every manifest row for this store, descending by
// created_at.
func (s *Store) List(ctx context.Context) ([]repo.SnapshotMeta, error) {
	return s.manifest.ListSnapshotManifests(ctx, s.storeID)
}

// PutJSON marshals v and Puts it.
func (s *Store) PutJSON(ctx context.Context, v any, opts PutOptions) (PutResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return PutResult{}, fmt.Errorf("objectstore: marshal payload: %w", err)
	}
	return s.Put(ctx, body, opts)
}

// GetLatestJSON fetches the latest snapshot and unmarshals it into v.
func (s *Store) GetLatestJSON(ctx context.Context, v any) (repo.SnapshotMeta, error) {
	snap, err := s.GetLatest(ctx)
	if err != nil {
		return repo.SnapshotMeta{}, err
	}
	if err := json.Unmarshal(snap.Data, v); err != nil {
		return repo.SnapshotMeta{}, fmt.Errorf("objectstore: unmarshal payload: %w", err)
	}
	return snap.Meta, nil
}
