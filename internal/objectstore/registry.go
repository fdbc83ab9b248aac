package objectstore

import (
	"context"
	"fmt"

	"github.com/f0rbit/media-timeline/internal/repo"
)

// Registry opens Store handles against a shared Backend and
// ManifestRepository, and supports cascading deletes across the
// store-id namespaces a platform or account occupies.
type Registry struct {
	backend  Backend
	manifest repo.ManifestRepository
}

// NewRegistry returns a Registry bound to the given backend/manifest.
func NewRegistry(backend Backend, manifest repo.ManifestRepository) *Registry {
	return &Registry{backend: backend, manifest: manifest}
}

// Store returns a Store handle for storeID. Opening a handle never
// touches the backend; it is a pure constructor.
func (r *Registry) Store(storeID string) *Store {
	return New(storeID, r.backend, r.manifest)
}

// DeleteNamespace removes every blob and manifest row under storeID,
// cascading to parent edges referencing it (spec.md §4.3: "cascading
// delete of a store removes manifest rows, parent edges referencing it,
// and blobs").
func (r *Registry) DeleteNamespace(ctx context.Context, storeID string) error {
	versions, err := r.manifest.ListSnapshotManifests(ctx, storeID)
	if err != nil {
		return fmt.Errorf("objectstore: list versions for delete: %w", err)
	}
	for _, v := range versions {
		if err := r.backend.Delete(ctx, storeID+"@"+v.Version); err != nil {
			return fmt.Errorf("objectstore: delete blob %s@%s: %w", storeID, v.Version, err)
		}
	}
	if err := r.manifest.DeleteStore(ctx, storeID); err != nil {
		return fmt.Errorf("objectstore: delete manifest rows for %s: %w", storeID, err)
	}
	return nil
}
