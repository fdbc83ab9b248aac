package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/f0rbit/media-timeline/internal/ratepolicy"
)

// PostgresRepository implements Repository against a pgxpool.Pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to databaseURL and returns a ready
// repository, or an error if the pool cannot be created.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repo: connect: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (r *PostgresRepository) Close() { r.pool.Close() }

func (r *PostgresRepository) ListActiveAccountsByUser(ctx context.Context) (map[string][]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.platform, a.platform_user_id, a.platform_username,
		       a.encrypted_access_token, a.encrypted_refresh_token,
		       a.token_expires_at, a.is_active, a.last_fetched_at,
		       a.created_at, a.updated_at, m.user_id
		FROM accounts a
		JOIN account_members m ON m.account_id = a.id
		WHERE a.is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("repo: list active accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Account)
	for rows.Next() {
		var a Account
		var userID string
		if err := rows.Scan(&a.ID, &a.Platform, &a.PlatformUserID, &a.PlatformUsername,
			&a.EncryptedAccessToken, &a.EncryptedRefreshToken,
			&a.TokenExpiresAt, &a.IsActive, &a.LastFetchedAt,
			&a.CreatedAt, &a.UpdatedAt, &userID); err != nil {
			return nil, fmt.Errorf("repo: scan account row: %w", err)
		}
		out[userID] = append(out[userID], a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetAccount(ctx context.Context, accountID string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, platform, platform_user_id, platform_username,
		       encrypted_access_token, encrypted_refresh_token,
		       token_expires_at, is_active, last_fetched_at, created_at, updated_at
		FROM accounts WHERE id = $1`, accountID).
		Scan(&a.ID, &a.Platform, &a.PlatformUserID, &a.PlatformUsername,
			&a.EncryptedAccessToken, &a.EncryptedRefreshToken,
			&a.TokenExpiresAt, &a.IsActive, &a.LastFetchedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("repo: get account: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetRateState(ctx context.Context, accountID string) (ratepolicy.State, error) {
	var s ratepolicy.State
	err := r.pool.QueryRow(ctx, `
		SELECT remaining, limit_total, reset_at, consecutive_failures,
		       last_failure_at, circuit_open_until
		FROM rate_limits WHERE account_id = $1`, accountID).
		Scan(&s.Remaining, &s.LimitTotal, &s.ResetAt, &s.ConsecutiveFailures,
			&s.LastFailureAt, &s.CircuitOpenUntil)
	if err == pgx.ErrNoRows {
		return ratepolicy.State{}, nil // unseen account: permissive zero value
	}
	if err != nil {
		return ratepolicy.State{}, fmt.Errorf("repo: get rate state: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpsertRateState(ctx context.Context, accountID string, s ratepolicy.State) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rate_limits (account_id, remaining, limit_total, reset_at,
		                          consecutive_failures, last_failure_at, circuit_open_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id) DO UPDATE SET
			remaining = EXCLUDED.remaining,
			limit_total = EXCLUDED.limit_total,
			reset_at = EXCLUDED.reset_at,
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_failure_at = EXCLUDED.last_failure_at,
			circuit_open_until = EXCLUDED.circuit_open_until`,
		accountID, s.Remaining, s.LimitTotal, s.ResetAt,
		s.ConsecutiveFailures, s.LastFailureAt, s.CircuitOpenUntil)
	if err != nil {
		return fmt.Errorf("repo: upsert rate state: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TouchLastFetched(ctx context.Context, accountID string, when time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET last_fetched_at = $2, updated_at = $2 WHERE id = $1`,
		accountID, when)
	if err != nil {
		return fmt.Errorf("repo: touch last_fetched_at: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAccountCascade(ctx context.Context, accountID string) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo: begin delete-account tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT user_id FROM account_members WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("repo: list memberships: %w", err)
	}
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, fmt.Errorf("repo: scan membership: %w", err)
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM account_members WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("repo: delete memberships: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rate_limits WHERE account_id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("repo: delete rate state: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID); err != nil {
		return nil, fmt.Errorf("repo: delete account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repo: commit delete-account tx: %w", err)
	}
	return users, nil
}

func (r *PostgresRepository) InsertSnapshotManifest(ctx context.Context, meta SnapshotMeta) error {
	metaJSON, err := json.Marshal(meta.Metadata)
	if err != nil {
		return fmt.Errorf("repo: marshal snapshot metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO corpus_snapshots (store_id, version, content_hash, created_at, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		meta.StoreID, meta.Version, meta.ContentHash, meta.CreatedAt, meta.Tags, metaJSON)
	if err != nil {
		return fmt.Errorf("repo: insert snapshot manifest: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertParentEdges(ctx context.Context, edges []ParentEdge) error {
	if len(edges) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(`
			INSERT INTO corpus_parents (child_store_id, child_version, parent_store_id, parent_version, role)
			VALUES ($1, $2, $3, $4, $5)`,
			e.ChildStoreID, e.ChildVersion, e.ParentStoreID, e.ParentVersion, e.Role)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range edges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("repo: insert parent edge: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetSnapshotManifest(ctx context.Context, storeID, version string) (SnapshotMeta, error) {
	var m SnapshotMeta
	var metaJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT store_id, version, content_hash, created_at, tags, metadata
		FROM corpus_snapshots WHERE store_id = $1 AND version = $2`, storeID, version).
		Scan(&m.StoreID, &m.Version, &m.ContentHash, &m.CreatedAt, &m.Tags, &metaJSON)
	if err == pgx.ErrNoRows {
		return SnapshotMeta{}, ErrNotFound
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("repo: get snapshot manifest: %w", err)
	}
	_ = json.Unmarshal(metaJSON, &m.Metadata)
	return m, nil
}

func (r *PostgresRepository) GetLatestSnapshotManifest(ctx context.Context, storeID string) (SnapshotMeta, error) {
	var m SnapshotMeta
	var metaJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT store_id, version, content_hash, created_at, tags, metadata
		FROM corpus_snapshots WHERE store_id = $1
		ORDER BY created_at DESC LIMIT 1`, storeID).
		Scan(&m.StoreID, &m.Version, &m.ContentHash, &m.CreatedAt, &m.Tags, &metaJSON)
	if err == pgx.ErrNoRows {
		return SnapshotMeta{}, ErrNotFound
	}
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("repo: get latest snapshot manifest: %w", err)
	}
	_ = json.Unmarshal(metaJSON, &m.Metadata)
	return m, nil
}

func (r *PostgresRepository) ListSnapshotManifests(ctx context.Context, storeID string) ([]SnapshotMeta, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT store_id, version, content_hash, created_at, tags, metadata
		FROM corpus_snapshots WHERE store_id = $1
		ORDER BY created_at DESC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("repo: list snapshot manifests: %w", err)
	}
	defer rows.Close()

	var out []SnapshotMeta
	for rows.Next() {
		var m SnapshotMeta
		var metaJSON []byte
		if err := rows.Scan(&m.StoreID, &m.Version, &m.ContentHash, &m.CreatedAt, &m.Tags, &metaJSON); err != nil {
			return nil, fmt.Errorf("repo: scan snapshot manifest: %w", err)
		}
		_ = json.Unmarshal(metaJSON, &m.Metadata)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DeleteStore(ctx context.Context, storeID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo: begin delete-store tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM corpus_parents WHERE child_store_id = $1 OR parent_store_id = $1`, storeID); err != nil {
		return fmt.Errorf("repo: delete parent edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM corpus_snapshots WHERE store_id = $1`, storeID); err != nil {
		return fmt.Errorf("repo: delete manifest rows: %w", err)
	}
	return tx.Commit(ctx)
}
