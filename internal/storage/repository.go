package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertOrdersSQL = `INSERT INTO marketplace_orders (
        hash,
        target_contract,
        maker,
        created_at,
        raw,
        source
    )
    SELECT * FROM unnest(
        $1::text[],
        $2::text[],
        $3::text[],
        $4::timestamptz[],
        $5::jsonb[],
        $6::text[]
    )
    ON CONFLICT (hash) DO NOTHING;`

	getCursorSQL = `SELECT value FROM sync_cursors WHERE name = $1;`

	setCursorSQL = `INSERT INTO sync_cursors (name, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (name) DO UPDATE
    SET value = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	deleteProbesSQL = `DELETE FROM collection_probes;`

	insertProbesSQL = `INSERT INTO collection_probes (
        slug,
        contract,
        token_id,
        trailing_volume,
        refreshed_at
    )
    SELECT slug, contract, token_id, volume::numeric, refreshed_at
    FROM unnest(
        $1::text[],
        $2::text[],
        $3::text[],
        $4::text[],
        $5::timestamptz[]
    ) AS t(slug, contract, token_id, volume, refreshed_at);`

	listProbesSQL = `SELECT
        slug,
        contract,
        token_id,
        trailing_volume::text,
        refreshed_at
    FROM collection_probes
    ORDER BY trailing_volume DESC;`

	countProbesSQL = `SELECT COUNT(*) FROM collection_probes;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// OrderStore persists candidate order rows, skipping already-seen hashes.
type OrderStore interface {
	InsertOrders(ctx context.Context, rows []OrderRow) (int64, error)
}

// CursorCache is a small keyed cache for sync progress markers.
type CursorCache interface {
	GetCursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, value string) error
}

// ProbeStore manages the collection probe set.
type ProbeStore interface {
	ReplaceProbes(ctx context.Context, probes []CollectionProbe) error
	ListProbes(ctx context.Context) ([]CollectionProbe, error)
	CountProbes(ctx context.Context) (int64, error)
}

// SyncLocker serialises sync attempts across worker instances.
type SyncLocker interface {
	AcquireSyncLock(ctx context.Context, name string, holdoffWindow time.Duration) (release func(holdoff bool), acquired bool, err error)
}

// Store aggregates access to orders, cursors, and probes.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertOrders bulk-inserts a batch of rows as one statement and reports how
// many were genuinely new. Rows conflicting on hash are silently skipped.
func (s *Store) InsertOrders(ctx context.Context, rows []OrderRow) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	hashes := make([]string, len(rows))
	contracts := make([]string, len(rows))
	makers := make([]string, len(rows))
	createdAts := make([]time.Time, len(rows))
	raws := make([][]byte, len(rows))
	sources := make([]string, len(rows))
	for i, row := range rows {
		hashes[i] = row.Hash
		contracts[i] = row.TargetContract
		makers[i] = row.Maker
		createdAts[i] = row.CreatedAt
		raws[i] = []byte(row.Raw)
		sources[i] = row.Source
	}

	cmdTag, execErr := pool.Exec(ctx, insertOrdersSQL,
		hashes,
		contracts,
		makers,
		createdAts,
		raws,
		sources,
	)
	if execErr != nil {
		return 0, fmt.Errorf("insert orders: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// GetCursor reads a persisted cursor, returning "" when absent.
func (s *Store) GetCursor(ctx context.Context, name string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}

	var value string
	if scanErr := pool.QueryRow(ctx, getCursorSQL, name).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get cursor: %w", scanErr)
	}
	return value, nil
}

// SetCursor upserts a persisted cursor value.
func (s *Store) SetCursor(ctx context.Context, name, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setCursorSQL, name, value); execErr != nil {
		return fmt.Errorf("set cursor: %w", execErr)
	}
	return nil
}

// ReplaceProbes swaps the full probe set in one transaction.
func (s *Store) ReplaceProbes(ctx context.Context, probes []CollectionProbe) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, txErr := pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("begin probe replace: %w", txErr)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, deleteProbesSQL); execErr != nil {
		return fmt.Errorf("clear probes: %w", execErr)
	}

	if len(probes) > 0 {
		slugs := make([]string, len(probes))
		contracts := make([]string, len(probes))
		tokens := make([]string, len(probes))
		volumes := make([]string, len(probes))
		refreshedAts := make([]time.Time, len(probes))
		for i, probe := range probes {
			slugs[i] = probe.Slug
			contracts[i] = probe.Contract
			tokens[i] = probe.TokenID
			volumes[i] = probe.TrailingVolume.String()
			refreshedAts[i] = probe.RefreshedAt
		}
		if _, execErr := tx.Exec(ctx, insertProbesSQL,
			slugs,
			contracts,
			tokens,
			volumes,
			refreshedAts,
		); execErr != nil {
			return fmt.Errorf("insert probes: %w", execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit probe replace: %w", commitErr)
	}
	return nil
}

// ListProbes returns the stored probe set ordered by trailing volume.
func (s *Store) ListProbes(ctx context.Context) ([]CollectionProbe, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProbesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list probes: %w", queryErr)
	}
	defer rows.Close()

	probes := make([]CollectionProbe, 0)
	for rows.Next() {
		var probe CollectionProbe
		var volumeStr string
		if err := rows.Scan(
			&probe.Slug,
			&probe.Contract,
			&probe.TokenID,
			&volumeStr,
			&probe.RefreshedAt,
		); err != nil {
			return nil, err
		}

		volume, convErr := decimal.NewFromString(volumeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse trailing volume: %w", convErr)
		}
		probe.TrailingVolume = volume

		probes = append(probes, probe)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return probes, nil
}

// CountProbes counts the stored probes.
func (s *Store) CountProbes(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countProbesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count probes: %w", scanErr)
	}
	return count, nil
}
