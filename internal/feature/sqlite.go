package feature

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a PersistentStore backed by a local SQLite file, so field
// deployments doing repeated evaluations over the same region do not re-ask
// the feature service for every run.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the cache database at the given path.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "feature cache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "feature cache: exec %s", pragma)
		}
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	s := &SQLiteStore{db: db, ttl: ttl}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS feature_cache (
	key       TEXT PRIMARY KEY,
	features  TEXT NOT NULL,
	cached_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_feature_cache_cached_at ON feature_cache(cached_at);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, cacheMigration)
	return eris.Wrap(err, "feature cache: migrate")
}

// Get returns the cached features for key if present and fresh.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]Feature, bool, error) {
	var payload, cachedAtRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT features, cached_at FROM feature_cache WHERE key = ?`, key,
	).Scan(&payload, &cachedAtRaw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "feature cache: get")
	}

	// datetime('now') stores UTC as "2006-01-02 15:04:05".
	cachedAt, err := time.Parse("2006-01-02 15:04:05", cachedAtRaw)
	if err != nil {
		return nil, false, eris.Wrap(err, "feature cache: parse cached_at")
	}
	if time.Since(cachedAt.UTC()) > s.ttl {
		return nil, false, nil
	}

	var feats []Feature
	if err := json.Unmarshal([]byte(payload), &feats); err != nil {
		return nil, false, eris.Wrap(err, "feature cache: unmarshal")
	}
	return feats, true, nil
}

// Put upserts the features for key.
func (s *SQLiteStore) Put(ctx context.Context, key string, feats []Feature) error {
	payload, err := json.Marshal(feats)
	if err != nil {
		return eris.Wrap(err, "feature cache: marshal")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feature_cache (key, features, cached_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (key) DO UPDATE SET
			features = excluded.features,
			cached_at = excluded.cached_at`,
		key, string(payload),
	)
	return eris.Wrap(err, "feature cache: put")
}

// Prune deletes entries older than the TTL. Returns rows removed.
func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(s.ttl.Seconds()))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM feature_cache WHERE cached_at < datetime('now', ?)`, modifier,
	)
	if err != nil {
		return 0, eris.Wrap(err, "feature cache: prune")
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
