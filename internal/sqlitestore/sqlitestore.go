// Package sqlitestore is an ArtifactStore backed by a single sqlite file with
// zstd-compressed values.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/Avinash-1994/Nexxo-sub001/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	size INTEGER NOT NULL
);
`

// Store implements store.ArtifactStore.
type Store struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ store.ArtifactStore = (*Store)(nil)

// DefaultPath is the store location inside a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".nexxo", "cache", "artifacts.db")
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying artifact store schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Store{db: db, encoder: encoder, decoder: decoder}, nil
}

// Get implements store.ArtifactStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM artifacts WHERE key = ?", key).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	value, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompressing %s: %w", key, err)
	}
	s.hits.Add(1)
	return value, true, nil
}

// Set implements store.ArtifactStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.BatchSet(ctx, []store.Entry{{Key: key, Value: value}})
}

// BatchSet implements store.ArtifactStore. All entries are written in one
// transaction.
func (s *Store) BatchSet(ctx context.Context, entries []store.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO artifacts (key, value, size) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		compressed := s.encoder.EncodeAll(e.Value, nil)
		if _, err := stmt.ExecContext(ctx, e.Key, compressed, len(e.Value)); err != nil {
			return fmt.Errorf("writing %s: %w", e.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Stats implements store.ArtifactStore. Bytes is the uncompressed total.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size), 0) FROM artifacts").Scan(&st.Entries, &st.Bytes)
	if err != nil {
		return store.Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	return st, nil
}

// Close implements store.ArtifactStore.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}
