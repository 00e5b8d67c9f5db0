// Package digestcache remembers content digests of source files so a rescan
// only rehashes files whose size or modification time moved.
package digestcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Scheme tags stored digests. Rows written under another scheme are misses.
const Scheme = "blake3-canonical-v1"

const schema = `
CREATE TABLE IF NOT EXISTS digests (
	path   TEXT PRIMARY KEY,
	scheme TEXT NOT NULL,
	size   INTEGER NOT NULL,
	mtime  INTEGER NOT NULL,
	digest TEXT NOT NULL
);
`

// stamp identifies one version of a file on disk.
type stamp struct {
	size  int64
	mtime int64
}

func stampOf(info os.FileInfo) stamp {
	return stamp{size: info.Size(), mtime: info.ModTime().UnixNano()}
}

type entry struct {
	stamp
	digest string
}

// Cache is a sqlite table fronted by an in-process map. Safe for concurrent
// use.
type Cache struct {
	db *sql.DB

	mu  sync.RWMutex
	hot map[string]entry
}

// DefaultPath is the cache file inside a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".nexxo", "cache", "digests.db")
}

// Open opens the cache at path, creating the file and its directory.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening digest cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating digest table: %w", err)
	}
	return &Cache{db: db, hot: make(map[string]entry)}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// GetOrCompute returns the stored digest of path when info still matches the
// stored stamp. Otherwise it runs compute and stores the result; hit is false.
// A failed compute stores nothing.
func (c *Cache) GetOrCompute(path string, info os.FileInfo, compute func() (string, error)) (digest string, hit bool, err error) {
	st := stampOf(info)
	digest, err = c.lookup(path, st)
	if err != nil || digest != "" {
		return digest, digest != "", err
	}
	if digest, err = compute(); err != nil {
		return "", false, err
	}
	return digest, false, c.store(path, st, digest)
}

func (c *Cache) lookup(path string, st stamp) (string, error) {
	c.mu.RLock()
	e, ok := c.hot[path]
	c.mu.RUnlock()
	if ok {
		if e.stamp == st {
			return e.digest, nil
		}
		return "", nil
	}

	var scheme string
	err := c.db.QueryRow(
		`SELECT scheme, size, mtime, digest FROM digests WHERE path = ?`, path,
	).Scan(&scheme, &e.size, &e.mtime, &e.digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading digest of %s: %w", path, err)
	}
	if scheme != Scheme {
		return "", nil
	}

	c.mu.Lock()
	c.hot[path] = e
	c.mu.Unlock()
	if e.stamp != st {
		return "", nil
	}
	return e.digest, nil
}

func (c *Cache) store(path string, st stamp, digest string) error {
	_, err := c.db.Exec(
		`INSERT INTO digests (path, scheme, size, mtime, digest) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET scheme = excluded.scheme, size = excluded.size,
		   mtime = excluded.mtime, digest = excluded.digest`,
		path, Scheme, st.size, st.mtime, digest,
	)
	if err != nil {
		return fmt.Errorf("storing digest of %s: %w", path, err)
	}
	c.mu.Lock()
	c.hot[path] = entry{stamp: st, digest: digest}
	c.mu.Unlock()
	return nil
}

// Retain drops every entry whose path is not in keep.
func (c *Cache) Retain(keep []string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TEMP TABLE IF NOT EXISTS retain (path TEXT PRIMARY KEY)`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM retain`); err != nil {
		return err
	}
	ins, err := tx.Prepare(`INSERT OR IGNORE INTO retain (path) VALUES (?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, p := range keep {
		if _, err := ins.Exec(p); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM digests WHERE path NOT IN (SELECT path FROM retain)`); err != nil {
		return fmt.Errorf("pruning digests: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	kept := make(map[string]bool, len(keep))
	for _, p := range keep {
		kept[p] = true
	}
	c.mu.Lock()
	for p := range c.hot {
		if !kept[p] {
			delete(c.hot, p)
		}
	}
	c.mu.Unlock()
	return nil
}

// Remove forgets one path.
func (c *Cache) Remove(path string) error {
	c.mu.Lock()
	delete(c.hot, path)
	c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM digests WHERE path = ?`, path)
	return err
}

// Clear forgets every path.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.hot = make(map[string]entry)
	c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM digests`)
	return err
}

// Stats describes the stored entries.
type Stats struct {
	TotalEntries int64
}

// Stats counts stored entries.
func (c *Cache) Stats() (*Stats, error) {
	var n int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM digests`).Scan(&n); err != nil {
		return nil, err
	}
	return &Stats{TotalEntries: n}, nil
}
