// Package cache stores compiled modules in a SQLite database keyed by the
// content hash of the program they were built from.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/cmcintosh36/grumpy/compiler"
	"github.com/cmcintosh36/grumpy/compiler/hash"
	"github.com/cmcintosh36/grumpy/vm"
)

var log = commonlog.GetLogger("grumpy.cache")

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache is closed")

// Entry is one cached build.
type Entry struct {
	Key       string // hex content hash
	BuildID   string
	Module    *vm.Module
	Size      int // encoded bytes
	CreatedAt time.Time
	Hits      int
}

// Cache is a build cache backed by SQLite. It is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	key        TEXT PRIMARY KEY,
	build_id   TEXT NOT NULL,
	module     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_builds_created ON builds(created_at DESC);
`

// Open opens or creates the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	log.Debugf("opened build cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

// Close closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Key returns the cache key for prog.
func Key(prog *compiler.Program) string {
	h := hash.HashProgram(prog)
	return hex.EncodeToString(h[:])
}

// Get looks up key. A hit bumps the entry's hit count.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, false, ErrClosed
	}

	row := c.db.QueryRowContext(ctx,
		`SELECT build_id, module, created_at, hits FROM builds WHERE key = ?`, key)

	var (
		data    []byte
		created int64
	)
	e := &Entry{Key: key}
	if err := row.Scan(&e.BuildID, &data, &created, &e.Hits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	mod, err := vm.Unmarshal(data)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	e.Module = mod
	e.Size = len(data)
	e.CreatedAt = time.Unix(0, created)

	if _, err := c.db.ExecContext(ctx, `UPDATE builds SET hits = hits + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("updating cache entry %s: %w", key, err)
	}
	e.Hits++
	return e, true, nil
}

// Put stores mod under key, replacing any previous entry, and returns the
// new build id.
func (c *Cache) Put(ctx context.Context, key string, mod *vm.Module) (string, error) {
	data, err := vm.Marshal(mod)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return "", ErrClosed
	}

	id := uuid.NewString()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO builds (key, build_id, module, created_at, hits)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET
			build_id = excluded.build_id,
			module = excluded.module,
			created_at = excluded.created_at,
			hits = 0
	`, key, id, data, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("storing cache entry %s: %w", key, err)
	}
	return id, nil
}

// List returns all entries without their modules, newest first.
func (c *Cache) List(ctx context.Context) ([]*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrClosed
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT key, build_id, length(module), created_at, hits FROM builds ORDER BY created_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Key, &e.BuildID, &e.Size, &created, &e.Hits); err != nil {
			return nil, fmt.Errorf("listing cache: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Purge deletes every entry and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return 0, ErrClosed
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM builds`)
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return res.RowsAffected()
}

// Compile returns the cached module for prog, generating and storing it on
// a miss. hit reports whether the module came from the cache.
func (c *Cache) Compile(ctx context.Context, prog *compiler.Program) (mod *vm.Module, hit bool, err error) {
	key := Key(prog)
	if e, ok, err := c.Get(ctx, key); err != nil {
		return nil, false, err
	} else if ok {
		log.Debugf("cache hit %s (build %s)", key[:12], e.BuildID)
		return e.Module, true, nil
	}

	mod, err = compiler.Compile(prog)
	if err != nil {
		return nil, false, err
	}
	id, err := c.Put(ctx, key, mod)
	if err != nil {
		return nil, false, err
	}
	log.Debugf("cache miss %s, stored build %s", key[:12], id)
	return mod, false, nil
}
