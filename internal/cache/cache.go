// Package cache memoizes per-method driver.Result values keyed by a
// content hash of the method's bytecode, backed by a
// modernc.org/sqlite database (SPEC_FULL.md §B). It exists to make the
// "idempotent re-analysis" property (spec.md §8) cheap across repeated
// runs over an unchanged class file, the same role a small embedded
// database plays for any tool that memoizes deterministic, expensive
// recomputation.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jpamb-tools/debloatcore/internal/driver"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
)

// Cache is a sqlite-backed memoization table. The zero value is not
// usable; construct with Open.
type Cache struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	key     TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);`

// Open opens (creating if absent) a sqlite database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// Key derives the content hash memoization uses to key method's
// result: a method's analysis depends only on its bytecode and its
// parameter signature, never on offsets elsewhere in the class, so
// hashing the method alone (rather than the whole class) lets an
// unrelated edit elsewhere in the file keep every other method's cache
// entry valid.
func Key(method opcode.Method) (string, error) {
	data, err := json.Marshal(method)
	if err != nil {
		return "", fmt.Errorf("cache: hash method %s: %w", method.Name, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the memoized Result for key, or ok=false on a miss.
func (c *Cache) Get(key string) (driver.Result, bool, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM results WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return driver.Result{}, false, nil
	}
	if err != nil {
		return driver.Result{}, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	var res driver.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return driver.Result{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return res, true, nil
}

// Put memoizes res under key, replacing any prior entry.
func (c *Cache) Put(key string, res driver.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if _, err := c.db.Exec(`INSERT INTO results (key, payload) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`, key, payload); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}
