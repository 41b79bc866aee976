// Package localcache persists the client session token and the cached
// favorites list in a local SQLite database.
package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/patric-chuzhbe/favsync/internal/client/localcache/migrations"
)

const (
	keyToken       = "session_token"
	keyInitialized = "favorites_initialized"
)

// Cache is safe for concurrent use; SQLite serializes writers.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache at path and migrates its schema.
// ":memory:" yields a throwaway cache.
func Open(ctx context.Context, path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("in internal/client/localcache/localcache.go/Open(): error while `os.MkdirAll()` calling: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("in internal/client/localcache/localcache.go/Open(): error while `sql.Open()` calling: %w", err)
	}
	// Pragmas are per connection and an in-memory database per connection too.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("in internal/client/localcache/localcache.go/runMigrations(): error while `goose.NewProvider()` calling: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("in internal/client/localcache/localcache.go/runMigrations(): error while `provider.Up()` calling: %w", err)
	}

	return nil
}

// LoadToken returns the stored session token, or "" when there is none.
func (c *Cache) LoadToken(ctx context.Context) (string, error) {
	var token string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, keyToken).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}

	return token, nil
}

// SaveToken stores token. An empty token removes the stored one.
func (c *Cache) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, keyToken); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
		return nil
	}

	if err := setMetadata(ctx, c.db, keyToken, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// LoadFavorites returns the cached list in order. found is false until a
// list has been saved at least once.
func (c *Cache) LoadFavorites(ctx context.Context) (favorites []string, found bool, err error) {
	var initialized string
	err = c.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, keyInitialized).Scan(&initialized)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load favorites marker: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT name FROM favorites ORDER BY position`)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load favorites: %w", err)
	}
	defer rows.Close()

	favorites = []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, false, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		favorites = append(favorites, name)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate favorite rows: %w", err)
	}

	return favorites, true, nil
}

// SaveFavorites replaces the cached list atomically. Repeated names keep
// their first position.
func (c *Cache) SaveFavorites(ctx context.Context, favorites []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("in internal/client/localcache/localcache.go/SaveFavorites(): error while `c.db.BeginTx()` calling: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := replaceFavorites(ctx, tx, favorites); err != nil {
		return err
	}

	return tx.Commit()
}

// Clear forgets the token and empties the list. The cache stays initialized,
// so no defaults come back after a logout.
func (c *Cache) Clear(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("in internal/client/localcache/localcache.go/Clear(): error while `c.db.BeginTx()` calling: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, keyToken); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if err := replaceFavorites(ctx, tx, nil); err != nil {
		return err
	}

	return tx.Commit()
}

func (c *Cache) Close() error {
	return c.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func replaceFavorites(ctx context.Context, tx execer, favorites []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM favorites`); err != nil {
		return fmt.Errorf("failed to clear favorites: %w", err)
	}
	for position, name := range favorites {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO favorites (position, name) VALUES (?, ?)`, position, name)
		if err != nil {
			return fmt.Errorf("failed to insert favorite %q: %w", name, err)
		}
	}
	if err := setMetadata(ctx, tx, keyInitialized, "1"); err != nil {
		return fmt.Errorf("failed to mark favorites initialized: %w", err)
	}

	return nil
}

func setMetadata(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)

	return err
}
