package persistent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// InMemory opens a store that lives as long as the process.
const InMemory = ":memory:"

// Separator separates the levels of a hierarchical key.
const Separator = "/"

// Store is a durable, hierarchical string key-value store backed by SQLite.
// Keys are paths like "org/example/lib:1.0:#url"; RemoveSubtree deletes a path and everything below it.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := path
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// SQLite supports one writer at a time, and an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS nodes (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM nodes WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.PutAll(ctx, map[string]string{key: value})
}

// PutAll stores all values in a single transaction.
func (s *Store) PutAll(ctx context.Context, values map[string]string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO nodes (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err = stmt.ExecContext(ctx, k, values[k]); err != nil {
			return fmt.Errorf("put %q: %w", k, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Flush checkpoints the write-ahead log into the database file.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// RemoveSubtree deletes prefix and every key below it. An empty prefix deletes everything.
// It returns the number of deleted keys.
func (s *Store) RemoveSubtree(ctx context.Context, prefix string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if prefix == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM nodes`)
	} else {
		escaped := escapeLike(prefix)
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM nodes WHERE key = ? OR key LIKE ? ESCAPE '\' OR key LIKE ? ESCAPE '\'`,
			prefix, escaped+Separator+"%", escaped+AttributeSeparator+"%")
	}
	if err != nil {
		return 0, fmt.Errorf("remove subtree %q: %w", prefix, err)
	}
	return res.RowsAffected()
}

// Keys lists all keys below prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM nodes WHERE key LIKE ? ESCAPE '\' ORDER BY key`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list keys below %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
