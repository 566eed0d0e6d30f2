package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements AliasStore using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the alias database at dbPath and runs
// any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := Open(dbPath, aliasMigrations)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode
// and foreign keys, and applies the given migrations.
func Open(dbPath string, migrations []Migration) (*sqlx.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions
	// serialized instead of failing with SQLITE_BUSY, and keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := runMigrations(db, migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func runMigrations(db *sqlx.DB, migrations []Migration) error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.Version, err)
		}
	}

	return nil
}

// ShortID returns the short id bound to nativeID within scope.
func (s *SQLiteStore) ShortID(
	ctx context.Context,
	scope Scope,
	nativeID string,
) (int64, bool, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		SELECT short_id FROM aliases
		WHERE account = ? AND folder = ? AND native_id = ?`,
		scope.Account, scope.Folder, nativeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("getting alias of %q: %w", nativeID, err)
	}
	return id, true, nil
}

// NativeID returns the native id bound to shortID within scope.
func (s *SQLiteStore) NativeID(
	ctx context.Context,
	scope Scope,
	shortID int64,
) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `
		SELECT native_id FROM aliases
		WHERE account = ? AND folder = ? AND short_id = ?`,
		scope.Account, scope.Folder, shortID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting native id of alias %d: %w", shortID, err)
	}
	return id, true, nil
}

// Allocate binds nativeID to the next free short id of the scope unless
// it is already bound. Everything happens in one transaction.
func (s *SQLiteStore) Allocate(
	ctx context.Context,
	scope Scope,
	nativeID string,
) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.GetContext(ctx, &existing, `
		SELECT short_id FROM aliases
		WHERE account = ? AND folder = ? AND native_id = ?`,
		scope.Account, scope.Folder, nativeID,
	)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("getting alias of %q: %w", nativeID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alias_counters (account, folder, next_id)
		VALUES (?, ?, 1)
		ON CONFLICT (account, folder) DO NOTHING`,
		scope.Account, scope.Folder,
	)
	if err != nil {
		return 0, fmt.Errorf("initializing alias counter: %w", err)
	}

	var next int64
	err = tx.GetContext(ctx, &next, `
		SELECT next_id FROM alias_counters
		WHERE account = ? AND folder = ?`,
		scope.Account, scope.Folder,
	)
	if err != nil {
		return 0, fmt.Errorf("reading alias counter: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO aliases (account, folder, native_id, short_id)
		VALUES (?, ?, ?, ?)`,
		scope.Account, scope.Folder, nativeID, next,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting alias %d for %q: %w", next, nativeID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE alias_counters SET next_id = ?
		WHERE account = ? AND folder = ?`,
		next+1, scope.Account, scope.Folder,
	)
	if err != nil {
		return 0, fmt.Errorf("advancing alias counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing alias %d for %q: %w", next, nativeID, err)
	}

	return next, nil
}

// Aliases returns every record of the scope ordered by short id.
func (s *SQLiteStore) Aliases(ctx context.Context, scope Scope) ([]AliasRecord, error) {
	var records []AliasRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT account, folder, native_id, short_id FROM aliases
		WHERE account = ? AND folder = ?
		ORDER BY short_id`,
		scope.Account, scope.Folder,
	)
	if err != nil {
		return nil, fmt.Errorf("listing aliases of %s/%s: %w", scope.Account, scope.Folder, err)
	}
	return records, nil
}
