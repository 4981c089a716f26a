// Package tcc reads the macOS privacy (TCC) databases.
//
// The databases are only ever opened read-only. Reading the system
// database normally requires Full Disk Access; a database that cannot be
// opened is reported as an error, a database without a matching row is
// reported as permission.ErrNoRecord.
package tcc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"voicebar/permission"

	_ "modernc.org/sqlite"
)

// SystemDatabase holds machine-wide services such as Accessibility,
// ListenEvent and ScreenCapture.
const SystemDatabase = "/Library/Application Support/com.apple.TCC/TCC.db"

// UserDatabase returns the per-user database path.
func UserDatabase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", "com.apple.TCC", "TCC.db"), nil
}

// DefaultPaths returns the user database followed by the system database.
func DefaultPaths() []string {
	var paths []string
	if p, err := UserDatabase(); err == nil {
		paths = append(paths, p)
	}
	return append(paths, SystemDatabase)
}

// auth_value codes written by tccd.
const (
	authDenied  = 0
	authUnknown = 1
	authAllowed = 2
	authLimited = 3
)

// Store looks up privacy records across one or more databases.
type Store struct {
	paths  []string
	logger *slog.Logger
}

// NewStore creates a Store over paths, searched in order.
func NewStore(paths []string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{paths: append([]string(nil), paths...), logger: logger}
}

// Paths returns the databases searched by the store.
func (s *Store) Paths() []string { return append([]string(nil), s.paths...) }

// Lookup returns the status recorded for client and service in the first
// database that has a row for them.
func (s *Store) Lookup(ctx context.Context, service, client string) (permission.Status, error) {
	var errs []error
	for _, path := range s.paths {
		status, err := s.lookupIn(ctx, path, service, client)
		switch {
		case err == nil:
			return status, nil
		case errors.Is(err, permission.ErrNoRecord):
			continue
		default:
			s.logger.Debug("privacy database unreadable", "path", path, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) == len(s.paths) {
		return permission.StatusError, errors.Join(errs...)
	}
	return permission.StatusNotDetermined, permission.ErrNoRecord
}

// Readable opens path and verifies the access table can be queried.
func (s *Store) Readable(ctx context.Context, path string) error {
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = accessColumn(ctx, db)
	return err
}

func (s *Store) lookupIn(ctx context.Context, path, service, client string) (permission.Status, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return permission.StatusNotDetermined, permission.ErrNoRecord
	}
	db, err := open(path)
	if err != nil {
		return permission.StatusError, err
	}
	defer db.Close()

	column, err := accessColumn(ctx, db)
	if err != nil {
		return permission.StatusError, fmt.Errorf("%s: %w", path, err)
	}
	var value int
	err = db.QueryRowContext(ctx,
		"SELECT "+column+" FROM access WHERE service = ? AND client = ? LIMIT 1",
		service, client).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return permission.StatusNotDetermined, permission.ErrNoRecord
	}
	if err != nil {
		return permission.StatusError, fmt.Errorf("%s: query access: %w", path, err)
	}
	if column == "allowed" {
		return legacyStatus(value), nil
	}
	return authStatus(value), nil
}

func open(path string) (*sql.DB, error) {
	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// accessColumn returns the column holding the decision: auth_value on
// macOS 11 and later, allowed before that.
func accessColumn(ctx context.Context, db *sql.DB) (string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(access)")
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var hasLegacy bool
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return "", fmt.Errorf("read schema: %w", err)
		}
		switch name {
		case "auth_value":
			return name, nil
		case "allowed":
			hasLegacy = true
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	if hasLegacy {
		return "allowed", nil
	}
	return "", errors.New("access table has no decision column")
}

func authStatus(v int) permission.Status {
	switch v {
	case authAllowed, authLimited:
		return permission.StatusGranted
	case authDenied:
		return permission.StatusDenied
	case authUnknown:
		return permission.StatusNotDetermined
	}
	return permission.StatusError
}

func legacyStatus(v int) permission.Status {
	if v == 1 {
		return permission.StatusGranted
	}
	return permission.StatusDenied
}
