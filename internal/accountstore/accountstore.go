// Package accountstore is the trimmed account lookup the call engine needs
// to resolve a call's credentials and base URL: account_sid, secret,
// base_url — fixed once at Requestor construction and never mutated for
// the life of a call. Grounded on a migrate-on-open database.Open
// pattern, narrowed from a full PBX admin schema (extensions, trunks,
// IVR menus, ...) to the single table the engine actually reads.
package accountstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Account is the row shape a CallSession needs to build its initial
// Requestor.
type Account struct {
	AccountSID string
	Secret     string
	BaseURL    string
}

// ErrNotFound is returned when no account matches the given SID.
var ErrNotFound = errors.New("accountstore: account not found")

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_sid TEXT PRIMARY KEY,
	secret      TEXT NOT NULL,
	base_url    TEXT NOT NULL
);
`

// Store is a sqlite-backed account lookup.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and runs
// the schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("accountstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("accountstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Lookup fetches an account by SID.
func (s *Store) Lookup(ctx context.Context, accountSID string) (Account, error) {
	var a Account
	row := s.db.QueryRowContext(ctx,
		`SELECT account_sid, secret, base_url FROM accounts WHERE account_sid = ?`, accountSID)
	if err := row.Scan(&a.AccountSID, &a.Secret, &a.BaseURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("accountstore: lookup %s: %w", accountSID, err)
	}
	return a, nil
}

// Upsert creates or updates an account row.
func (s *Store) Upsert(ctx context.Context, a Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_sid, secret, base_url) VALUES (?, ?, ?)
		ON CONFLICT(account_sid) DO UPDATE SET secret = excluded.secret, base_url = excluded.base_url
	`, a.AccountSID, a.Secret, a.BaseURL)
	if err != nil {
		return fmt.Errorf("accountstore: upsert %s: %w", a.AccountSID, err)
	}
	return nil
}
