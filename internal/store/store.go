// Package store persists archive indexes in a SQLite database so that they can be reused without re-indexing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nguyengg/gogextract"
	"github.com/nguyengg/gogextract/zip/scan"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load if no index has been saved for the URL.
var ErrNotFound = errors.New("index not found")

const schema = `
CREATE TABLE IF NOT EXISTS archives (
	url           TEXT PRIMARY KEY,
	size          INTEGER NOT NULL,
	script_len    INTEGER NOT NULL,
	bootstrap_len INTEGER NOT NULL,
	eocd_offset   INTEGER NOT NULL,
	zip64         INTEGER NOT NULL,
	cd_start      INTEGER NOT NULL,
	cd_size       INTEGER NOT NULL,
	comment       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	url          TEXT NOT NULL REFERENCES archives(url) ON DELETE CASCADE,
	ordinal      INTEGER NOT NULL,
	name         TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	header       BLOB NOT NULL,
	PRIMARY KEY (url, ordinal)
);
CREATE INDEX IF NOT EXISTS entries_name ON entries (url, name);
`

// Store saves and loads gogextract.ArchiveIndex values.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database error: %w", err)
	}

	// a single connection keeps the foreign_keys pragma in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"+schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema error: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces any index previously saved for idx.URL with idx.
func (s *Store) Save(ctx context.Context, idx *gogextract.ArchiveIndex) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction error: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM archives WHERE url = ?`, idx.URL); err != nil {
		return fmt.Errorf("delete archive error: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO archives (url, size, script_len, bootstrap_len, eocd_offset, zip64, cd_start, cd_size, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx.URL, idx.Size, idx.ScriptLen, idx.BootstrapLen, idx.Location.Offset, idx.Location.Zip64, idx.CDStart,
		idx.CDSize, idx.Comment); err != nil {
		return fmt.Errorf("insert archive error: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (url, ordinal, name, start_offset, end_offset, header) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert entry error: %w", err)
	}
	defer stmt.Close()

	for i, e := range idx.Entries {
		header, err := e.CDEntry.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal entry %q error: %w", e.Name, err)
		}

		if _, err = stmt.ExecContext(ctx, idx.URL, i, e.Name, e.StartOffset, e.EndOffset, header); err != nil {
			return fmt.Errorf("insert entry %q error: %w", e.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction error: %w", err)
	}

	return nil
}

// Load returns the index saved for the given URL.
//
// Returns ErrNotFound if there is none.
func (s *Store) Load(ctx context.Context, url string) (*gogextract.ArchiveIndex, error) {
	idx := &gogextract.ArchiveIndex{URL: url}

	switch err := s.db.QueryRowContext(ctx,
		`SELECT size, script_len, bootstrap_len, eocd_offset, zip64, cd_start, cd_size, comment
		FROM archives WHERE url = ?`, url).
		Scan(&idx.Size, &idx.ScriptLen, &idx.BootstrapLen, &idx.Location.Offset, &idx.Location.Zip64, &idx.CDStart,
			&idx.CDSize, &idx.Comment); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("select archive error: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT start_offset, end_offset, header FROM entries WHERE url = ? ORDER BY ordinal`, url)
	if err != nil {
		return nil, fmt.Errorf("select entries error: %w", err)
	}
	defer rows.Close()

	idx.Entries = make([]gogextract.Entry, 0)
	for rows.Next() {
		var (
			e      gogextract.Entry
			header []byte
		)
		if err = rows.Scan(&e.StartOffset, &e.EndOffset, &header); err != nil {
			return nil, fmt.Errorf("scan entry error: %w", err)
		}

		if e.CDEntry, _, err = scan.UnmarshalCDEntry(header); err != nil {
			return nil, fmt.Errorf("decode entry %d error: %w", len(idx.Entries), err)
		}

		idx.Entries = append(idx.Entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries error: %w", err)
	}

	return idx, nil
}

// URLs returns the URLs of all saved indexes in lexicographical order.
func (s *Store) URLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM archives ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("select archives error: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err = rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan archive error: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, rows.Err()
}
