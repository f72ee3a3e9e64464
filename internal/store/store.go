// Package store persists view dumps to SQLite so a replica can reload
// its CRDT state across restarts instead of re-synchronizing from
// peers every time. Grounded on the teacher's SQLiteStore
// (internal/storage/sqlite/sqlite.go): same upsert-by-primary-key
// shape, same driver, generalized from entry+tags rows to
// name+kind+dump rows.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a named dump does not exist.
type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("store: no dump named %q", e.Name)
}

// Record is one persisted view dump.
type Record struct {
	Name      string
	Kind      string // "register", "set", "list", or "text"
	Dump      []byte // the view's own Dump() JSON
	UpdatedAt int64  // unix nanos
}

// Store is a SQLite-backed table of named view dumps.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path. Use
// ":memory:" for an ephemeral store, matching the teacher's
// SQLiteStore.New convention.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS views (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			dump BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_views_kind ON views(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put upserts a dump by name.
func (s *Store) Put(r Record) error {
	_, err := s.db.Exec(`
		INSERT INTO views (name, kind, dump, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			dump = excluded.dump,
			updated_at = excluded.updated_at
	`, r.Name, r.Kind, r.Dump, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: put %q: %w", r.Name, err)
	}
	return nil
}

// Get retrieves a dump by name.
func (s *Store) Get(name string) (Record, error) {
	var r Record
	r.Name = name
	err := s.db.QueryRow(`
		SELECT kind, dump, updated_at FROM views WHERE name = ?
	`, name).Scan(&r.Kind, &r.Dump, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound{Name: name}
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %q: %w", name, err)
	}
	return r, nil
}

// List returns every dump of the given kind, or every dump when kind
// is empty.
func (s *Store) List(kind string) ([]Record, error) {
	query := "SELECT name, kind, dump, updated_at FROM views"
	args := []any{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.Kind, &r.Dump, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a dump by name. It is not an error to delete a name
// that does not exist.
func (s *Store) Delete(name string) error {
	_, err := s.db.Exec("DELETE FROM views WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", name, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
