// SQLite backed implementation of the session Store. Each session is stored
// as a JSON blob keyed by its identifier which keeps the schema trivial and
// lets the record evolve without migrations. Callers are expected to open a
// single store with NewSQLiteStore and reuse it for all requests.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore satisfies the Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the SQLite database located at path, creating the file
// and the sessions table when they do not exist.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, data TEXT NOT NULL)`); err != nil {
		d.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	return &SQLiteStore{db: d}, nil
}

// Close releases the underlying database handle.
func (st *SQLiteStore) Close() error {
	return st.db.Close()
}

// Get loads the session stored under id. ErrNotFound is returned when the
// identifier is unknown, which callers treat as an unauthenticated client.
func (st *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var data string
	err := st.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id=?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	s.ID = id
	return &s, nil
}

// Put saves the session, replacing any previously stored record with the same
// identifier.
func (st *SQLiteStore) Put(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = st.db.ExecContext(ctx, `INSERT INTO sessions(id, data) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET data=excluded.data`, s.ID, string(b))
	return err
}

// Delete removes the session wholesale. Deleting an unknown identifier is not
// an error so logout can always succeed.
func (st *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := st.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}
