package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore is a Store backed by a single SQLite database.
// All named stores share one table keyed by (store_name, key),
// so deleting a store is a row delete and a later put recreates it.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) *SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS responses (
		store_name TEXT NOT NULL,
		key TEXT NOT NULL,
		stored_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (store_name, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS store_name_idx ON responses (store_name)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return &SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s *SQLiteStore) Open(name string) Handle {
	return &sqliteHandle{store: s, name: name}
}

func (s *SQLiteStore) ListNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT store_name FROM responses")
	if err != nil {
		return names, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM responses WHERE store_name = ?", name)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteHandle struct {
	store *SQLiteStore
	name  string
}

func (h *sqliteHandle) Name() string {
	return h.name
}

func (h *sqliteHandle) Get(ctx context.Context, key string) (*Record, bool, error) {
	var bytes []byte
	err := h.store.db.QueryRowContext(ctx,
		"SELECT bytes FROM responses WHERE store_name = ? AND key = ?",
		h.name, key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := unmarshalRecord(bytes)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (h *sqliteHandle) Put(ctx context.Context, key string, rec *Record) error {
	bytes, err := rec.marshal()
	if err != nil {
		return err
	}
	h.store.writeMutex.Lock()
	defer h.store.writeMutex.Unlock()
	_, err = h.store.db.ExecContext(ctx, `INSERT OR REPLACE INTO responses
		(store_name, key, stored_at, bytes) VALUES (?, ?, ?, ?)`,
		h.name, key, time.Now().Unix(), bytes)
	return err
}

func (h *sqliteHandle) Delete(ctx context.Context, key string) error {
	h.store.writeMutex.Lock()
	defer h.store.writeMutex.Unlock()
	_, err := h.store.db.ExecContext(ctx,
		"DELETE FROM responses WHERE store_name = ? AND key = ?", h.name, key)
	return err
}

func (h *sqliteHandle) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	rows, err := h.store.db.QueryContext(ctx,
		"SELECT key FROM responses WHERE store_name = ?", h.name)
	if err != nil {
		return keys, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
