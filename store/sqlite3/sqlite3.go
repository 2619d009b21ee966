// Package sqlite3 implements a storage backend in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"sync"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/sitesync"
	"github.com/bobg/sitesync/store"
)

var _ store.Backend = &Backend{}

// Backend is a Sqlite-based implementation of store.Backend.
type Backend struct {
	conn string

	mu sync.Mutex // protects db
	db *sql.DB
}

// Schema is the SQL that Init executes.
// It creates the `files` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS files (
  path TEXT PRIMARY KEY NOT NULL,
  content BLOB NOT NULL
);
`

// New produces a new Backend that will open the database at conn
// (a go-sqlite3 connection string)
// when initialized.
func New(conn string) *Backend {
	return &Backend{conn: conn}
}

// Init implements store.Backend.
func (b *Backend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite3", b.conn)
	if err != nil {
		return errors.Wrapf(err, "opening %s", b.conn)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return errors.Wrap(err, "creating schema")
	}
	b.db = db
	return nil
}

func (b *Backend) getDB() (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil, errors.New("backend not initialized")
	}
	return b.db, nil
}

// Write implements store.Backend.
func (b *Backend) Write(ctx context.Context, path string, content []byte) error {
	const q = `INSERT INTO files (path, content) VALUES ($1, $2) ON CONFLICT (path) DO UPDATE SET content = excluded.content`

	db, err := b.getDB()
	if err != nil {
		return err
	}
	if content == nil {
		content = []byte{}
	}
	_, err = db.ExecContext(ctx, q, path, content)
	return errors.Wrapf(err, "storing %s", path)
}

// Read implements store.Backend.
func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	const q = `SELECT content FROM files WHERE path = $1`

	db, err := b.getDB()
	if err != nil {
		return nil, err
	}

	var content []byte
	err = db.QueryRowContext(ctx, q, path).Scan(&content)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, sitesync.ErrNotFound
	}
	if content == nil && err == nil {
		content = []byte{}
	}
	return content, errors.Wrapf(err, "reading %s", path)
}

// Delete implements store.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	const q = `DELETE FROM files WHERE path = $1`

	db, err := b.getDB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, q, path)
	if err != nil {
		return errors.Wrapf(err, "deleting %s", path)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return sitesync.ErrNotFound
	}
	return nil
}

// List implements store.Backend.
// Paths are produced in lexicographic order.
func (b *Backend) List(ctx context.Context, prefix string, f func(string) error) error {
	const q = `SELECT path FROM files WHERE instr(path, $1) = 1 ORDER BY path`

	db, err := b.getDB()
	if err != nil {
		return err
	}
	return sqlutil.ForQueryRows(ctx, db, q, prefix, f)
}

// Clear implements store.Backend.
func (b *Backend) Clear(ctx context.Context, prefix string) error {
	const q = `DELETE FROM files WHERE instr(path, $1) = 1`

	db, err := b.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, q, prefix)
	return errors.Wrapf(err, "clearing %s", prefix)
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func init() {
	store.Register("sqlite3", func(_ context.Context, conf map[string]interface{}) (store.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		return New(conn), nil
	})
}
