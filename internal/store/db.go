// Package store is the persistent side of the agent: settings (access token,
// watchlist) and the set of content hashes that were already uploaded, both
// kept in one local SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gyazemon/internal/migrations"
	"github.com/dmitrijs2005/gyazemon/internal/repositories/kv"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	NamespaceConfig   = "config"
	NamespaceUploaded = "uploaded"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func RunMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

type Store struct {
	db       *sql.DB
	Settings *Settings
	Uploaded *UploadedSet
}

// Open opens (creating if needed) the SQLite database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		Settings: &Settings{db: db, repo: kv.NewSQLiteRepository(db, NamespaceConfig)},
		Uploaded: &UploadedSet{repo: kv.NewSQLiteRepository(db, NamespaceUploaded)},
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
