// Package store is the relational ConstructStore of the topic map engine.
//
// All constructs live in one SQLite database opened through modernc.org/sqlite.
// The schema is normalised: one constructs table (topic maps, topics,
// associations, roles, names, occurrences, variants), one identities table
// keyed by (topic map, kind, value), and two relation tables for scope themes
// and topic types. The duplicate digest of every statement is persisted in
// constructs.hash and indexed together with its parent, so duplicate lookups
// are a single index probe.
//
// Every top-level engine operation runs in exactly one Tx. Write transactions
// additionally hold an flock(2) on <db>.lock so that a second process cannot
// interleave a merge with ours.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/logger"
	"github.com/stribert/striberts-quaaxtm-sub002/internal/tmerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS constructs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	topicmap_id INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	parent_id INTEGER,
	type_id INTEGER,
	value TEXT,
	datatype TEXT,
	player_id INTEGER,
	reifier_id INTEGER,
	hash TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_topicmap_locator ON constructs(value) WHERE kind = 1;
CREATE INDEX IF NOT EXISTS idx_constructs_parent ON constructs(parent_id, kind);
CREATE INDEX IF NOT EXISTS idx_constructs_hash ON constructs(parent_id, kind, hash);
CREATE INDEX IF NOT EXISTS idx_constructs_type ON constructs(type_id);
CREATE INDEX IF NOT EXISTS idx_constructs_player ON constructs(player_id);
CREATE INDEX IF NOT EXISTS idx_constructs_reifier ON constructs(reifier_id);

CREATE TABLE IF NOT EXISTS identities (
	topicmap_id INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	value TEXT NOT NULL,
	construct_id INTEGER NOT NULL,
	PRIMARY KEY (topicmap_id, kind, value)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_identities_construct ON identities(construct_id);

CREATE TABLE IF NOT EXISTS scopes (
	construct_id INTEGER NOT NULL,
	theme_id INTEGER NOT NULL,
	PRIMARY KEY (construct_id, theme_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_scopes_theme ON scopes(theme_id);

CREATE TABLE IF NOT EXISTS topic_types (
	topic_id INTEGER NOT NULL,
	type_id INTEGER NOT NULL,
	PRIMARY KEY (topic_id, type_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS idx_topic_types_type ON topic_types(type_id);
`

// Options tunes how a Store is opened.
type Options struct {
	// LockFile enables the cross-process flock around write transactions.
	LockFile bool
	Logger   *zap.Logger
}

// Store owns the database handle. It is created once per topic map system and
// torn down by Close.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger

	lockMu   sync.Mutex
	lockFile *os.File
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// the schema.
func Open(dbPath string, opts Options) (*Store, error) {
	log := logger.OrNop(opts.Logger)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, tmerr.NewStorageError(fmt.Sprintf("open sqlite %s", dbPath), err)
	}
	// One connection: the engine is single-writer and a Tx must see its own
	// uncommitted rows on every query.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, tmerr.NewStorageError(pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, tmerr.NewStorageError("create schema", err)
	}

	s := &Store{db: db, dbPath: dbPath, log: log}
	if opts.LockFile {
		f, err := os.OpenFile(dbPath+".lock", os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			_ = db.Close()
			return nil, tmerr.NewStorageError("open lock file", err)
		}
		s.lockFile = f
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Begin starts a transaction bound to the topic map tm (0 for operations that
// are not scoped to a topic map, such as creating one).
func (s *Store) Begin(ctx context.Context, tm int64) (*Tx, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.unlock()
		return nil, tmerr.NewStorageError("begin transaction", err)
	}
	return &Tx{
		tx:    sqlTx,
		ctx:   ctx,
		tm:    tm,
		store: s,
		rows:  make(map[int64]*Row),
	}, nil
}

func (s *Store) lock() error {
	if s.lockFile == nil {
		return nil
	}
	s.lockMu.Lock()
	if err := unix.Flock(int(s.lockFile.Fd()), unix.LOCK_EX); err != nil {
		s.lockMu.Unlock()
		return tmerr.NewStorageError("acquire store lock", err)
	}
	return nil
}

func (s *Store) unlock() {
	if s.lockFile == nil {
		return
	}
	if err := unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN); err != nil {
		s.log.Warn("release store lock", zap.Error(err))
	}
	s.lockMu.Unlock()
}

// Close closes the database and the lock file.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lockFile != nil {
		if err2 := s.lockFile.Close(); err == nil {
			err = err2
		}
	}
	return err
}
