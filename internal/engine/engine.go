// Package engine wraps the embedded SQLite relational engine behind the
// concurrency model the write path needs.
//
// The engine serializes all mutating access behind a single advisory lock:
// a transaction scope (preview or apply) acquires the lock at depth zero and
// layers SAVEPOINTs for every nested scope inside one pinned connection, so
// at most one preview or apply is in flight at a time. Read-only queries go
// straight to the connection pool and never touch the lock. There is no
// timeout on lock acquisition; callers wanting responsiveness surface their
// own busy states.
//
// Prepared statements for the read path are held in a bounded LRU cache
// owned by the wrapper, with eviction closing the evicted statement.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// stmtCacheSize bounds the prepared-statement cache.
const stmtCacheSize = 64

// DB wraps the SQLite connection with the advisory lock and savepoint stack.
type DB struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	// mu is the advisory write lock. Held from the first BeginScope until
	// the savepoint stack empties again. Reentrancy happens only through
	// explicit nesting (further BeginScope calls on the same goroutine's
	// scope chain), never through recursive acquisition.
	mu         sync.Mutex
	scopeConn  *sql.Conn
	savepoints []string

	stmts *lru.Cache[string, *sql.Stmt]
}

// Open creates or opens the database at path. The parent directory is
// created if needed; WAL mode, a busy timeout and foreign keys are enabled.
// The caller must Close when done.
func Open(path string) (*DB, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger is Open with an injectable logger (nil means stderr).
func OpenWithLogger(path string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	cache, err := lru.NewWithEvict[string, *sql.Stmt](stmtCacheSize, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create statement cache: %w", err)
	}
	db.stmts = cache

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// RawDB returns the underlying sql.DB for read-only integration points.
func (db *DB) RawDB() *sql.DB { return db.conn }

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.stmts != nil {
		db.stmts.Purge()
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Query runs a read-only query against the pool, bypassing the advisory
// lock.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryCached runs a read-only query through the bounded prepared-statement
// cache.
func (db *DB) QueryCached(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, ok := db.stmts.Get(query)
	if !ok {
		var err error
		stmt, err = db.conn.PrepareContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		db.stmts.Add(query, stmt)
	}
	return stmt.QueryContext(ctx, args...)
}

// Scope is one level of the nested transaction scope stack. Depth zero holds
// the advisory lock and a pinned connection; every level is backed by its
// own named SAVEPOINT so rollback to an arbitrary depth is explicit.
type Scope struct {
	db    *DB
	name  string
	depth int
	done  bool
}

// BeginScope opens a top-level transaction scope. It blocks until the
// advisory lock is available (cooperative suspension while queued, no busy
// wait), pins a connection, and opens the first savepoint. Reentrancy is
// only available through Scope.Begin; calling BeginScope from inside an open
// scope deadlocks by design.
func (db *DB) BeginScope(ctx context.Context) (*Scope, error) {
	db.mu.Lock()
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		db.mu.Unlock()
		return nil, fmt.Errorf("failed to pin connection: %w", err)
	}
	db.scopeConn = conn

	if _, err := conn.ExecContext(ctx, "SAVEPOINT vq_sp_0"); err != nil {
		_ = conn.Close()
		db.scopeConn = nil
		db.mu.Unlock()
		return nil, fmt.Errorf("failed to open savepoint vq_sp_0: %w", err)
	}
	db.savepoints = []string{"vq_sp_0"}

	return &Scope{db: db, name: "vq_sp_0", depth: 0}, nil
}

// Begin opens a nested scope inside s: one more named savepoint on the same
// pinned connection, without touching the advisory lock again.
func (s *Scope) Begin(ctx context.Context) (*Scope, error) {
	if s.done {
		return nil, fmt.Errorf("scope %s already closed", s.name)
	}
	db := s.db
	depth := len(db.savepoints)
	name := fmt.Sprintf("vq_sp_%d", depth)
	if _, err := db.scopeConn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to open savepoint %s: %w", name, err)
	}
	db.savepoints = append(db.savepoints, name)
	return &Scope{db: db, name: name, depth: depth}, nil
}

// Exec executes a statement on the scope's pinned connection.
func (s *Scope) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.scopeConn.ExecContext(ctx, query, args...)
}

// Query runs a query on the scope's pinned connection, so it observes the
// uncommitted state of the scope.
func (s *Scope) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.scopeConn.QueryContext(ctx, query, args...)
}

// Rollback undoes everything since this scope opened, including any deeper
// scopes still on the stack, then releases the savepoint. At depth zero the
// pinned connection and the advisory lock are released too.
func (s *Scope) Rollback(ctx context.Context) error {
	return s.close(ctx, true)
}

// Release commits this scope's level into its parent (or, at depth zero,
// commits for real) and pops it from the stack.
func (s *Scope) Release(ctx context.Context) error {
	return s.close(ctx, false)
}

func (s *Scope) close(ctx context.Context, rollback bool) error {
	if s.done {
		return fmt.Errorf("scope %s already closed", s.name)
	}
	db := s.db

	// Pop any scopes opened below this one; rolling back or releasing a
	// savepoint implicitly discards deeper savepoints in the engine, so the
	// stack must agree.
	for len(db.savepoints) > 0 && db.savepoints[len(db.savepoints)-1] != s.name {
		db.savepoints = db.savepoints[:len(db.savepoints)-1]
	}
	if len(db.savepoints) == 0 {
		return fmt.Errorf("scope %s is not on the savepoint stack", s.name)
	}
	db.savepoints = db.savepoints[:len(db.savepoints)-1]
	s.done = true

	var firstErr error
	if rollback {
		if _, err := db.scopeConn.ExecContext(ctx, "ROLLBACK TO "+s.name); err != nil {
			firstErr = fmt.Errorf("failed to roll back to %s: %w", s.name, err)
		}
	}
	if _, err := db.scopeConn.ExecContext(ctx, "RELEASE "+s.name); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to release %s: %w", s.name, err)
	}

	if s.depth == 0 {
		if err := db.scopeConn.Close(); err != nil {
			db.logger.Printf("Warning: failed to unpin connection: %v", err)
		}
		db.scopeConn = nil
		db.mu.Unlock()
	}
	return firstErr
}
