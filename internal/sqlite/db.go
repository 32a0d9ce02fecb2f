package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// dbtx is the query surface shared by *sql.DB and *sql.Tx, so a repository
// can run standalone or bound to a unit of work.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(dataSourceName) {
		// The pool would otherwise hand each connection its own memory
		// database, or trip shared-cache table locks under concurrency.
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func isMemory(name string) bool {
	return strings.Contains(name, ":memory:") || strings.Contains(name, "mode=memory")
}

// dsn decorates plain file paths with the pragmas a long-running service
// wants. Memory databases and explicit file: URIs pass through untouched.
func dsn(name string) string {
	if isMemory(name) || strings.HasPrefix(name, "file:") {
		return name
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", name)
}

// RunMigrations runs the migrations directly (for testing and the migrate
// command). The schema is small enough to live inline.
func (db *DB) RunMigrations() error {
	migration := `
-- Projects table
CREATE TABLE projects (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_tenant_projects ON projects(tenant_id);

-- Counters table
CREATE TABLE counters (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    parent_id TEXT,
    name TEXT NOT NULL,
    current_value INTEGER NOT NULL DEFAULT 0,
    min_value INTEGER,
    max_value INTEGER,
    increment_by INTEGER NOT NULL DEFAULT 1,
    pattern TEXT NOT NULL DEFAULT '{"kind":"simple"}',
    clicks INTEGER NOT NULL DEFAULT 0,
    display_color TEXT NOT NULL DEFAULT '',
    is_visible INTEGER NOT NULL DEFAULT 1,
    sort_order INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (parent_id) REFERENCES counters(id) ON DELETE SET NULL
);
CREATE INDEX idx_tenant_counters ON counters(tenant_id);
CREATE INDEX idx_project_counters ON counters(project_id, sort_order);
CREATE INDEX idx_parent_counters ON counters(parent_id);

-- Directed conditional links between counters. One directed edge per pair.
CREATE TABLE counter_links (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    source_counter_id TEXT NOT NULL,
    target_counter_id TEXT NOT NULL,
    link_type TEXT NOT NULL CHECK(link_type IN ('reset_on_target', 'conditional', 'advance_together')),
    trigger_operator TEXT CHECK(trigger_operator IN ('equals', 'greater_than', 'less_than')),
    trigger_value INTEGER,
    action_type TEXT NOT NULL CHECK(action_type IN ('reset', 'set', 'increment')),
    action_value INTEGER,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (source_counter_id, target_counter_id),
    CHECK (source_counter_id <> target_counter_id),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
    FOREIGN KEY (source_counter_id) REFERENCES counters(id) ON DELETE CASCADE,
    FOREIGN KEY (target_counter_id) REFERENCES counters(id) ON DELETE CASCADE
);
CREATE INDEX idx_tenant_links ON counter_links(tenant_id);
CREATE INDEX idx_source_links ON counter_links(source_counter_id);
CREATE INDEX idx_target_links ON counter_links(target_counter_id);

-- Append-only history ledger. The autoincrement id doubles as the broadcast
-- sequence, so entries for one counter are totally ordered. triggered_by and
-- undone_entry_id carry no foreign keys: the ledger outlives deleted links.
CREATE TABLE counter_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    counter_id TEXT NOT NULL,
    old_value INTEGER NOT NULL,
    new_value INTEGER NOT NULL,
    action TEXT NOT NULL CHECK(action IN ('created', 'increment', 'decrement', 'reset', 'set', 'undo')),
    user_note TEXT,
    triggered_by TEXT,
    undone_entry_id INTEGER,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (counter_id) REFERENCES counters(id) ON DELETE CASCADE
);
CREATE INDEX idx_tenant_history ON counter_history(tenant_id);
CREATE INDEX idx_counter_history ON counter_history(counter_id, id);
CREATE INDEX idx_project_history ON counter_history(project_id, id);

-- API keys for authentication
CREATE TABLE api_keys (
    key_hash TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used TIMESTAMP,
    description TEXT
);
CREATE INDEX idx_tenant_keys ON api_keys(tenant_id);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
