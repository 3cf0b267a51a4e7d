package engine

import (
	"context"
	"fmt"
)

// InitSchema creates the relational schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
//
// All text-backed relations carry the positional columns the write path
// needs to find their way back into the source documents: line_number
// (1-based, -1 for brand-new rows), block_id, start_offset/end_offset and
// anchor_hash.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		path TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		mtime TEXT
	);

	-- Text-backed rows are identified by rowid. line_number stays -1 for
	-- brand-new rows until the next index pass, so several new rows per
	-- document must coexist and it cannot be part of a key.
	CREATE TABLE IF NOT EXISTS tasks (
		path TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT -1,
		block_id TEXT NOT NULL DEFAULT '',
		start_offset INTEGER NOT NULL DEFAULT -1,
		end_offset INTEGER NOT NULL DEFAULT -1,
		anchor_hash TEXT NOT NULL DEFAULT '',

		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT ' ',
		checked INTEGER NOT NULL DEFAULT 0,
		created_date TEXT NOT NULL DEFAULT '',
		scheduled_date TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		due_date TEXT NOT NULL DEFAULT '',
		done_date TEXT NOT NULL DEFAULT '',
		cancelled_date TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT '',
		on_completion TEXT NOT NULL DEFAULT '',
		task_id TEXT NOT NULL DEFAULT '',
		depends_on TEXT NOT NULL DEFAULT '',  -- comma-separated task ids
		priority TEXT NOT NULL DEFAULT 'normal',
		tags TEXT NOT NULL DEFAULT '[]',      -- JSON array
		indent TEXT NOT NULL DEFAULT '',
		list_marker TEXT NOT NULL DEFAULT '-',

		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS headings (
		path TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT -1,
		block_id TEXT NOT NULL DEFAULT '',
		start_offset INTEGER NOT NULL DEFAULT -1,
		end_offset INTEGER NOT NULL DEFAULT -1,
		anchor_hash TEXT NOT NULL DEFAULT '',

		text TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 1,

		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS list_items (
		path TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT -1,
		block_id TEXT NOT NULL DEFAULT '',
		start_offset INTEGER NOT NULL DEFAULT -1,
		end_offset INTEGER NOT NULL DEFAULT -1,
		anchor_hash TEXT NOT NULL DEFAULT '',

		text TEXT NOT NULL,
		indent TEXT NOT NULL DEFAULT '',
		marker TEXT NOT NULL DEFAULT '-',
		ordered INTEGER NOT NULL DEFAULT 0,

		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS table_cells (
		path TEXT NOT NULL,
		table_index INTEGER NOT NULL,
		row_index INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		start_offset INTEGER NOT NULL DEFAULT -1,
		end_offset INTEGER NOT NULL DEFAULT -1,

		PRIMARY KEY (path, table_index, row_index, column_name),
		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS properties (
		path TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,

		PRIMARY KEY (path, key),
		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		path TEXT NOT NULL,
		tag TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT -1,

		PRIMARY KEY (path, tag, line_number),
		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS links (
		path TEXT NOT NULL,
		target TEXT NOT NULL,
		line_number INTEGER NOT NULL DEFAULT -1,

		PRIMARY KEY (path, target, line_number),
		FOREIGN KEY (path) REFERENCES notes(path) ON DELETE CASCADE
	);

	-- View aliases over tasks; the preview engine resolves these through
	-- heuristic key columns since views carry no rowid.
	CREATE VIEW IF NOT EXISTS open_tasks AS
		SELECT * FROM tasks WHERE checked = 0 AND status != '-';

	CREATE VIEW IF NOT EXISTS due_tasks AS
		SELECT * FROM tasks
		WHERE checked = 0 AND due_date != ''
		ORDER BY due_date ASC;

	CREATE INDEX IF NOT EXISTS idx_tasks_path_line ON tasks(path, line_number);
	CREATE INDEX IF NOT EXISTS idx_tasks_checked ON tasks(checked);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
	CREATE INDEX IF NOT EXISTS idx_tasks_block ON tasks(block_id) WHERE block_id != '';
	CREATE INDEX IF NOT EXISTS idx_headings_path ON headings(path, line_number);
	CREATE INDEX IF NOT EXISTS idx_list_items_path ON list_items(path, line_number);
	CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);
	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ViewKeyColumns maps each known view to the heuristic key-column set used
// to refetch prior row state when neither a rowid nor a declared primary key
// is available.
var ViewKeyColumns = map[string][]string{
	"open_tasks": {"path", "line_number"},
	"due_tasks":  {"path", "line_number"},
}
