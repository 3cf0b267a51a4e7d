// Package indexer performs the forward extraction pass: it walks the vault,
// parses every Markdown note into entity rows, and replaces the relational
// image of each note inside a single engine scope.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bobstanton/vaultquery/internal/engine"
	"github.com/bobstanton/vaultquery/internal/vault"
)

// Stats summarizes one indexing pass.
type Stats struct {
	Notes      int
	Tasks      int
	Headings   int
	ListItems  int
	Cells      int
	Properties int
	Tags       int
	Links      int
	Elapsed    time.Duration
}

// Indexer rebuilds the relational image of the vault.
type Indexer struct {
	db     *engine.DB
	store  *vault.FS
	logger *log.Logger

	// SlowFileThreshold triggers a per-file log line when one note takes
	// longer than this to parse and store. Zero disables the check.
	SlowFileThreshold time.Duration
}

// New returns an Indexer over the given store and engine.
func New(db *engine.DB, store *vault.FS, logger *log.Logger) *Indexer {
	if logger == nil {
		logger = log.New(os.Stderr, "[indexer] ", log.LstdFlags)
	}
	return &Indexer{db: db, store: store, logger: logger}
}

// FullSync walks the whole vault and rebuilds every note's rows. Notes that
// no longer exist on disk are removed; their child rows cascade.
func (ix *Indexer) FullSync(ctx context.Context) (Stats, error) {
	started := time.Now()
	var stats Stats

	scope, err := ix.db.BeginScope(ctx)
	if err != nil {
		return stats, err
	}

	seen := make(map[string]bool)
	walkErr := ix.store.Walk(func(path string) error {
		seen[path] = true
		fileStart := time.Now()
		if err := ix.syncFile(ctx, scope, path, &stats); err != nil {
			return err
		}
		if ix.SlowFileThreshold > 0 {
			if d := time.Since(fileStart); d > ix.SlowFileThreshold {
				ix.logger.Printf("Warning: slow file %s took %v", path, d)
			}
		}
		return nil
	})
	if walkErr == nil {
		walkErr = ix.pruneMissing(ctx, scope, seen)
	}
	if walkErr != nil {
		if rbErr := scope.Rollback(ctx); rbErr != nil {
			ix.logger.Printf("Warning: failed to unwind index scope: %v", rbErr)
		}
		return stats, walkErr
	}
	if err := scope.Release(ctx); err != nil {
		return stats, err
	}

	stats.Elapsed = time.Since(started)
	ix.logger.Printf("indexed %d notes in %v (%d tasks, %d headings, %d list items, %d cells)",
		stats.Notes, stats.Elapsed.Round(time.Millisecond), stats.Tasks, stats.Headings, stats.ListItems, stats.Cells)
	return stats, nil
}

// SyncPath re-indexes a single note in its own scope.
func (ix *Indexer) SyncPath(ctx context.Context, path string) error {
	scope, err := ix.db.BeginScope(ctx)
	if err != nil {
		return err
	}
	var stats Stats
	if err := ix.syncFile(ctx, scope, path, &stats); err != nil {
		if rbErr := scope.Rollback(ctx); rbErr != nil {
			ix.logger.Printf("Warning: failed to unwind index scope: %v", rbErr)
		}
		return err
	}
	return scope.Release(ctx)
}

// syncFile replaces one note's rows. The note row is written first so the
// child tables' foreign keys hold, then each child table is cleared and
// refilled from the fresh parse.
func (ix *Indexer) syncFile(ctx context.Context, scope *engine.Scope, path string, stats *Stats) error {
	text, err := ix.store.ReadText(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(path, text)
	if err != nil {
		return err
	}

	if _, err := scope.Exec(ctx, `
		INSERT INTO notes (path, title, content, mtime) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET title = excluded.title, content = excluded.content, mtime = excluded.mtime`,
		path, doc.Title, text, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store note %s: %w", path, err)
	}
	stats.Notes++

	for _, table := range []string{"tasks", "headings", "list_items", "table_cells", "properties", "tags", "links"} {
		if _, err := scope.Exec(ctx, "DELETE FROM "+table+" WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, path, err)
		}
	}

	for _, t := range doc.Tasks {
		tags, err := json.Marshal(t.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags for %s: %w", path, err)
		}
		if _, err := scope.Exec(ctx, `
			INSERT INTO tasks (path, line_number, block_id, start_offset, end_offset, anchor_hash,
				text, status, checked, created_date, scheduled_date, start_date, due_date,
				done_date, cancelled_date, recurrence, on_completion, task_id, depends_on,
				priority, tags, indent, list_marker)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Path, t.LineNumber, t.BlockID, t.StartOffset, t.EndOffset, t.AnchorHash,
			t.Text, t.Status, t.Checked, t.Created, t.Scheduled, t.Start, t.Due,
			t.Done, t.Cancelled, t.Recurrence, t.OnCompletion, t.TaskID, strings.Join(t.DependsOn, ","),
			t.Priority, string(tags), t.Indent, t.ListMarker); err != nil {
			return fmt.Errorf("failed to store task at %s:%d: %w", path, t.LineNumber, err)
		}
		stats.Tasks++
	}

	for _, h := range doc.Headings {
		if _, err := scope.Exec(ctx, `
			INSERT INTO headings (path, line_number, block_id, start_offset, end_offset, anchor_hash, text, level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			h.Path, h.LineNumber, h.BlockID, h.StartOffset, h.EndOffset, h.AnchorHash, h.Text, h.Level); err != nil {
			return fmt.Errorf("failed to store heading at %s:%d: %w", path, h.LineNumber, err)
		}
		stats.Headings++
	}

	for _, l := range doc.ListItems {
		if _, err := scope.Exec(ctx, `
			INSERT INTO list_items (path, line_number, block_id, start_offset, end_offset, anchor_hash, text, indent, marker, ordered)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Path, l.LineNumber, l.BlockID, l.StartOffset, l.EndOffset, l.AnchorHash, l.Text, l.Indent, l.Marker, l.Ordered); err != nil {
			return fmt.Errorf("failed to store list item at %s:%d: %w", path, l.LineNumber, err)
		}
		stats.ListItems++
	}

	for _, c := range doc.Cells {
		if _, err := scope.Exec(ctx, `
			INSERT INTO table_cells (path, table_index, row_index, column_name, value, start_offset, end_offset)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Path, c.TableIndex, c.RowIndex, c.Column, c.Value, c.StartOffset, c.EndOffset); err != nil {
			return fmt.Errorf("failed to store table cell at %s table %d: %w", path, c.TableIndex, err)
		}
		stats.Cells++
	}

	for _, p := range doc.Properties {
		if _, err := scope.Exec(ctx,
			"INSERT INTO properties (path, key, value) VALUES (?, ?, ?)",
			p.Path, p.Key, p.Value); err != nil {
			return fmt.Errorf("failed to store property %s of %s: %w", p.Key, path, err)
		}
		stats.Properties++
	}

	for _, t := range doc.Tags {
		if _, err := scope.Exec(ctx,
			"INSERT OR IGNORE INTO tags (path, tag, line_number) VALUES (?, ?, ?)",
			path, t.Tag, t.Line); err != nil {
			return fmt.Errorf("failed to store tag #%s of %s: %w", t.Tag, path, err)
		}
		stats.Tags++
	}

	for _, l := range doc.Links {
		if _, err := scope.Exec(ctx,
			"INSERT OR IGNORE INTO links (path, target, line_number) VALUES (?, ?, ?)",
			path, l.Target, l.Line); err != nil {
			return fmt.Errorf("failed to store link to %s from %s: %w", l.Target, path, err)
		}
		stats.Links++
	}
	return nil
}

// pruneMissing deletes note rows whose files disappeared since the last
// pass.
func (ix *Indexer) pruneMissing(ctx context.Context, scope *engine.Scope, seen map[string]bool) error {
	rows, err := scope.Query(ctx, "SELECT path FROM notes")
	if err != nil {
		return fmt.Errorf("failed to list indexed notes: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return err
		}
		if !seen[path] {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, path := range stale {
		if _, err := scope.Exec(ctx, "DELETE FROM notes WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to prune %s: %w", path, err)
		}
		ix.logger.Printf("pruned missing note %s", path)
	}
	return nil
}
