package writesync

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bobstanton/vaultquery/internal/engine"
	"github.com/bobstanton/vaultquery/internal/indexer"
	"github.com/bobstanton/vaultquery/internal/preview"
	"github.com/bobstanton/vaultquery/internal/vault"
)

const todoNote = `---
title: Todo
status: draft
tags:
  - planning
---

# Todo

- [ ] Buy milk
- [ ] Buy eggs
- [ ] Write report
`

// harness wires a real vault directory, engine and indexer together the way
// the CLI does.
type harness struct {
	db     *engine.DB
	store  *vault.FS
	idx    *indexer.Indexer
	prev   *preview.Previewer
	syncer *Syncer
	dir    string
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	dir := t.TempDir()
	for path, text := range files {
		abs := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(text), 0644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	logger := log.New(os.Stderr, "[test] ", 0)
	db, err := engine.OpenWithLogger(filepath.Join(dir, ".vq", "index.db"), logger)
	if err != nil {
		t.Fatalf("OpenWithLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	store, err := vault.Open(dir, logger)
	if err != nil {
		t.Fatalf("vault.Open() error = %v", err)
	}

	idx := indexer.New(db, store, logger)
	if _, err := idx.FullSync(context.Background()); err != nil {
		t.Fatalf("FullSync() error = %v", err)
	}

	return &harness{
		db:     db,
		store:  store,
		idx:    idx,
		prev:   preview.New(db, logger),
		syncer: New(db, store, Config{Logger: logger}),
		dir:    dir,
	}
}

func (h *harness) apply(t *testing.T, statement string, params ...any) *Result {
	t.Helper()
	pv, err := h.prev.Preview(context.Background(), statement, params...)
	if err != nil {
		t.Fatalf("Preview(%q) error = %v", statement, err)
	}
	res, err := h.syncer.Apply(context.Background(), pv)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return res
}

func (h *harness) fileText(t *testing.T, path string) string {
	t.Helper()
	text, err := h.store.ReadText(path)
	if err != nil {
		t.Fatalf("ReadText(%s) error = %v", path, err)
	}
	return text
}

func (h *harness) scalarInt(t *testing.T, query string, args ...any) int {
	t.Helper()
	rows, err := h.db.Query(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer rows.Close()
	var n int
	if !rows.Next() {
		t.Fatalf("no rows for %q", query)
	}
	if err := rows.Scan(&n); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return n
}

func TestApply_TaskCompletionRewritesLine(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	res := h.apply(t,
		"UPDATE tasks SET checked = 1, done_date = '2026-09-01' WHERE path = 'todo.md' AND text = 'Buy milk'")

	if len(res.AffectedPaths) != 1 || res.AffectedPaths[0] != "todo.md" {
		t.Fatalf("AffectedPaths = %v, want [todo.md]", res.AffectedPaths)
	}
	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "- [x] Buy milk ✅ 2026-09-01") {
		t.Errorf("completed line missing:\n%s", text)
	}
	if !strings.Contains(text, "- [ ] Buy eggs") || !strings.Contains(text, "- [ ] Write report") {
		t.Errorf("sibling tasks disturbed:\n%s", text)
	}

	// The relational side committed too.
	if n := h.scalarInt(t, "SELECT checked FROM tasks WHERE path = 'todo.md' AND text = 'Buy milk'"); n != 1 {
		t.Errorf("checked in database = %d, want 1", n)
	}
}

func TestApply_BareCompletionStampsDoneDate(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": "# Todo\n\n- [ ] Buy milk ^abc123\n"})

	h.apply(t, "UPDATE tasks SET checked = 1 WHERE path = 'todo.md' AND text = 'Buy milk'")

	today := time.Now().Format("2006-01-02")
	text := h.fileText(t, "todo.md")
	if want := "- [x] Buy milk ✅ " + today + " ^abc123"; !strings.Contains(text, want) {
		t.Errorf("completed line = missing %q:\n%s", want, text)
	}
}

func TestApply_MultiRowInsertIntoOneDocument(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	res := h.apply(t,
		"INSERT INTO tasks (path, text) VALUES ('todo.md', 'Task one'), ('todo.md', 'Task two')")

	if len(res.AffectedPaths) != 1 {
		t.Fatalf("AffectedPaths = %v, want [todo.md]", res.AffectedPaths)
	}
	text := h.fileText(t, "todo.md")
	// Both new rows land as one block after the document's existing tasks.
	if !strings.Contains(text, "- [ ] Write report\n- [ ] Task one\n- [ ] Task two\n") {
		t.Errorf("new tasks not appended as a block:\n%s", text)
	}
	if n := h.scalarInt(t, "SELECT COUNT(*) FROM tasks WHERE path = 'todo.md' AND line_number = -1"); n != 2 {
		t.Errorf("new rows in database = %d, want 2", n)
	}
}

func TestApply_BrokenFrontmatterLeavesDocumentIntact(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	// The frontmatter drifted to invalid YAML after indexing; the property
	// edit must fail without touching the file.
	broken := "---\nstatus: [unclosed\n---\n\n# Todo\n\n- [ ] Buy milk\n"
	if err := h.store.WriteText("todo.md", broken); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	res := h.apply(t, "UPDATE properties SET value = 'published' WHERE path = 'todo.md' AND key = 'status'")

	if got := h.fileText(t, "todo.md"); got != broken {
		t.Errorf("document changed by a failed frontmatter edit:\n%q", got)
	}
	if len(res.AffectedPaths) != 0 {
		t.Errorf("AffectedPaths = %v, want none", res.AffectedPaths)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "frontmatter edit failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want a frontmatter failure warning", res.Warnings)
	}
}

func TestApply_InsertAppendsTask(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	res := h.apply(t,
		"INSERT INTO tasks (path, text, due_date) VALUES ('todo.md', 'Call plumber', '2026-09-10')")

	if len(res.AffectedPaths) != 1 {
		t.Fatalf("AffectedPaths = %v, want [todo.md]", res.AffectedPaths)
	}
	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "- [ ] Call plumber 📅 2026-09-10") {
		t.Errorf("new task missing:\n%s", text)
	}
	// New tasks land after the document's existing tasks.
	if strings.Index(text, "Call plumber") < strings.Index(text, "Write report") {
		t.Errorf("new task not appended after existing tasks:\n%s", text)
	}
}

func TestApply_DeleteRemovesWholeLine(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	h.apply(t, "DELETE FROM tasks WHERE path = 'todo.md' AND text = 'Buy eggs'")

	text := h.fileText(t, "todo.md")
	if strings.Contains(text, "Buy eggs") {
		t.Errorf("deleted task still present:\n%s", text)
	}
	if !strings.Contains(text, "- [ ] Buy milk\n- [ ] Write report") {
		t.Errorf("surrounding lines not rejoined:\n%s", text)
	}
	if n := h.scalarInt(t, "SELECT COUNT(*) FROM tasks WHERE path = 'todo.md'"); n != 2 {
		t.Errorf("tasks in database = %d, want 2", n)
	}
}

func TestApply_MultiStatementBatch(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	res := h.apply(t, `
		UPDATE tasks SET checked = 1, done_date = '2026-09-01' WHERE path = 'todo.md' AND text = 'Buy milk';
		DELETE FROM tasks WHERE path = 'todo.md' AND text = 'Buy eggs';
	`)

	if len(res.AffectedPaths) != 1 {
		t.Fatalf("AffectedPaths = %v, want one path", res.AffectedPaths)
	}
	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "- [x] Buy milk ✅ 2026-09-01") {
		t.Errorf("update not applied:\n%s", text)
	}
	if strings.Contains(text, "Buy eggs") {
		t.Errorf("delete not applied:\n%s", text)
	}
}

func TestApply_PropertyUpdateEditsFrontmatter(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	h.apply(t, "UPDATE properties SET value = 'published' WHERE path = 'todo.md' AND key = 'status'")

	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "status: published") {
		t.Errorf("frontmatter not updated:\n%s", text)
	}
	if strings.Contains(text, "status: draft") {
		t.Errorf("old value still present:\n%s", text)
	}
	// The body is untouched.
	if !strings.Contains(text, "- [ ] Buy milk") {
		t.Errorf("body disturbed:\n%s", text)
	}
}

func TestApply_TagInsertUpdatesFrontmatterList(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	h.apply(t, "INSERT INTO tags (path, tag) VALUES ('todo.md', 'urgent')")

	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "urgent") {
		t.Errorf("tag missing from frontmatter:\n%s", text)
	}
	if !strings.Contains(text, "planning") {
		t.Errorf("existing tag lost:\n%s", text)
	}
}

func TestApply_LinkInsertAppendsWikiLink(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	h.apply(t, "INSERT INTO links (path, target) VALUES ('todo.md', 'Projects/Roadmap')")

	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "[[Projects/Roadmap]]") {
		t.Errorf("wiki link missing:\n%s", text)
	}
}

func TestApply_NoteInsertCreatesFile(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	res := h.apply(t,
		"INSERT INTO notes (path, title, content) VALUES (?, ?, ?)",
		"inbox.md", "Inbox", "# Inbox\n")

	if len(res.AffectedPaths) != 1 || res.AffectedPaths[0] != "inbox.md" {
		t.Fatalf("AffectedPaths = %v, want [inbox.md]", res.AffectedPaths)
	}
	if got := h.fileText(t, "inbox.md"); !strings.Contains(got, "# Inbox") {
		t.Errorf("created file content = %q", got)
	}
}

func TestApply_NoteDeleteTrashesFile(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote, "old.md": "# Old\n"})

	h.apply(t, "DELETE FROM notes WHERE path = 'old.md'")

	if _, err := h.store.ReadText("old.md"); err == nil {
		t.Error("deleted note still readable")
	}
	if n := h.scalarInt(t, "SELECT COUNT(*) FROM notes WHERE path = 'old.md'"); n != 0 {
		t.Errorf("notes row still present, want cascade-deleted")
	}
}

func TestPlan_DryRunLeavesEverythingUntouched(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	pv, err := h.prev.Preview(context.Background(),
		"UPDATE tasks SET checked = 1 WHERE path = 'todo.md' AND text = 'Buy milk'")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	ep, err := h.syncer.Plan(pv)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(ep.Edits) != 1 {
		t.Fatalf("Edits = %d, want 1", len(ep.Edits))
	}
	if !strings.Contains(ep.Edits[0].Text, "- [x] Buy milk") {
		t.Errorf("planned edit text = %q", ep.Edits[0].Text)
	}

	if text := h.fileText(t, "todo.md"); text != todoNote {
		t.Errorf("dry run modified the document:\n%s", text)
	}
	if n := h.scalarInt(t, "SELECT checked FROM tasks WHERE path = 'todo.md' AND text = 'Buy milk'"); n != 0 {
		t.Errorf("dry run committed: checked = %d, want 0", n)
	}
}

func TestApply_StaleOffsetsStillLocate(t *testing.T) {
	h := newHarness(t, map[string]string{"todo.md": todoNote})

	// Edit the document behind the index's back so every stored offset is
	// stale; the locator has to fall back to anchor-hash or fuzzy matching.
	shifted := "Preamble inserted after indexing.\n\n" + todoNote
	if err := h.store.WriteText("todo.md", shifted); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	h.apply(t,
		"UPDATE tasks SET checked = 1, done_date = '2026-09-01' WHERE path = 'todo.md' AND text = 'Buy milk'")

	text := h.fileText(t, "todo.md")
	if !strings.Contains(text, "- [x] Buy milk ✅ 2026-09-01") {
		t.Errorf("stale-offset update not applied:\n%s", text)
	}
	if !strings.Contains(text, "Preamble inserted after indexing.") {
		t.Errorf("out-of-band edit lost:\n%s", text)
	}
}
