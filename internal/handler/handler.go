// Package handler translates a Preview's generic before/after rows into the
// entity-specific row types consumed by the edit planners.
//
// Entity kinds form a closed tagged variant (see entity.Kind); the only
// name-based dispatch lives in the Registry, at the orchestration boundary
// where a relational table or view name must map to a kind. Per-kind
// conversion applies insert defaults ("unset line number means append") and
// update merge rules (positional fields carried over from the before row so
// the locator still works after an update).
package handler

import (
	"fmt"
	"strings"

	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/preview"
)

// Registry maps relational table and view names to entity kinds. View
// aliases of the same underlying table map to that table's kind.
type Registry struct {
	kinds map[string]entity.Kind
}

// NewRegistry returns the default registry covering the built-in schema.
func NewRegistry() *Registry {
	return &Registry{kinds: map[string]entity.Kind{
		"tasks":       entity.KindTask,
		"open_tasks":  entity.KindTask,
		"due_tasks":   entity.KindTask,
		"headings":    entity.KindHeading,
		"list_items":  entity.KindListItem,
		"table_cells": entity.KindTableCell,
		"properties":  entity.KindProperty,
		"notes":       entity.KindContent,
		"tags":        entity.KindContent,
		"links":       entity.KindContent,
	}}
}

// Register adds or overrides a table-to-kind mapping.
func (r *Registry) Register(table string, kind entity.Kind) {
	r.kinds[strings.ToLower(table)] = kind
}

// KindFor resolves a table or view name to its entity kind.
func (r *Registry) KindFor(table string) (entity.Kind, bool) {
	k, ok := r.kinds[strings.ToLower(table)]
	return k, ok
}

// TagChange is a derived-relation mutation on a note's tag set, applied as
// a frontmatter tags-list change by the orchestrator.
type TagChange struct {
	Path string
	Tag  string
}

// LinkChange is a mutation on a note's outgoing links, applied as a direct
// content change by the orchestrator.
type LinkChange struct {
	Path   string
	Target string
}

// Batch is the entity-typed plan fragment produced from one preview: row
// batches per kind, plus the structured (non-range) mutations.
type Batch struct {
	TaskUpserts []entity.Task
	TaskDeletes []entity.Task

	HeadingUpserts []entity.Heading
	HeadingDeletes []entity.Heading

	ListItemUpserts []entity.ListItem
	ListItemDeletes []entity.ListItem

	CellUpserts []entity.TableCell
	CellDeletes []entity.TableCell

	PropertySets    []entity.Property
	PropertyDeletes []entity.Property

	ContentCreates []entity.Content
	ContentSets    []entity.Content
	ContentDeletes []string

	TagAdds    []TagChange
	TagRemoves []TagChange

	LinkAdds    []LinkChange
	LinkRemoves []LinkChange

	Warnings []string
}

// Paths returns every document path the batch touches, deduplicated, in
// first-seen order.
func (b *Batch) Paths() []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, t := range b.TaskUpserts {
		add(t.Path)
	}
	for _, t := range b.TaskDeletes {
		add(t.Path)
	}
	for _, h := range b.HeadingUpserts {
		add(h.Path)
	}
	for _, h := range b.HeadingDeletes {
		add(h.Path)
	}
	for _, l := range b.ListItemUpserts {
		add(l.Path)
	}
	for _, l := range b.ListItemDeletes {
		add(l.Path)
	}
	for _, c := range b.CellUpserts {
		add(c.Path)
	}
	for _, c := range b.CellDeletes {
		add(c.Path)
	}
	for _, p := range b.PropertySets {
		add(p.Path)
	}
	for _, p := range b.PropertyDeletes {
		add(p.Path)
	}
	for _, c := range b.ContentCreates {
		add(c.Path)
	}
	for _, c := range b.ContentSets {
		add(c.Path)
	}
	for _, p := range b.ContentDeletes {
		add(p)
	}
	for _, t := range b.TagAdds {
		add(t.Path)
	}
	for _, t := range b.TagRemoves {
		add(t.Path)
	}
	for _, l := range b.LinkAdds {
		add(l.Path)
	}
	for _, l := range b.LinkRemoves {
		add(l.Path)
	}
	return paths
}

// Convert translates a preview (recursing into a batch's sub-previews) into
// one combined entity batch.
func Convert(p *preview.Preview, reg *Registry) (*Batch, error) {
	batch := &Batch{}
	for _, leaf := range p.Flatten() {
		if err := convertLeaf(leaf, reg, batch); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func convertLeaf(p *preview.Preview, reg *Registry, batch *Batch) error {
	kind, ok := reg.KindFor(p.Table)
	if !ok {
		return fmt.Errorf("no entity handler for table %q", p.Table)
	}

	switch kind {
	case entity.KindTask:
		convertRows(p, batch, rowToTask,
			func(t entity.Task) { batch.TaskUpserts = append(batch.TaskUpserts, t) },
			func(t entity.Task) { batch.TaskDeletes = append(batch.TaskDeletes, t) })
	case entity.KindHeading:
		convertRows(p, batch, rowToHeading,
			func(h entity.Heading) { batch.HeadingUpserts = append(batch.HeadingUpserts, h) },
			func(h entity.Heading) { batch.HeadingDeletes = append(batch.HeadingDeletes, h) })
	case entity.KindListItem:
		convertRows(p, batch, rowToListItem,
			func(l entity.ListItem) { batch.ListItemUpserts = append(batch.ListItemUpserts, l) },
			func(l entity.ListItem) { batch.ListItemDeletes = append(batch.ListItemDeletes, l) })
	case entity.KindTableCell:
		convertRows(p, batch, rowToCell,
			func(c entity.TableCell) { batch.CellUpserts = append(batch.CellUpserts, c) },
			func(c entity.TableCell) { batch.CellDeletes = append(batch.CellDeletes, c) })
	case entity.KindProperty:
		convertProperties(p, batch)
	case entity.KindContent:
		convertContent(p, batch)
	}
	return nil
}

// convertRows applies the shared conversion shape for positional row kinds.
// Before and after rows of an update are paired by position; positional
// fields absent from the after row are preserved from the before row so the
// locator can still find the old text.
func convertRows[T entity.Row](p *preview.Preview, batch *Batch, toRow func(preview.RowMap) T, upsert func(T), del func(T)) {
	switch p.Op {
	case preview.OpInsert:
		for _, after := range p.After {
			upsert(toRow(withInsertDefaults(after)))
		}
	case preview.OpDelete:
		for _, before := range p.Before {
			del(toRow(before))
		}
	case preview.OpUpdate:
		for i, after := range p.After {
			merged := after
			if i < len(p.Before) && p.Before[i] != nil {
				merged = mergePositional(p.Before[i], after)
			}
			upsert(toRow(merged))
		}
	}
}

// positionalColumns are preserved from before rows across updates.
var positionalColumns = []string{"line_number", "block_id", "start_offset", "end_offset", "anchor_hash"}

// mergePositional returns a copy of after whose unset positional columns are
// filled from before. The before row describes where the entity currently
// lives in text; a positional value the statement deliberately set wins over
// it.
func mergePositional(before, after preview.RowMap) preview.RowMap {
	merged := make(preview.RowMap, len(after))
	for k, v := range after {
		merged[k] = v
	}
	for _, col := range positionalColumns {
		if v, ok := merged[col]; ok && !isUnset(v) {
			continue
		}
		if v, ok := before[col]; ok && !isUnset(v) {
			merged[col] = v
		}
	}
	return merged
}

// withInsertDefaults applies kind-independent insert defaulting: an unset or
// zero line number becomes the append position (-1).
func withInsertDefaults(row preview.RowMap) preview.RowMap {
	out := make(preview.RowMap, len(row))
	for k, v := range row {
		out[k] = v
	}
	if n, ok := getInt(out, "line_number"); !ok || n == 0 {
		out["line_number"] = int64(entity.NewEntityLine)
	}
	if _, ok := getInt(out, "start_offset"); !ok {
		out["start_offset"] = int64(-1)
	}
	if _, ok := getInt(out, "end_offset"); !ok {
		out["end_offset"] = int64(-1)
	}
	return out
}

func isUnset(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case string:
		return n == ""
	case int64:
		return n < 0
	default:
		return false
	}
}
