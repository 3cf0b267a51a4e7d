package handler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/preview"
)

// RowMap accessors. Captured values arrive as driver scalars (string, int64,
// float64, nil); these helpers normalize without panicking on surprises.

func getString(m preview.RowMap, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		return ""
	}
}

func getInt(m preview.RowMap, key string) (int, bool) {
	switch v := m[key].(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func getBool(m preview.RowMap, key string) bool {
	n, ok := getInt(m, key)
	return ok && n != 0
}

func rowPos(m preview.RowMap) entity.Pos {
	pos := entity.Pos{
		Path:        getString(m, "path"),
		LineNumber:  entity.NewEntityLine,
		BlockID:     getString(m, "block_id"),
		StartOffset: -1,
		EndOffset:   -1,
		AnchorHash:  getString(m, "anchor_hash"),
	}
	if n, ok := getInt(m, "line_number"); ok {
		pos.LineNumber = n
	}
	if n, ok := getInt(m, "start_offset"); ok {
		pos.StartOffset = n
	}
	if n, ok := getInt(m, "end_offset"); ok {
		pos.EndOffset = n
	}
	return pos
}

func rowToTask(m preview.RowMap) entity.Task {
	t := entity.Task{
		Pos:          rowPos(m),
		Text:         getString(m, "text"),
		Status:       getString(m, "status"),
		Checked:      getBool(m, "checked"),
		Created:      getString(m, "created_date"),
		Scheduled:    getString(m, "scheduled_date"),
		Start:        getString(m, "start_date"),
		Due:          getString(m, "due_date"),
		Done:         getString(m, "done_date"),
		Cancelled:    getString(m, "cancelled_date"),
		Recurrence:   getString(m, "recurrence"),
		OnCompletion: getString(m, "on_completion"),
		TaskID:       getString(m, "task_id"),
		Priority:     getString(m, "priority"),
		Indent:       getString(m, "indent"),
		ListMarker:   getString(m, "list_marker"),
	}
	if deps := getString(m, "depends_on"); deps != "" {
		t.DependsOn = strings.Split(deps, ",")
	}
	if raw := getString(m, "tags"); raw != "" && raw != "[]" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			t.Tags = tags
		}
	}
	// Checked status and the checkbox character must agree whichever one
	// the statement actually set.
	if t.Checked && (t.Status == "" || t.Status == " ") {
		t.Status = "x"
	}
	if !t.Checked && t.Status == "x" {
		t.Checked = true
	}
	// Completing a task stamps the completion date unless the statement
	// set one itself.
	if t.Checked && t.Done == "" {
		t.Done = time.Now().Format("2006-01-02")
	}
	return t
}

func rowToHeading(m preview.RowMap) entity.Heading {
	h := entity.Heading{
		Pos:  rowPos(m),
		Text: getString(m, "text"),
	}
	if lvl, ok := getInt(m, "level"); ok {
		h.Level = lvl
	} else {
		h.Level = 1
	}
	return h
}

func rowToListItem(m preview.RowMap) entity.ListItem {
	return entity.ListItem{
		Pos:     rowPos(m),
		Text:    getString(m, "text"),
		Indent:  getString(m, "indent"),
		Marker:  getString(m, "marker"),
		Ordered: getBool(m, "ordered"),
	}
}

func rowToCell(m preview.RowMap) entity.TableCell {
	c := entity.TableCell{
		Pos:    rowPos(m),
		Column: getString(m, "column_name"),
		Value:  getString(m, "value"),
	}
	c.TableIndex, _ = getInt(m, "table_index")
	c.RowIndex, _ = getInt(m, "row_index")
	return c
}

// convertProperties maps property rows to frontmatter key/value mutations:
// the "edit" here is not a structured row edit but a direct key-value
// mutation applied by the orchestrator.
func convertProperties(p *preview.Preview, batch *Batch) {
	switch p.Op {
	case preview.OpInsert, preview.OpUpdate:
		for _, row := range p.After {
			batch.PropertySets = append(batch.PropertySets, entity.Property{
				Path:  getString(row, "path"),
				Key:   getString(row, "key"),
				Value: row["value"],
			})
		}
	case preview.OpDelete:
		for _, row := range p.Before {
			batch.PropertyDeletes = append(batch.PropertyDeletes, entity.Property{
				Path: getString(row, "path"),
				Key:  getString(row, "key"),
			})
		}
	}
}

// convertContent covers the note-content/tags/links handler group. Note
// rows become whole-file mutations; tag rows become frontmatter tag-list
// changes; link rows become direct content changes.
func convertContent(p *preview.Preview, batch *Batch) {
	switch strings.ToLower(p.Table) {
	case "notes":
		switch p.Op {
		case preview.OpInsert:
			for _, row := range p.After {
				batch.ContentCreates = append(batch.ContentCreates, entity.Content{
					Path:  getString(row, "path"),
					Title: getString(row, "title"),
					Text:  getString(row, "content"),
				})
			}
		case preview.OpUpdate:
			for i, row := range p.After {
				content := entity.Content{
					Path:  getString(row, "path"),
					Title: getString(row, "title"),
					Text:  getString(row, "content"),
				}
				// A rename is out of scope for content sync; keep writing
				// to the original document.
				if i < len(p.Before) && p.Before[i] != nil {
					if prior := getString(p.Before[i], "path"); prior != "" {
						content.Path = prior
					}
				}
				batch.ContentSets = append(batch.ContentSets, content)
			}
		case preview.OpDelete:
			for _, row := range p.Before {
				batch.ContentDeletes = append(batch.ContentDeletes, getString(row, "path"))
			}
		}
	case "tags":
		switch p.Op {
		case preview.OpInsert:
			for _, row := range p.After {
				batch.TagAdds = append(batch.TagAdds, TagChange{
					Path: getString(row, "path"),
					Tag:  getString(row, "tag"),
				})
			}
		case preview.OpDelete:
			for _, row := range p.Before {
				batch.TagRemoves = append(batch.TagRemoves, TagChange{
					Path: getString(row, "path"),
					Tag:  getString(row, "tag"),
				})
			}
		case preview.OpUpdate:
			for i, row := range p.After {
				if i < len(p.Before) && p.Before[i] != nil {
					batch.TagRemoves = append(batch.TagRemoves, TagChange{
						Path: getString(p.Before[i], "path"),
						Tag:  getString(p.Before[i], "tag"),
					})
				}
				batch.TagAdds = append(batch.TagAdds, TagChange{
					Path: getString(row, "path"),
					Tag:  getString(row, "tag"),
				})
			}
		}
	case "links":
		switch p.Op {
		case preview.OpInsert:
			for _, row := range p.After {
				batch.LinkAdds = append(batch.LinkAdds, LinkChange{
					Path:   getString(row, "path"),
					Target: getString(row, "target"),
				})
			}
		case preview.OpDelete:
			for _, row := range p.Before {
				batch.LinkRemoves = append(batch.LinkRemoves, LinkChange{
					Path:   getString(row, "path"),
					Target: getString(row, "target"),
				})
			}
		case preview.OpUpdate:
			for i, row := range p.After {
				if i < len(p.Before) && p.Before[i] != nil {
					batch.LinkRemoves = append(batch.LinkRemoves, LinkChange{
						Path:   getString(p.Before[i], "path"),
						Target: getString(p.Before[i], "target"),
					})
				}
				batch.LinkAdds = append(batch.LinkAdds, LinkChange{
					Path:   getString(row, "path"),
					Target: getString(row, "target"),
				})
			}
		}
	}
}
