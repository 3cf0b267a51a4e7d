package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobstanton/vaultquery/internal/emit"
	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/locate"
)

// Doc is the planning context for one document: its path and freshest text.
type Doc struct {
	Path string
	Text string
}

// Planner produces edit lists for one document, one entity kind at a time.
type Planner struct {
	loc *locate.Locator
}

// NewPlanner returns a planner locating rows through loc.
func NewPlanner(loc *locate.Locator) *Planner {
	return &Planner{loc: loc}
}

// rowOps parameterizes the shared planning algorithm per entity kind.
type rowOps[T entity.Row] struct {
	// emit renders the row, preserving style from existing when non-empty.
	emit func(row T, existing string) string
	// describe names the row in warnings.
	describe func(row T) string
	// defaultInsertAt picks the byte offset for brand-new rows.
	defaultInsertAt func(text string) int
}

// Tasks plans edits for a batch of task upserts and deletes.
func (p *Planner) Tasks(doc Doc, upserts, deletes []entity.Task) EditList {
	return planRows(p.loc, doc, upserts, deletes, rowOps[entity.Task]{
		emit:     emit.Task,
		describe: func(t entity.Task) string { return fmt.Sprintf("task %q", t.Text) },
		defaultInsertAt: func(text string) int {
			return afterLastOfKind(text, entity.KindTask)
		},
	})
}

// Headings plans edits for a batch of heading upserts and deletes.
func (p *Planner) Headings(doc Doc, upserts, deletes []entity.Heading) EditList {
	return planRows(p.loc, doc, upserts, deletes, rowOps[entity.Heading]{
		emit:     emit.Heading,
		describe: func(h entity.Heading) string { return fmt.Sprintf("heading %q", h.Text) },
		defaultInsertAt: func(text string) int {
			return len(text)
		},
	})
}

// ListItems plans edits for a batch of list item upserts and deletes.
func (p *Planner) ListItems(doc Doc, upserts, deletes []entity.ListItem) EditList {
	return planRows(p.loc, doc, upserts, deletes, rowOps[entity.ListItem]{
		emit:     emit.ListItem,
		describe: func(l entity.ListItem) string { return fmt.Sprintf("list item %q", l.Text) },
		defaultInsertAt: func(text string) int {
			return afterLastOfKind(text, entity.KindListItem)
		},
	})
}

// planRows is the algorithm shared by the task, heading and list item
// planners. Upserts are partitioned into brand-new rows, line-targeted rows
// and rows with enough information to attempt location; deletions are
// located individually and expanded to swallow an adjacent newline.
func planRows[T entity.Row](loc *locate.Locator, doc Doc, upserts, deletes []T, ops rowOps[T]) EditList {
	var out EditList

	var brandNew, lineTargeted, locatable []T
	for _, row := range upserts {
		pos := row.Position()
		switch {
		case pos.LineNumber == entity.NewEntityLine:
			// A new entity is inserted, never located, whatever else it carries.
			brandNew = append(brandNew, row)
		case locatableRow(pos) || isTaskRow(row):
			locatable = append(locatable, row)
		case pos.LineNumber > 0:
			lineTargeted = append(lineTargeted, row)
		default:
			brandNew = append(brandNew, row)
		}
	}

	// Rows with positional hints: locate, re-emit, and only edit when the
	// emitted line actually differs from the text in place.
	for _, row := range locatable {
		r, err := loc.Locate(doc.Text, row)
		if err != nil {
			out.warnf("skipping %s in %s: %v", ops.describe(row), doc.Path, err)
			continue
		}
		existing := doc.Text[r.Start:r.End]
		line := ops.emit(row, existing)
		if line == existing {
			continue
		}
		out.Edits = append(out.Edits, Edit{
			Kind:   ReplaceRange,
			Path:   doc.Path,
			Range:  r,
			Text:   line,
			Reason: "update " + ops.describe(row),
		})
	}

	// Line-targeted rows: one combined insert at the minimum target line.
	if len(lineTargeted) > 0 {
		sort.SliceStable(lineTargeted, func(i, j int) bool {
			return lineTargeted[i].Position().LineNumber < lineTargeted[j].Position().LineNumber
		})
		for i := 1; i < len(lineTargeted); i++ {
			prev, cur := lineTargeted[i-1].Position().LineNumber, lineTargeted[i].Position().LineNumber
			if cur != prev && cur != prev+1 {
				out.warnf("non-consecutive target lines %d and %d in %s; inserting as one block", prev, cur, doc.Path)
			}
		}
		at := locate.LineStart(doc.Text, lineTargeted[0].Position().LineNumber)
		out.Edits = append(out.Edits, insertLinesEdit(doc, at, emitAll(lineTargeted, ops), "insert at requested line"))
	}

	// Brand-new rows: one combined insert at the kind's default position.
	if len(brandNew) > 0 {
		at := ops.defaultInsertAt(doc.Text)
		out.Edits = append(out.Edits, insertLinesEdit(doc, at, emitAll(brandNew, ops), "insert new entries"))
	}

	// Deletions: locate each row, widen the range over a bounding newline so
	// no blank line is left behind, and replace with nothing.
	for _, row := range deletes {
		r, err := loc.Locate(doc.Text, row)
		if err != nil {
			out.warnf("cannot delete %s in %s: %v", ops.describe(row), doc.Path, err)
			continue
		}
		r = widenForDeletion(doc.Text, r)
		out.Edits = append(out.Edits, Edit{
			Kind:   ReplaceRange,
			Path:   doc.Path,
			Range:  r,
			Reason: "delete " + ops.describe(row),
		})
	}

	return out
}

func locatableRow(pos entity.Pos) bool {
	return pos.BlockID != "" || pos.HasOffsets() || pos.AnchorHash != ""
}

// isTaskRow reports whether the row can fall back to fuzzy matching, which
// makes bare task text "enough information to attempt location".
func isTaskRow[T entity.Row](row T) bool {
	t, ok := any(row).(entity.Task)
	return ok && t.Text != "" && t.Position().LineNumber != entity.NewEntityLine
}

func emitAll[T entity.Row](rows []T, ops rowOps[T]) []string {
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = ops.emit(row, "")
	}
	return lines
}

// insertLinesEdit builds one multi-line insert at byte offset at, gluing
// newlines so the surrounding lines stay intact.
func insertLinesEdit(doc Doc, at int, lines []string, reason string) Edit {
	payload := strings.Join(lines, "\n")
	if at > len(doc.Text) {
		at = len(doc.Text)
	}

	text := payload + "\n"
	if at == len(doc.Text) && len(doc.Text) > 0 && !strings.HasSuffix(doc.Text, "\n") {
		// Appending to an unterminated final line.
		text = "\n" + payload
	}

	return Edit{
		Kind:   ReplaceRange,
		Path:   doc.Path,
		Range:  locate.Range{Start: at, End: at},
		Text:   text,
		Reason: reason,
	}
}

// widenForDeletion expands r to swallow the trailing line break, or the
// leading one when the range ends the document. Located ranges exclude the
// carriage return of CRLF endings, so the pair is swallowed together.
func widenForDeletion(text string, r locate.Range) locate.Range {
	switch {
	case r.End+1 < len(text) && text[r.End] == '\r' && text[r.End+1] == '\n':
		r.End += 2
	case r.End < len(text) && text[r.End] == '\n':
		r.End++
	case r.End == len(text) && r.Start > 0 && text[r.Start-1] == '\n':
		r.Start--
		if r.Start > 0 && text[r.Start-1] == '\r' {
			r.Start--
		}
	}
	return r
}

// afterLastOfKind returns the byte offset immediately after the last line
// matching the kind's shape, or the end of the document when no line does.
func afterLastOfKind(text string, kind entity.Kind) int {
	if text == "" {
		return 0
	}
	lines := strings.Split(text, "\n")
	offset := 0
	insertAt := -1
	for _, line := range lines {
		end := offset + len(line)
		if locate.MatchesShape(kind, line) {
			if end < len(text) {
				insertAt = end + 1 // past the newline
			} else {
				insertAt = end
			}
		}
		offset = end + 1
	}
	if insertAt < 0 {
		return len(text)
	}
	return insertAt
}
