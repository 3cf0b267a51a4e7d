// Package plan turns batches of entity rows into precise, non-overlapping
// byte-range edits against the original documents.
//
// Each entity kind has a planner sharing one algorithm shape: partition
// upserts into brand-new rows, line-targeted rows and locatable rows; locate
// what can be located; insert what cannot; and never fabricate a location.
// Unresolvable rows become warnings, not edits. A merger then combines the
// per-kind edit lists for one document, resolving overlaps by priority.
package plan

import (
	"fmt"

	"github.com/bobstanton/vaultquery/internal/locate"
)

// EditKind discriminates the edit variants an orchestrator can apply.
type EditKind int

const (
	// ReplaceRange replaces Range with Text (Text may be empty: deletion).
	ReplaceRange EditKind = iota
	// CreateFile creates Path with Text as initial content.
	CreateFile
	// DeleteFile trashes or deletes Path.
	DeleteFile
	// SetContent rewrites the whole body of Path with Text.
	SetContent
	// SetProperty sets frontmatter Key to Value in Path.
	SetProperty
	// DeleteProperty removes frontmatter Key from Path.
	DeleteProperty
)

// Edit is one planned mutation. Produced by a planner, consumed exactly once
// by the orchestrator; a retry re-plans from fresh text rather than reusing
// the edit.
type Edit struct {
	Kind   EditKind
	Path   string
	Range  locate.Range
	Text   string
	Key    string
	Value  any
	Reason string
}

// IsRange reports whether the edit is positional (participates in overlap
// resolution) as opposed to a structured file or frontmatter mutation.
func (e Edit) IsRange() bool { return e.Kind == ReplaceRange }

// EditList is the output of one planner for one document.
type EditList struct {
	Edits    []Edit
	Warnings []string
}

func (l *EditList) warnf(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}

// Stats summarizes one synchronization pass.
type Stats struct {
	Replacements int
	Inserts      int
	Deletes      int
	Skipped      int
}

// EditPlan is the final, conflict-resolved set of edits for one pass across
// possibly many documents, plus the non-fatal warnings gathered on the way.
type EditPlan struct {
	Edits    []Edit
	Warnings []string
	Stats    Stats
}

// ApplyRangeEdits applies range edits to text in a single pass. Edits must
// already be sorted descending by range start with disjoint ranges, which is
// exactly what Merge produces; applying from the tail of the document means
// no edit invalidates an earlier (lower-offset) edit's range.
func ApplyRangeEdits(text string, edits []Edit) string {
	for _, e := range edits {
		if !e.IsRange() {
			continue
		}
		if e.Range.Start < 0 || e.Range.End > len(text) || e.Range.Start > e.Range.End {
			continue
		}
		text = text[:e.Range.Start] + e.Text + text[e.Range.End:]
	}
	return text
}
