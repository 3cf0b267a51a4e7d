package plan

import (
	"sort"
)

// Merge combines per-kind edit lists for one document into a single ordered
// list safe to apply in one pass.
//
// Lists must be passed highest priority first; the fixed order used by the
// orchestrator is table, heading, task, list item. When two range edits
// overlap, the lower-priority one is dropped with a warning, so a task edit
// landing inside a whole-table rewrite gives way to the rewrite. This
// priority order is a policy choice, not a provable invariant.
//
// Surviving range edits are sorted descending by range start, so applying
// them from the tail of the document never invalidates an earlier edit's
// offsets. Non-range edits (file and frontmatter mutations) pass through
// untouched, after the range edits.
func Merge(lists ...EditList) EditList {
	var out EditList
	var kept []Edit
	var structural []Edit

	for _, list := range lists {
		out.Warnings = append(out.Warnings, list.Warnings...)
		for _, e := range list.Edits {
			if !e.IsRange() {
				structural = append(structural, e)
				continue
			}
			if conflict := overlapsAny(kept, e); conflict != nil {
				out.Warnings = append(out.Warnings,
					"dropped overlapping edit ("+e.Reason+") at "+e.Path+": covered by a higher-priority edit ("+conflict.Reason+")")
				continue
			}
			kept = append(kept, e)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Range.Start > kept[j].Range.Start
	})

	out.Edits = append(kept, structural...)
	return out
}

// overlapsAny returns the first kept edit whose range intersects e's, or nil.
// Pure insertions (empty ranges) conflict only when they land strictly inside
// another edit's range; two insertions at the same offset coexist.
func overlapsAny(kept []Edit, e Edit) *Edit {
	for i := range kept {
		k := kept[i]
		if e.Range.Start < k.Range.End && k.Range.Start < e.Range.End {
			return &kept[i]
		}
		// An insertion point strictly inside a replaced range would be lost
		// by the replacement, so it conflicts too.
		if e.Range.Len() == 0 && e.Range.Start > k.Range.Start && e.Range.Start < k.Range.End {
			return &kept[i]
		}
	}
	return nil
}
