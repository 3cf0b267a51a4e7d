package plan

import (
	"fmt"
	"sort"

	"github.com/bobstanton/vaultquery/internal/emit"
	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/locate"
)

// Tables plans edits for table cell upserts and deletes. Cells are grouped
// by table index; each touched table is either synthesized from scratch or
// parsed, merged and rewritten in place as one block. Existing header column
// order is preserved; columns not yet present are appended.
func (p *Planner) Tables(doc Doc, upserts, deletes []entity.TableCell) EditList {
	var out EditList

	groups := make(map[int][]entity.TableCell)
	var order []int
	add := func(c entity.TableCell) {
		if _, ok := groups[c.TableIndex]; !ok {
			order = append(order, c.TableIndex)
		}
		groups[c.TableIndex] = append(groups[c.TableIndex], c)
	}
	for _, c := range upserts {
		add(c)
	}
	deleted := make(map[int][]entity.TableCell)
	for _, c := range deletes {
		if _, ok := groups[c.TableIndex]; !ok {
			order = append(order, c.TableIndex)
		}
		deleted[c.TableIndex] = append(deleted[c.TableIndex], c)
	}
	sort.Ints(order)

	for _, idx := range order {
		cells := groups[idx]
		removed := deleted[idx]

		r, found := p.findTable(doc, idx, append(cells, removed...))
		if !found {
			if len(cells) == 0 {
				out.warnf("cannot delete rows from table %d in %s: table not found", idx, doc.Path)
				continue
			}
			header, rows := tableFromCells(cells)
			out.Edits = append(out.Edits, insertLinesEdit(doc, len(doc.Text), []string{emit.Table(header, rows)}, fmt.Sprintf("insert table %d", idx)))
			continue
		}

		block := doc.Text[r.Start:r.End]
		header, rows, ok := emit.ParseTable(block)
		if !ok {
			out.warnf("table %d in %s no longer parses as a table; skipping", idx, doc.Path)
			continue
		}

		header, rows = mergeTable(header, rows, cells)
		rows = dropRows(rows, removed)

		rendered := emit.Table(header, rows)
		if rendered == block {
			continue
		}
		out.Edits = append(out.Edits, Edit{
			Kind:   ReplaceRange,
			Path:   doc.Path,
			Range:  r,
			Text:   rendered,
			Reason: fmt.Sprintf("rewrite table %d", idx),
		})
	}

	return out
}

// findTable locates the table block using the positional hints of any of the
// touched cells; the first cell that locates wins.
func (p *Planner) findTable(doc Doc, idx int, cells []entity.TableCell) (locate.Range, bool) {
	for _, c := range cells {
		r, err := p.loc.Locate(doc.Text, c)
		if err == nil {
			return r, true
		}
	}
	return locate.Range{}, false
}

// tableFromCells synthesizes a brand-new table: header columns in first-seen
// order, data rows dense by row index.
func tableFromCells(cells []entity.TableCell) (header []string, rows [][]string) {
	colIndex := make(map[string]int)
	maxRow := -1
	for _, c := range cells {
		if _, ok := colIndex[c.Column]; !ok {
			colIndex[c.Column] = len(header)
			header = append(header, c.Column)
		}
		if c.RowIndex > maxRow {
			maxRow = c.RowIndex
		}
	}
	rows = make([][]string, maxRow+1)
	for i := range rows {
		rows[i] = make([]string, len(header))
	}
	for _, c := range cells {
		if c.RowIndex >= 0 {
			rows[c.RowIndex][colIndex[c.Column]] = c.Value
		}
	}
	return header, rows
}

// mergeTable applies cell upserts onto an existing header and row set.
func mergeTable(header []string, rows [][]string, cells []entity.TableCell) ([]string, [][]string) {
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[h] = i
	}

	for _, c := range cells {
		col, ok := colIndex[c.Column]
		if !ok {
			col = len(header)
			colIndex[c.Column] = col
			header = append(header, c.Column)
			for i := range rows {
				rows[i] = append(rows[i], "")
			}
		}
		for c.RowIndex >= len(rows) {
			rows = append(rows, make([]string, len(header)))
		}
		if c.RowIndex < 0 {
			continue
		}
		for len(rows[c.RowIndex]) < len(header) {
			rows[c.RowIndex] = append(rows[c.RowIndex], "")
		}
		rows[c.RowIndex][col] = c.Value
	}
	return header, rows
}

// dropRows removes whole data rows named by deleted cells, highest index
// first so earlier indexes stay valid.
func dropRows(rows [][]string, removed []entity.TableCell) [][]string {
	if len(removed) == 0 {
		return rows
	}
	seen := make(map[int]bool)
	var idxs []int
	for _, c := range removed {
		if c.RowIndex >= 0 && c.RowIndex < len(rows) && !seen[c.RowIndex] {
			seen[c.RowIndex] = true
			idxs = append(idxs, c.RowIndex)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(idxs)))
	for _, i := range idxs {
		rows = append(rows[:i], rows[i+1:]...)
	}
	return rows
}
