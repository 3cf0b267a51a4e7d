package plan

import (
	"strings"
	"testing"

	"github.com/bobstanton/vaultquery/internal/entity"
)

const inventoryDoc = `# Inventory

| Item | Qty | Shelf |
| ---- | --- | ----- |
| milk | 2   | A     |
| eggs | 12  | B     |

Closing notes.
`

func tableCell(text string, table, row int, col, val string) entity.TableCell {
	start := strings.Index(text, "| Item")
	end := strings.Index(text, "\n\nClosing")
	return entity.TableCell{
		Pos: entity.Pos{
			Path:        "inv.md",
			LineNumber:  3,
			StartOffset: start,
			EndOffset:   end,
		},
		TableIndex: table,
		RowIndex:   row,
		Column:     col,
		Value:      val,
	}
}

func TestTables_UpdateCellPreservesOtherColumns(t *testing.T) {
	doc := Doc{Path: "inv.md", Text: inventoryDoc}
	p := newTestPlanner()

	cell := tableCell(inventoryDoc, 0, 0, "Qty", "3")
	list := p.Tables(doc, []entity.TableCell{cell}, nil)
	got := mustApply(t, doc, list)

	if !strings.Contains(got, "| milk | 3") {
		t.Errorf("cell not updated:\n%s", got)
	}
	for _, keep := range []string{"Shelf", "| eggs | 12", "| A", "| B"} {
		if !strings.Contains(got, keep) {
			t.Errorf("lost %q in rewrite:\n%s", keep, got)
		}
	}
	if !strings.Contains(got, "Closing notes.") {
		t.Errorf("text after the table disturbed:\n%s", got)
	}
}

func TestTables_NoOpSuppressed(t *testing.T) {
	doc := Doc{Path: "inv.md", Text: inventoryDoc}
	p := newTestPlanner()

	cell := tableCell(inventoryDoc, 0, 0, "Qty", "2")
	list := p.Tables(doc, []entity.TableCell{cell}, nil)
	if len(list.Edits) != 0 {
		t.Errorf("unchanged cell should plan no edits, got %v", list.Edits)
	}
}

func TestTables_NewColumnAppended(t *testing.T) {
	doc := Doc{Path: "inv.md", Text: inventoryDoc}
	p := newTestPlanner()

	cell := tableCell(inventoryDoc, 0, 1, "Expiry", "2026-09-10")
	list := p.Tables(doc, []entity.TableCell{cell}, nil)
	got := mustApply(t, doc, list)

	if !strings.Contains(got, "Expiry") {
		t.Errorf("new column missing:\n%s", got)
	}
	if !strings.Contains(got, "2026-09-10") {
		t.Errorf("new cell value missing:\n%s", got)
	}
	// Existing column order must be preserved with the new column last.
	header := gotHeaderLine(got)
	if !strings.Contains(header, "Item") || strings.Index(header, "Expiry") < strings.Index(header, "Shelf") {
		t.Errorf("header order wrong: %s", header)
	}
}

func TestTables_DeleteRow(t *testing.T) {
	doc := Doc{Path: "inv.md", Text: inventoryDoc}
	p := newTestPlanner()

	cell := tableCell(inventoryDoc, 0, 0, "Item", "milk")
	list := p.Tables(doc, nil, []entity.TableCell{cell})
	got := mustApply(t, doc, list)

	if strings.Contains(got, "milk") {
		t.Errorf("row not removed:\n%s", got)
	}
	if !strings.Contains(got, "eggs") {
		t.Errorf("other row lost:\n%s", got)
	}
}

func TestTables_BrandNewTableAppended(t *testing.T) {
	doc := Doc{Path: "plain.md", Text: "# Notes\n\nJust text.\n"}
	p := newTestPlanner()

	cells := []entity.TableCell{
		{Pos: entity.NoPos("plain.md"), TableIndex: 0, RowIndex: 0, Column: "Name", Value: "alpha"},
		{Pos: entity.NoPos("plain.md"), TableIndex: 0, RowIndex: 0, Column: "State", Value: "new"},
	}
	list := p.Tables(doc, cells, nil)
	got := mustApply(t, doc, list)

	if !strings.Contains(got, "| Name") || !strings.Contains(got, "| alpha") {
		t.Errorf("table not synthesized:\n%s", got)
	}
	if !strings.HasPrefix(got, "# Notes\n\nJust text.\n") {
		t.Errorf("existing text disturbed:\n%s", got)
	}
}

func TestTables_DeleteFromMissingTableWarns(t *testing.T) {
	doc := Doc{Path: "plain.md", Text: "no tables here\n"}
	p := newTestPlanner()

	cell := entity.TableCell{
		Pos:        entity.Pos{Path: "plain.md", LineNumber: 1, StartOffset: -1, EndOffset: -1},
		TableIndex: 0, RowIndex: 0, Column: "X", Value: "y",
	}
	list := p.Tables(doc, nil, []entity.TableCell{cell})
	if len(list.Edits) != 0 {
		t.Errorf("edits = %v, want none", list.Edits)
	}
	if len(list.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", list.Warnings)
	}
}

func gotHeaderLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			return line
		}
	}
	return ""
}
