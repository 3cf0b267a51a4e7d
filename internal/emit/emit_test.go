package emit

import (
	"testing"

	"github.com/bobstanton/vaultquery/internal/entity"
)

func TestTask_RenderFields(t *testing.T) {
	tests := []struct {
		name     string
		task     entity.Task
		existing string
		want     string
	}{
		{
			name: "minimal open task",
			task: entity.Task{Text: "Buy milk"},
			want: "- [ ] Buy milk",
		},
		{
			name: "completed with done date and block id",
			task: entity.Task{
				Text:    "Buy milk",
				Status:  "x",
				Checked: true,
				Done:    "2026-09-01",
			},
			existing: "- [ ] Buy milk ^abc123",
			want:     "- [x] Buy milk ✅ 2026-09-01 ^abc123",
		},
		{
			name: "cancelled task keeps cancellation date",
			task: entity.Task{
				Text:      "Old idea",
				Status:    "-",
				Checked:   true,
				Cancelled: "2026-08-30",
			},
			want: "- [-] Old idea ❌ 2026-08-30",
		},
		{
			name: "full metadata in canonical order",
			task: entity.Task{
				Text:         "Ship release",
				Status:       " ",
				Created:      "2026-08-01",
				Scheduled:    "2026-08-10",
				Start:        "2026-08-15",
				Due:          "2026-09-05",
				Recurrence:   "every week",
				OnCompletion: "delete",
				TaskID:       "rel-1",
				DependsOn:    []string{"build-1", "test-2"},
				Priority:     "high",
				Tags:         []string{"work", "release"},
			},
			want: "- [ ] Ship release ➕ 2026-08-01 ⏳ 2026-08-10 🛫 2026-08-15 📅 2026-09-05 🔁 every week 🏁 delete 🆔 rel-1 ⛔ build-1,test-2 ⏫ #work #release",
		},
		{
			name:     "existing line wins indent and marker",
			task:     entity.Task{Text: "Nested", Indent: "", ListMarker: "-"},
			existing: "    * [ ] Nested",
			want:     "    * [ ] Nested",
		},
		{
			name:     "numbered marker preserved",
			task:     entity.Task{Text: "Step two"},
			existing: "2. [ ] Step two",
			want:     "2. [ ] Step two",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Task(tt.task, tt.existing); got != tt.want {
				t.Errorf("Task() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTask_NoOpRoundTrip(t *testing.T) {
	// Re-emitting an unchanged row over its own line must reproduce the
	// line byte for byte.
	line := "  - [x] Buy milk ✅ 2026-09-01 #errand ^abc123"
	task := entity.Task{
		Text:    "Buy milk",
		Status:  "x",
		Checked: true,
		Done:    "2026-09-01",
		Tags:    []string{"errand"},
	}
	if got := Task(task, line); got != line {
		t.Errorf("round trip changed the line:\n got %q\nwant %q", got, line)
	}
}

func TestStripTaskMetadata(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Buy milk", "Buy milk"},
		{"dates and id", "Buy milk ➕ 2026-08-01 📅 2026-09-05 🆔 abc", "Buy milk"},
		{"tags and block id", "Buy milk #errand #home ^xy-1", "Buy milk"},
		{"priority marker", "Buy milk ⏫", "Buy milk"},
		{"recurrence", "Water plants 🔁 every 3 days", "Water plants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTaskMetadata(tt.in); got != tt.want {
				t.Errorf("StripTaskMetadata(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHeading(t *testing.T) {
	tests := []struct {
		name     string
		heading  entity.Heading
		existing string
		want     string
	}{
		{"default level", entity.Heading{Text: "Overview"}, "", "# Overview"},
		{"requested level", entity.Heading{Text: "Details", Level: 3}, "", "### Details"},
		{"existing fence level wins", entity.Heading{Text: "Renamed", Level: 1}, "## Old name", "## Renamed"},
		{"existing anchor preserved", entity.Heading{Text: "Budget", Level: 2}, "## Money ^budget", "## Budget ^budget"},
		{"level clamped", entity.Heading{Text: "Deep", Level: 9}, "", "###### Deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Heading(tt.heading, tt.existing); got != tt.want {
				t.Errorf("Heading() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListItem(t *testing.T) {
	tests := []struct {
		name     string
		item     entity.ListItem
		existing string
		want     string
	}{
		{"default bullet", entity.ListItem{Text: "apples"}, "", "- apples"},
		{"ordered default", entity.ListItem{Text: "first", Ordered: true}, "", "1. first"},
		{"existing style wins", entity.ListItem{Text: "renamed"}, "  * old text", "  * renamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ListItem(tt.item, tt.existing); got != tt.want {
				t.Errorf("ListItem() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTableRoundTrip(t *testing.T) {
	header := []string{"Name", "Qty"}
	rows := [][]string{
		{"milk", "2"},
		{"eggs", "12"},
	}

	rendered := Table(header, rows)
	gotHeader, gotRows, ok := ParseTable(rendered)
	if !ok {
		t.Fatalf("ParseTable failed on rendered table:\n%s", rendered)
	}
	if len(gotHeader) != 2 || gotHeader[0] != "Name" || gotHeader[1] != "Qty" {
		t.Errorf("header = %v", gotHeader)
	}
	if len(gotRows) != 2 || gotRows[1][1] != "12" {
		t.Errorf("rows = %v", gotRows)
	}
}

func TestParseTable_RejectsNonTables(t *testing.T) {
	tests := []struct {
		name  string
		block string
	}{
		{"single line", "| a | b |"},
		{"missing separator", "| a | b |\n| 1 | 2 |"},
		{"plain text", "not a table\nat all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := ParseTable(tt.block); ok {
				t.Errorf("ParseTable(%q) accepted a non-table", tt.block)
			}
		})
	}
}
