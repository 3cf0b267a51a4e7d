// Package emit renders entity rows back into their exact textual line form.
//
// When an existing line is supplied, its surface style (bullet character,
// indentation, heading fence level, trailing block-id suffix) is parsed and
// preserved so that a no-op edit reproduces the original line byte for byte.
// Without an existing line, sensible defaults apply: "-" bullets, the row's
// requested heading level, no block suffix.
package emit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobstanton/vaultquery/internal/entity"
)

// Task metadata markers, appended in canonical order after the task text.
const (
	MarkerCreated      = "➕"
	MarkerScheduled    = "⏳"
	MarkerStart        = "🛫"
	MarkerDue          = "📅"
	MarkerDone         = "✅"
	MarkerCancelled    = "❌"
	MarkerRecurrence   = "🔁"
	MarkerOnCompletion = "🏁"
	MarkerID           = "🆔"
	MarkerDependsOn    = "⛔"
)

// Priority markers, one per named priority level. "normal" has no marker.
var priorityMarkers = map[string]string{
	"highest": "🔺",
	"high":    "⏫",
	"medium":  "🔼",
	"low":     "🔽",
	"lowest":  "⏬",
}

var (
	taskLine    = regexp.MustCompile(`^(\s*)([-*+]|\d+[.)])\s+\[(.)\]\s+(.*)$`)
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)
	listLine    = regexp.MustCompile(`^(\s*)([-*+]|\d+[.)])\s+(.*)$`)
	blockSuffix = regexp.MustCompile(`\s+\^([A-Za-z0-9-]+)\s*$`)

	// Inline metadata stripped from free text before re-appending fields.
	inlineMeta = regexp.MustCompile(`\s*(?:[➕⏳🛫📅✅❌]\s*\d{4}-\d{2}-\d{2}|🔁\s*[^🏁🆔⛔🔺⏫🔼🔽⏬#^]*|🏁\s*\S+|🆔\s*\S+|⛔\s*\S+|[🔺⏫🔼🔽⏬])`)
	inlineTag  = regexp.MustCompile(`\s*#[\p{L}\p{N}/_-]+`)
)

// Task renders a task row as a full source line. existing, when non-empty,
// is the line currently in the document; its indent, list marker and block-id
// suffix win over the row's own fields.
func Task(t entity.Task, existing string) string {
	indent := t.Indent
	marker := t.ListMarker
	blockID := t.BlockID

	if existing != "" {
		if m := taskLine.FindStringSubmatch(existing); m != nil {
			indent, marker = m[1], m[2]
		}
		if m := blockSuffix.FindStringSubmatch(existing); m != nil {
			blockID = m[1]
		}
	}
	if marker == "" {
		marker = "-"
	}

	status := t.Status
	if status == "" {
		if t.Checked {
			status = "x"
		} else {
			status = " "
		}
	}

	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(marker)
	b.WriteString(" [")
	b.WriteString(status)
	b.WriteString("] ")
	b.WriteString(StripTaskMetadata(t.Text))

	appendField := func(marker, value string) {
		if value != "" {
			b.WriteString(" ")
			b.WriteString(marker)
			b.WriteString(" ")
			b.WriteString(value)
		}
	}

	appendField(MarkerCreated, t.Created)
	appendField(MarkerScheduled, t.Scheduled)
	appendField(MarkerStart, t.Start)
	appendField(MarkerDue, t.Due)
	if t.Checked {
		appendField(MarkerDone, t.Done)
	}
	if t.Status == "-" {
		appendField(MarkerCancelled, t.Cancelled)
	}
	appendField(MarkerRecurrence, t.Recurrence)
	appendField(MarkerOnCompletion, t.OnCompletion)
	appendField(MarkerID, t.TaskID)
	if len(t.DependsOn) > 0 {
		appendField(MarkerDependsOn, strings.Join(t.DependsOn, ","))
	}
	if m, ok := priorityMarkers[t.Priority]; ok {
		b.WriteString(" ")
		b.WriteString(m)
	}
	for _, tag := range t.Tags {
		b.WriteString(" #")
		b.WriteString(strings.TrimPrefix(tag, "#"))
	}
	if blockID != "" {
		b.WriteString(" ^")
		b.WriteString(blockID)
	}
	return b.String()
}

// StripTaskMetadata removes inline metadata markers, hashtags and any block
// suffix from a task's free text, leaving only the description.
func StripTaskMetadata(text string) string {
	text = blockSuffix.ReplaceAllString(text, "")
	text = inlineMeta.ReplaceAllString(text, "")
	text = inlineTag.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Heading renders a heading row. When editing an existing line, the original
// fence level and any trailing explicit anchor are reused; otherwise the
// row's requested level decides.
func Heading(h entity.Heading, existing string) string {
	level := h.Level
	suffix := ""

	if existing != "" {
		if m := headingLine.FindStringSubmatch(existing); m != nil {
			level = len(m[1])
		}
		if m := blockSuffix.FindStringSubmatch(existing); m != nil {
			suffix = " ^" + m[1]
		}
	}
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}

	text := strings.TrimSpace(h.Text)
	text = blockSuffix.ReplaceAllString(text, "")
	return strings.Repeat("#", level) + " " + text + suffix
}

// ListItem renders a list item row, detecting bullet vs. numbered style from
// the existing line when available, else from the row's declared type.
func ListItem(l entity.ListItem, existing string) string {
	indent := l.Indent
	marker := l.Marker

	if existing != "" {
		if m := listLine.FindStringSubmatch(existing); m != nil {
			indent, marker = m[1], m[2]
		}
	}
	if marker == "" {
		if l.Ordered {
			marker = "1."
		} else {
			marker = "-"
		}
	}
	return indent + marker + " " + strings.TrimSpace(l.Text)
}

// Table renders a Markdown table from a header row and data rows. Cell
// values are padded to the widest entry of each column so the block stays
// readable in source form.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(header) && i < len(row); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	pad := func(s string, w int) string {
		return s + strings.Repeat(" ", w-len(s))
	}

	var b strings.Builder
	b.WriteString("|")
	for i, h := range header {
		b.WriteString(" " + pad(h, widths[i]) + " |")
	}
	b.WriteString("\n|")
	for i := range header {
		b.WriteString(" " + strings.Repeat("-", widths[i]) + " |")
	}
	for _, row := range rows {
		b.WriteString("\n|")
		for i := 0; i < len(header); i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(" " + pad(cell, widths[i]) + " |")
		}
	}
	return b.String()
}

// ParseTable splits an existing Markdown table block into header and data
// rows. The separator row is validated and discarded. Returns ok=false when
// the block is not a recognizable table.
func ParseTable(block string) (header []string, rows [][]string, ok bool) {
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	if len(lines) < 2 {
		return nil, nil, false
	}

	header = splitTableRow(lines[0])
	if header == nil {
		return nil, nil, false
	}
	if !isSeparatorRow(lines[1]) {
		return nil, nil, false
	}
	for _, line := range lines[2:] {
		cells := splitTableRow(line)
		if cells == nil {
			continue
		}
		rows = append(rows, cells)
	}
	return header, rows, true
}

func splitTableRow(line string) []string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
		return nil
	}
	inner := line[1 : len(line)-1]
	parts := strings.Split(inner, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(line string) bool {
	cells := splitTableRow(line)
	if cells == nil {
		return false
	}
	for _, c := range cells {
		if c == "" {
			return false
		}
		for _, r := range c {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

// BlockID formats an anchor token as its in-document suffix form.
func BlockID(token string) string {
	return fmt.Sprintf("^%s", strings.TrimPrefix(token, "^"))
}
