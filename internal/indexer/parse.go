package indexer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bobstanton/vaultquery/internal/emit"
	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/vault"
)

// Document is the parsed form of one vault note: every extractable entity
// row plus the note-level metadata.
type Document struct {
	Path  string
	Title string

	Properties []entity.Property
	Tasks      []entity.Task
	Headings   []entity.Heading
	ListItems  []entity.ListItem
	Cells      []entity.TableCell
	Tags       []TagRef
	Links      []LinkRef
}

// TagRef is one inline or frontmatter tag occurrence.
type TagRef struct {
	Tag  string
	Line int // 1-based, -1 for frontmatter tags
}

// LinkRef is one outgoing wiki link.
type LinkRef struct {
	Target string
	Line   int
}

var (
	taskLine    = regexp.MustCompile(`^(\s*)([-*+]|\d+[.)])\s+\[(.)\]\s+(.*)$`)
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)
	listLine    = regexp.MustCompile(`^(\s*)([-*+]|\d+[.)])\s+(.*)$`)
	tableLine   = regexp.MustCompile(`^\s*\|[^\n]*\|\s*$`)
	blockSuffix = regexp.MustCompile(`\s+\^([A-Za-z0-9-]+)\s*$`)
	codeFence   = regexp.MustCompile("^\\s*(```|~~~)")

	inlineTag = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}/_-]+)`)
	wikiLink  = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)

	dateField = regexp.MustCompile(`([➕⏳🛫📅✅❌])\s*(\d{4}-\d{2}-\d{2})`)
	recField  = regexp.MustCompile(`🔁\s*([^➕⏳🛫📅✅❌🏁🆔⛔🔺⏫🔼🔽⏬]+)`)
	onDone    = regexp.MustCompile(`🏁\s*(\S+)`)
	idField   = regexp.MustCompile(`🆔\s*(\S+)`)
	depField  = regexp.MustCompile(`⛔\s*(\S+)`)
	prioMark  = regexp.MustCompile(`[🔺⏫🔼🔽⏬]`)
)

var priorityByMarker = map[string]string{
	"🔺": "highest",
	"⏫": "high",
	"🔼": "medium",
	"🔽": "low",
	"⏬": "lowest",
}

// Parse extracts every entity row from one note's text.
//
// Line numbers and byte offsets are relative to the full document text,
// frontmatter included, so the write path's locator sees the same coordinate
// space the indexer recorded. Frontmatter and fenced code blocks contribute
// no line entities.
func Parse(path, text string) (*Document, error) {
	doc := &Document{Path: path}

	fm, err := vault.ParseFrontmatter(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter of %s: %w", path, err)
	}
	for _, key := range fm.Keys() {
		v, _ := fm.Get(key)
		doc.Properties = append(doc.Properties, entity.Property{Path: path, Key: key, Value: propertyValue(v)})
	}
	for _, tag := range fm.Tags() {
		doc.Tags = append(doc.Tags, TagRef{Tag: strings.TrimPrefix(tag, "#"), Line: -1})
	}

	lines, starts := splitLines(text)
	bodyStart := len(text) - len(fm.Body)

	inCode := false
	tableStart := -1
	tableIndex := 0
	var tableLines []string

	flushTable := func() {
		if tableStart < 0 {
			return
		}
		block := strings.Join(tableLines, "\n")
		start := starts[tableStart]
		end := start + len(block)
		if header, rows, ok := emit.ParseTable(block); ok {
			for ri, row := range rows {
				for ci, col := range header {
					val := ""
					if ci < len(row) {
						val = row[ci]
					}
					doc.Cells = append(doc.Cells, entity.TableCell{
						Pos: entity.Pos{
							Path:        path,
							LineNumber:  tableStart + 1,
							StartOffset: start,
							EndOffset:   end,
						},
						TableIndex: tableIndex,
						RowIndex:   ri,
						Column:     col,
						Value:      val,
					})
				}
			}
			tableIndex++
		}
		tableStart = -1
		tableLines = nil
	}

	for i, line := range lines {
		if starts[i] < bodyStart {
			continue
		}
		if codeFence.MatchString(line) {
			flushTable()
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}

		if tableLine.MatchString(line) {
			if tableStart < 0 {
				tableStart = i
			}
			tableLines = append(tableLines, line)
			continue
		}
		flushTable()

		pos := entity.Pos{
			Path:        path,
			LineNumber:  i + 1,
			StartOffset: starts[i],
			EndOffset:   starts[i] + len(line),
			AnchorHash:  entity.AnchorHashAt(lines, i),
		}
		if m := blockSuffix.FindStringSubmatch(line); m != nil {
			pos.BlockID = m[1]
		}

		switch {
		case taskLine.MatchString(line):
			doc.Tasks = append(doc.Tasks, parseTask(pos, line))
		case headingLine.MatchString(line):
			m := headingLine.FindStringSubmatch(line)
			text := blockSuffix.ReplaceAllString(m[2], "")
			doc.Headings = append(doc.Headings, entity.Heading{
				Pos:   pos,
				Text:  strings.TrimSpace(text),
				Level: len(m[1]),
			})
			if doc.Title == "" && len(m[1]) == 1 {
				doc.Title = strings.TrimSpace(text)
			}
		case listLine.MatchString(line):
			m := listLine.FindStringSubmatch(line)
			doc.ListItems = append(doc.ListItems, entity.ListItem{
				Pos:     pos,
				Text:    strings.TrimSpace(blockSuffix.ReplaceAllString(m[3], "")),
				Indent:  m[1],
				Marker:  m[2],
				Ordered: m[2] != "-" && m[2] != "*" && m[2] != "+",
			})
		}

		for _, m := range inlineTag.FindAllStringSubmatch(line, -1) {
			doc.Tags = append(doc.Tags, TagRef{Tag: m[1], Line: i + 1})
		}
		for _, m := range wikiLink.FindAllStringSubmatch(line, -1) {
			doc.Links = append(doc.Links, LinkRef{Target: strings.TrimSpace(m[1]), Line: i + 1})
		}
	}
	flushTable()

	if doc.Title == "" {
		base := filepath.Base(path)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return doc, nil
}

// parseTask decodes one checkbox line's inline metadata fields.
func parseTask(pos entity.Pos, line string) entity.Task {
	m := taskLine.FindStringSubmatch(line)
	body := m[4]

	t := entity.Task{
		Pos:        pos,
		Status:     m[3],
		Checked:    m[3] != " ",
		Priority:   "normal",
		Indent:     m[1],
		ListMarker: m[2],
	}

	for _, f := range dateField.FindAllStringSubmatch(body, -1) {
		switch f[1] {
		case emit.MarkerCreated:
			t.Created = f[2]
		case emit.MarkerScheduled:
			t.Scheduled = f[2]
		case emit.MarkerStart:
			t.Start = f[2]
		case emit.MarkerDue:
			t.Due = f[2]
		case emit.MarkerDone:
			t.Done = f[2]
		case emit.MarkerCancelled:
			t.Cancelled = f[2]
		}
	}
	if f := recField.FindStringSubmatch(body); f != nil {
		t.Recurrence = strings.TrimSpace(f[1])
	}
	if f := onDone.FindStringSubmatch(body); f != nil {
		t.OnCompletion = f[1]
	}
	if f := idField.FindStringSubmatch(body); f != nil {
		t.TaskID = f[1]
	}
	if f := depField.FindStringSubmatch(body); f != nil {
		for _, d := range strings.Split(f[1], ",") {
			if d = strings.TrimSpace(d); d != "" {
				t.DependsOn = append(t.DependsOn, d)
			}
		}
	}
	if f := prioMark.FindString(body); f != "" {
		if p, ok := priorityByMarker[f]; ok {
			t.Priority = p
		}
	}
	for _, f := range inlineTag.FindAllStringSubmatch(body, -1) {
		t.Tags = append(t.Tags, f[1])
	}

	t.Text = emit.StripTaskMetadata(body)
	return t
}

// propertyValue renders a frontmatter value for relational storage: scalars
// as-is, structured values as JSON text.
func propertyValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

// splitLines splits text into terminator-free lines and records each line's
// starting byte offset, mirroring the locator's line coordinates.
func splitLines(text string) (lines []string, starts []int) {
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, strings.TrimSuffix(text[start:i], "\r"))
			starts = append(starts, start)
			start = i + 1
		}
	}
	if start < len(text) || len(text) == 0 {
		lines = append(lines, text[start:])
		starts = append(starts, start)
	}
	return lines, starts
}
