// Package ui provides terminal output styling shared by the vq commands.
// Styling degrades to plain text when stdout is not a terminal or when
// color is disabled.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	faintStyle  = lipgloss.NewStyle().Faint(true)

	addStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	delStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Strikethrough(true)

	colorEnabled = term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
)

// DisableColor forces plain-text output regardless of terminal detection.
func DisableColor() { colorEnabled = false }

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass styles a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail styles a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent styles an informational marker.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderFaint styles secondary text.
func RenderFaint(s string) string { return render(faintStyle, s) }

// RenderDiff renders an inline character diff of before vs. after, with
// insertions and deletions highlighted. Falls back to +/- prefixes when
// color is disabled.
func RenderDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			if colorEnabled {
				b.WriteString(addStyle.Render(d.Text))
			} else {
				b.WriteString("{+" + d.Text + "+}")
			}
		case diffmatchpatch.DiffDelete:
			if colorEnabled {
				b.WriteString(delStyle.Render(d.Text))
			} else {
				b.WriteString("{-" + d.Text + "-}")
			}
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// Table renders rows as aligned columns for terminal display.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(string) string) {
		for i := 0; i < len(widths); i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(style(cell + strings.Repeat(" ", widths[i]-len(cell))))
		}
		b.WriteString("\n")
	}

	writeRow(header, RenderAccent)
	for _, row := range rows {
		writeRow(row, func(s string) string { return s })
	}
	return b.String()
}
