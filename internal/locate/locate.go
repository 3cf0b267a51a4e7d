// Package locate resolves a relational row back to the exact byte range in a
// document's current text.
//
// Location is attempted through a priority-ordered strategy chain:
//
//  1. Explicit block anchor, resolved through the vault's anchor index.
//  2. The row's stored byte offsets, if still in range.
//  3. Anchor-hash scan: recompute the 3-line-context fingerprint for every
//     line and take the first exact match.
//  4. Fuzzy text match (tasks only): token-set similarity over normalized
//     checkbox lines, accepted at or above the configured threshold.
//
// Every accepted candidate must also pass the shape predicate for the row's
// entity kind, so a stale offset pointing at unrelated text is rejected
// rather than silently edited. Failure is reported as a *MissingError with a
// human-readable reason; callers skip the row and record a warning.
package locate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bobstanton/vaultquery/internal/entity"
)

// DefaultFuzzyThreshold is the minimum token-set similarity for the fuzzy
// task fallback. Kept configurable; the value is a tuned constant, not a
// derived one.
const DefaultFuzzyThreshold = 0.6

// Range is a half-open [Start, End) byte range into a document's text.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int { return r.End - r.Start }

// AnchorResolver maps an explicit block anchor token to its byte range.
// Implemented by the vault store's anchor index.
type AnchorResolver interface {
	ResolveBlockAnchor(path, token string) (Range, bool)
}

// MissingError reports that a row could not be located in the current text.
type MissingError struct {
	Kind   entity.Kind
	Reason string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("cannot locate %s: %s", e.Kind, e.Reason)
}

func missing(kind entity.Kind, format string, args ...any) error {
	return &MissingError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsMissing reports whether err is a location failure (as opposed to a
// programming error).
func IsMissing(err error) bool {
	_, ok := err.(*MissingError)
	return ok
}

var (
	taskShape    = regexp.MustCompile(`^\s*[-*+]\s+\[.\]\s+`)
	headingShape = regexp.MustCompile(`^#{1,6}\s+`)
	bulletShape  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	tableShape   = regexp.MustCompile(`^\s*\|[^\n]*\|`)
)

// MatchesShape reports whether a single line of text still looks like the
// given entity kind.
func MatchesShape(kind entity.Kind, line string) bool {
	switch kind {
	case entity.KindTask:
		return taskShape.MatchString(line)
	case entity.KindHeading:
		return headingShape.MatchString(line)
	case entity.KindListItem:
		return bulletShape.MatchString(line) && !taskShape.MatchString(line)
	case entity.KindTableCell:
		return tableShape.MatchString(line)
	default:
		return false
	}
}

// Locator locates rows in document text. The zero value is not usable;
// construct with New.
type Locator struct {
	anchors        AnchorResolver
	fuzzyThreshold float64
}

// New returns a Locator using the given anchor resolver (may be nil, in
// which case the block-anchor strategy is skipped) and the default fuzzy
// threshold.
func New(anchors AnchorResolver) *Locator {
	return &Locator{anchors: anchors, fuzzyThreshold: DefaultFuzzyThreshold}
}

// SetFuzzyThreshold overrides the fuzzy-match acceptance threshold.
func (l *Locator) SetFuzzyThreshold(t float64) {
	if t > 0 {
		l.fuzzyThreshold = t
	}
}

// Locate finds the byte range in text that row corresponds to.
//
// A row flagged as new (line number -1 and no other hints) is never located;
// it must be inserted instead. Locate never fabricates a range: when every
// strategy fails it returns a *MissingError describing why.
func (l *Locator) Locate(text string, row entity.Row) (Range, error) {
	kind := row.Kind()
	pos := row.Position()

	// Strategy 1: explicit block anchor.
	if pos.BlockID != "" && l.anchors != nil {
		if r, ok := l.anchors.ResolveBlockAnchor(pos.Path, pos.BlockID); ok {
			if r.Start >= 0 && r.End <= len(text) && r.Start <= r.End {
				if MatchesShape(kind, text[r.Start:r.End]) {
					return r, nil
				}
				return Range{}, missing(kind, "block anchor ^%s resolved to text that is not a %s", pos.BlockID, kind)
			}
		}
	}

	// Strategy 2: stored byte offsets.
	if pos.HasOffsets() && pos.EndOffset <= len(text) {
		slice := text[pos.StartOffset:pos.EndOffset]
		if MatchesShape(kind, slice) {
			return Range{Start: pos.StartOffset, End: pos.EndOffset}, nil
		}
	}

	lines, starts := splitLines(text)

	// Strategy 3: anchor-hash scan over every line's 3-line context.
	if pos.AnchorHash != "" {
		for i := range lines {
			if entity.AnchorHashAt(lines, i) != pos.AnchorHash {
				continue
			}
			if MatchesShape(kind, lines[i]) {
				return Range{Start: starts[i], End: starts[i] + len(lines[i])}, nil
			}
		}
	}

	// Strategy 4: fuzzy text match, tasks only.
	if task, ok := row.(entity.Task); ok {
		if r, ok := l.fuzzyLocateTask(task, lines, starts); ok {
			return r, nil
		}
	}

	return Range{}, missing(kind, "no strategy matched %s", describeRow(row))
}

// fuzzyLocateTask scans every checkbox line and scores it against the task's
// text by token-set similarity. The highest-scoring candidate wins, but only
// at or above the acceptance threshold.
func (l *Locator) fuzzyLocateTask(task entity.Task, lines []string, starts []int) (Range, bool) {
	target := normalizeForMatch(task.Text)
	if target == "" {
		return Range{}, false
	}

	best := -1
	bestScore := 0.0
	for i, line := range lines {
		if !taskShape.MatchString(line) {
			continue
		}
		candidate := normalizeForMatch(taskShape.ReplaceAllString(line, ""))
		score := tokenSetSimilarity(target, candidate)
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 || bestScore < l.fuzzyThreshold {
		return Range{}, false
	}
	return Range{Start: starts[best], End: starts[best] + len(lines[best])}, true
}

// normalizeForMatch lowercases, strips punctuation and collapses whitespace.
func normalizeForMatch(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte(' ')
		case r > 127:
			// Keep non-ASCII letters; drop emoji-range symbols used as
			// task metadata markers.
			if r < 0x2000 {
				b.WriteRune(r)
			}
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenSetSimilarity is the Jaccard similarity of the whitespace-split token
// sets of a and b: |intersection| / |union|.
func tokenSetSimilarity(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 && len(bs) == 0 {
		return 0
	}

	inter := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// splitLines splits text into lines without terminators and records each
// line's starting byte offset.
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

// LineStart returns the byte offset at which 1-based line lineNo begins,
// clamped to the end of text when the document is shorter.
func LineStart(text string, lineNo int) int {
	if lineNo <= 1 {
		return 0
	}
	_, starts := splitLines(text)
	if lineNo-1 < len(starts) {
		return starts[lineNo-1]
	}
	return len(text)
}

func describeRow(row entity.Row) string {
	pos := row.Position()
	switch r := row.(type) {
	case entity.Task:
		return fmt.Sprintf("task %q in %s", r.Text, pos.Path)
	case entity.Heading:
		return fmt.Sprintf("heading %q in %s", r.Text, pos.Path)
	case entity.ListItem:
		return fmt.Sprintf("list item %q in %s", r.Text, pos.Path)
	default:
		return fmt.Sprintf("%s row in %s", row.Kind(), pos.Path)
	}
}
