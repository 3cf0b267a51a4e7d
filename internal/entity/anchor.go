package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// AnchorHash fingerprints a line by its trimmed, lowercased text plus its
// immediate predecessor and successor lines and its 0-based line index.
//
// The hash is deterministic: the same 3-line context at the same index always
// produces the same value, so unrelated edits elsewhere in the document do not
// disturb it. Editing any of the three lines (or moving the line) changes it,
// which is exactly when relocation should fall through to the next strategy.
func AnchorHash(prev, line, next string, index int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%d",
		normalizeAnchorLine(prev),
		normalizeAnchorLine(line),
		normalizeAnchorLine(next),
		index,
	)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// AnchorHashAt computes the anchor hash for line index i of lines, treating
// out-of-range neighbors as empty.
func AnchorHashAt(lines []string, i int) string {
	var prev, next string
	if i > 0 {
		prev = lines[i-1]
	}
	if i+1 < len(lines) {
		next = lines[i+1]
	}
	return AnchorHash(prev, lines[i], next, i)
}

func normalizeAnchorLine(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
