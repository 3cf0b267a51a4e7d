// Package sqlscan provides a small quote- and comment-aware cursor over SQL
// text.
//
// The preview engine needs three string-level operations that are unsafe to
// do with regular expressions: splitting a batch on top-level statement
// separators, reading a statement's leading keyword and target identifier,
// and appending a RETURNING clause. All three must ignore separators and
// keywords that appear inside string literals, quoted identifiers or
// comments, so they share one explicit scanner that tracks quote state.
package sqlscan

import (
	"errors"
	"strings"
)

// ErrNoTarget reports that a statement's target table or view could not be
// read syntactically.
var ErrNoTarget = errors.New("statement has no recognizable target identifier")

type scanner struct {
	src string
	pos int
}

// skipInert advances past whitespace and comments.
func (s *scanner) skipInert() {
	for s.pos < len(s.src) {
		switch {
		case s.src[s.pos] == ' ' || s.src[s.pos] == '\t' || s.src[s.pos] == '\n' || s.src[s.pos] == '\r':
			s.pos++
		case strings.HasPrefix(s.src[s.pos:], "--"):
			if i := strings.IndexByte(s.src[s.pos:], '\n'); i >= 0 {
				s.pos += i + 1
			} else {
				s.pos = len(s.src)
			}
		case strings.HasPrefix(s.src[s.pos:], "/*"):
			if i := strings.Index(s.src[s.pos+2:], "*/"); i >= 0 {
				s.pos += i + 4
			} else {
				s.pos = len(s.src)
			}
		default:
			return
		}
	}
}

// skipQuoted advances past a quoted region opened by the byte at pos.
// Handles '…' and "…" with doubled-quote escapes, `…` and […] bracketed
// identifiers.
func (s *scanner) skipQuoted() bool {
	open := s.src[s.pos]
	switch open {
	case '\'', '"', '`':
		s.pos++
		for s.pos < len(s.src) {
			if s.src[s.pos] == open {
				// Doubled quote is an escape, not a terminator.
				if s.pos+1 < len(s.src) && s.src[s.pos+1] == open {
					s.pos += 2
					continue
				}
				s.pos++
				return true
			}
			s.pos++
		}
		return true
	case '[':
		if i := strings.IndexByte(s.src[s.pos:], ']'); i >= 0 {
			s.pos += i + 1
		} else {
			s.pos = len(s.src)
		}
		return true
	}
	return false
}

// word reads an identifier or keyword at the cursor.
func (s *scanner) word() string {
	start := s.pos
	for s.pos < len(s.src) && isWordByte(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// SplitStatements splits a batch on top-level semicolons, respecting quoted
// regions and comments so separators inside literals are not mistaken for
// boundaries. Empty statements are discarded; the separators themselves are
// not retained.
func SplitStatements(batch string) []string {
	s := &scanner{src: batch}
	var stmts []string
	start := 0
	for s.pos < len(s.src) {
		switch {
		case s.src[s.pos] == ';':
			if stmt := strings.TrimSpace(batch[start:s.pos]); stmt != "" {
				stmts = append(stmts, stmt)
			}
			s.pos++
			start = s.pos
		case strings.HasPrefix(s.src[s.pos:], "--") || strings.HasPrefix(s.src[s.pos:], "/*"):
			s.skipInert()
		case s.skipQuoted():
		default:
			s.pos++
		}
	}
	if stmt := strings.TrimSpace(batch[start:]); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}

// FirstKeyword returns the statement's leading keyword, lowercased, with
// leading whitespace and comments skipped.
func FirstKeyword(stmt string) string {
	s := &scanner{src: stmt}
	s.skipInert()
	return strings.ToLower(s.word())
}

// TargetIdentifier reads the table or view name written by an INSERT, UPDATE
// or DELETE statement. Quoted identifiers are unwrapped; schema prefixes
// ("main.t") are reduced to the bare object name.
func TargetIdentifier(stmt string) (string, error) {
	s := &scanner{src: stmt}
	s.skipInert()

	switch strings.ToLower(s.word()) {
	case "insert", "replace":
		// INSERT [OR …] INTO target
		for {
			s.skipInert()
			w := strings.ToLower(s.word())
			if w == "into" {
				break
			}
			if w == "" {
				return "", ErrNoTarget
			}
		}
	case "update":
		// UPDATE [OR …] target
		s.skipInert()
		if w := s.peekWord(); strings.EqualFold(w, "or") {
			s.word()
			s.skipInert()
			s.word() // conflict action
		}
	case "delete":
		s.skipInert()
		if !strings.EqualFold(s.word(), "from") {
			return "", ErrNoTarget
		}
	default:
		return "", ErrNoTarget
	}

	s.skipInert()
	name, err := s.identifier()
	if err != nil {
		return "", err
	}

	// Schema-qualified name: keep the object part.
	if s.pos < len(s.src) && s.src[s.pos] == '.' {
		s.pos++
		return s.identifier()
	}
	return name, nil
}

func (s *scanner) peekWord() string {
	save := s.pos
	w := s.word()
	s.pos = save
	return w
}

// identifier reads a possibly-quoted identifier at the cursor.
func (s *scanner) identifier() (string, error) {
	if s.pos >= len(s.src) {
		return "", ErrNoTarget
	}
	switch s.src[s.pos] {
	case '"', '`':
		open := s.src[s.pos]
		start := s.pos + 1
		s.pos++
		var b strings.Builder
		for s.pos < len(s.src) {
			if s.src[s.pos] == open {
				if s.pos+1 < len(s.src) && s.src[s.pos+1] == open {
					b.WriteString(s.src[start:s.pos+1])
					s.pos += 2
					start = s.pos
					continue
				}
				b.WriteString(s.src[start:s.pos])
				s.pos++
				return b.String(), nil
			}
			s.pos++
		}
		return "", ErrNoTarget
	case '[':
		start := s.pos + 1
		if i := strings.IndexByte(s.src[s.pos:], ']'); i >= 0 {
			name := s.src[start : s.pos+i]
			s.pos += i + 1
			return name, nil
		}
		return "", ErrNoTarget
	}
	name := s.word()
	if name == "" {
		return "", ErrNoTarget
	}
	return name, nil
}

// HasReturning reports whether the statement already carries a top-level
// RETURNING clause.
func HasReturning(stmt string) bool {
	s := &scanner{src: stmt}
	for s.pos < len(s.src) {
		switch {
		case strings.HasPrefix(s.src[s.pos:], "--") || strings.HasPrefix(s.src[s.pos:], "/*"):
			s.skipInert()
		case s.skipQuoted():
		case isWordByte(s.src[s.pos]):
			if strings.EqualFold(s.word(), "returning") {
				return true
			}
		default:
			s.pos++
		}
	}
	return false
}

// AppendReturning appends a RETURNING clause for the given column
// expressions, stripping any trailing top-level semicolon first. The
// statement is assumed not to already carry one (see HasReturning).
func AppendReturning(stmt string, columns ...string) string {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSuffix(stmt, ";")
	stmt = strings.TrimRight(stmt, " \t\n\r")
	return stmt + " RETURNING " + strings.Join(columns, ", ")
}
