package preview

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrUnsupportedStatement rejects anything other than a single
	// supported mutation kind per statement, before any side effect.
	ErrUnsupportedStatement = errors.New("unsupported statement")

	// ErrTargetUnresolved rejects a statement whose written table or view
	// cannot be determined, before execution.
	ErrTargetUnresolved = errors.New("cannot resolve statement target")
)

var (
	notNullRe  = regexp.MustCompile(`NOT NULL constraint failed: (\S+)`)
	uniqueRe   = regexp.MustCompile(`UNIQUE constraint failed: ([^(]+?)(?:\s*\(|$)`)
	noColumnRe = regexp.MustCompile(`no such column:? (\S+)`)
	noTableRe  = regexp.MustCompile(`no such table:? (\S+)`)
)

// translate turns an engine error into an actionable message identifying the
// likely cause. The original error stays wrapped for callers that need it.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("the statement references a row that does not exist (foreign key target missing): %w", err)
	case notNullRe.MatchString(msg):
		col := notNullRe.FindStringSubmatch(msg)[1]
		return fmt.Errorf("column %s must not be empty: %w", col, err)
	case strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed"):
		cols := "a unique column"
		if m := uniqueRe.FindStringSubmatch(msg); m != nil {
			cols = strings.TrimSpace(m[1])
		}
		return fmt.Errorf("a row with the same %s already exists: %w", cols, err)
	case noColumnRe.MatchString(msg):
		col := noColumnRe.FindStringSubmatch(msg)[1]
		return fmt.Errorf("unknown column %s: %w", col, err)
	case noTableRe.MatchString(msg):
		tbl := noTableRe.FindStringSubmatch(msg)[1]
		return fmt.Errorf("unknown table or view %s: %w", tbl, err)
	default:
		return fmt.Errorf("statement failed: %w", err)
	}
}

// rejectsRowid reports whether err looks like the engine refusing to return
// a synthetic row identifier, e.g. for a view or a WITHOUT ROWID table.
func rejectsRowid(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rowid") ||
		(strings.Contains(msg, "no such column") && strings.Contains(msg, "vq_rowid"))
}
