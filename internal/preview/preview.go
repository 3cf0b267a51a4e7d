// Package preview executes relational mutation statements inside a nested
// transaction scope, captures before/after row snapshots, and rolls
// everything back, producing an inspectable Preview without committing
// anything.
//
// A preview run is a fixed state machine: determine the target, open a
// savepoint scope, execute with a RETURNING capture, snapshot the affected
// rows, roll back to the savepoint, release it, and return. Multi-statement
// batches validate every statement before executing any of them, run all of
// them inside one shared outer scope, and report one sub-preview per
// statement.
package preview

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bobstanton/vaultquery/internal/engine"
	"github.com/bobstanton/vaultquery/internal/sqlscan"
)

// Op is the mutation operation a preview describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpMulti  Op = "multi"
)

// RowMap is one captured row, keyed by column name. Values are plain Go
// scalars (string, int64, float64, nil).
type RowMap map[string]any

// Preview is the captured effect of one mutation statement (or, for
// OpMulti, of a whole batch). Before and After are paired by position, one
// entry per affected row; inserts have no Before, deletes no After.
// Previews are transient: produced here, consumed immediately by the entity
// handlers or discarded, never persisted.
type Preview struct {
	Op        Op
	Table     string
	Columns   []string
	PKColumns []string
	IDs       [][]any

	Before []RowMap
	After  []RowMap

	Statement string
	Params    []any

	Children []*Preview
}

// Statements returns the statements a caller must execute to actually apply
// this preview, in order.
func (p *Preview) Statements() []string {
	if p.Op != OpMulti {
		return []string{p.Statement}
	}
	var stmts []string
	for _, c := range p.Children {
		stmts = append(stmts, c.Statements()...)
	}
	return stmts
}

// Flatten returns the leaf previews: the preview itself for a single
// statement, or every child for a batch.
func (p *Preview) Flatten() []*Preview {
	if p.Op != OpMulti {
		return []*Preview{p}
	}
	var out []*Preview
	for _, c := range p.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}

// Previewer runs mutation previews against the relational engine.
type Previewer struct {
	db     *engine.DB
	logger *log.Logger
}

// New returns a Previewer. If logger is nil, a default logger writing to
// stderr is used.
func New(db *engine.DB, logger *log.Logger) *Previewer {
	if logger == nil {
		logger = log.New(os.Stderr, "[preview] ", log.LstdFlags)
	}
	return &Previewer{db: db, logger: logger}
}

// resolved is one statement whose operation and target passed validation.
type resolved struct {
	stmt string
	op   Op
	obj  *engine.Object
}

// Preview executes the statement (or semicolon-separated batch) inside a
// rolled-back transaction scope and returns the captured effect. Nothing is
// committed, whatever happens.
func (p *Previewer) Preview(ctx context.Context, statement string, params ...any) (*Preview, error) {
	stmts := sqlscan.SplitStatements(statement)
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: empty statement", ErrUnsupportedStatement)
	}
	if len(stmts) > 1 && len(params) > 0 {
		return nil, fmt.Errorf("%w: bound parameters are not supported for multi-statement batches", ErrUnsupportedStatement)
	}

	cat, err := p.db.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	// Validate every statement before executing any of them.
	targets := make([]resolved, 0, len(stmts))
	for _, stmt := range stmts {
		r, err := p.resolve(ctx, cat, stmt, params...)
		if err != nil {
			return nil, err
		}
		targets = append(targets, r)
	}

	outer, err := p.db.BeginScope(ctx)
	if err != nil {
		return nil, err
	}
	// The whole scope is always unwound; unwind failures are logged, never
	// allowed to mask the original error.
	defer func() {
		if err := outer.Rollback(ctx); err != nil {
			p.logger.Printf("Warning: failed to unwind preview scope: %v", err)
		}
	}()

	children := make([]*Preview, 0, len(targets))
	for _, r := range targets {
		child, err := p.previewOne(ctx, outer, r, params...)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return &Preview{Op: OpMulti, Statement: statement, Children: children}, nil
}

// resolve determines a statement's operation and target object.
//
// The target identifier is first parsed syntactically and confirmed against
// the catalog. For tables, the query plan's open-for-write opcode is mapped
// back to the catalog by storage-page identity, which beats syntax when
// generated SQL wraps the target in expressions; if introspection is
// unavailable or inconclusive the syntactic result stands.
func (p *Previewer) resolve(ctx context.Context, cat *engine.Catalog, stmt string, params ...any) (resolved, error) {
	var op Op
	switch kw := sqlscan.FirstKeyword(stmt); kw {
	case "insert", "replace":
		op = OpInsert
	case "update":
		op = OpUpdate
	case "delete":
		op = OpDelete
	default:
		return resolved{}, fmt.Errorf("%w: %q statements cannot be previewed", ErrUnsupportedStatement, kw)
	}

	var syntactic *engine.Object
	if name, err := sqlscan.TargetIdentifier(stmt); err == nil {
		syntactic, _ = cat.Lookup(name)
	}

	if syntactic != nil && syntactic.IsTable() {
		if planName := p.db.WriteTarget(ctx, cat, stmt, params...); planName != "" && !strings.EqualFold(planName, syntactic.Name) {
			if o, ok := cat.Lookup(planName); ok {
				return resolved{stmt: stmt, op: op, obj: o}, nil
			}
		}
		return resolved{stmt: stmt, op: op, obj: syntactic}, nil
	}
	if syntactic != nil {
		return resolved{stmt: stmt, op: op, obj: syntactic}, nil
	}

	// Syntax came up empty; plan introspection is the last resort.
	if planName := p.db.WriteTarget(ctx, cat, stmt, params...); planName != "" {
		if o, ok := cat.Lookup(planName); ok {
			return resolved{stmt: stmt, op: op, obj: o}, nil
		}
	}
	return resolved{}, fmt.Errorf("%w: no table or view matches the statement's target", ErrTargetUnresolved)
}

// keyColumns picks the columns used to identify affected rows: declared
// primary key, else the synthetic rowid, else a heuristic key-column set
// for known views.
func keyColumns(obj *engine.Object, haveRowid bool) []string {
	if pks := obj.PKColumns(); len(pks) > 0 {
		return pks
	}
	if haveRowid {
		return []string{"vq_rowid"}
	}
	if keys, ok := engine.ViewKeyColumns[strings.ToLower(obj.Name)]; ok {
		return keys
	}
	return nil
}

// previewOne runs one statement in a nested savepoint under parent and
// builds its sub-preview.
func (p *Previewer) previewOne(ctx context.Context, parent *engine.Scope, r resolved, params ...any) (*Preview, error) {
	sp, err := parent.Begin(ctx)
	if err != nil {
		return nil, err
	}

	if sqlscan.HasReturning(r.stmt) {
		_ = sp.Rollback(ctx)
		return nil, fmt.Errorf("%w: statement already carries a RETURNING clause", ErrUnsupportedStatement)
	}

	// Capture: request the synthetic row identifier plus all columns; when
	// the engine rejects returning a rowid (views, WITHOUT ROWID tables),
	// retry without it.
	haveRowid := true
	capture := sqlscan.AppendReturning(r.stmt, "rowid AS vq_rowid", "*")
	rows, err := sp.Query(ctx, capture, params...)
	if err != nil && rejectsRowid(err) {
		haveRowid = false
		capture = sqlscan.AppendReturning(r.stmt, "*")
		rows, err = sp.Query(ctx, capture, params...)
	}
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			p.logger.Printf("Warning: failed to unwind statement savepoint: %v", rbErr)
		}
		return nil, translate(err)
	}

	columns, captured, err := scanRowMaps(rows)
	if err != nil {
		_ = sp.Rollback(ctx)
		return nil, translate(err)
	}

	keys := keyColumns(r.obj, haveRowid)
	ids := extractIDs(captured, keys)

	pv := &Preview{
		Op:        r.op,
		Table:     r.obj.Name,
		Columns:   stripCaptureColumns(columns),
		PKColumns: r.obj.PKColumns(),
		IDs:       ids,
		Statement: r.stmt,
		Params:    params,
	}

	switch r.op {
	case OpInsert:
		pv.After = stripCapture(captured)
		err = sp.Release(ctx)
	case OpDelete:
		pv.Before = stripCapture(captured)
		err = sp.Release(ctx)
	case OpUpdate:
		// After is the state immediately before rollback: the proposed new
		// values. Roll the statement back, refetch the true prior state by
		// key, then re-execute plainly so later statements in the batch
		// still see this one's effects.
		pv.After = stripCapture(captured)
		if err := sp.Rollback(ctx); err != nil {
			return nil, err
		}
		pv.Before, err = p.refetch(ctx, parent, r.obj, keys, ids)
		if err != nil {
			return nil, err
		}
		redo, err := parent.Begin(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := redo.Exec(ctx, r.stmt, params...); err != nil {
			_ = redo.Rollback(ctx)
			return nil, translate(err)
		}
		err = redo.Release(ctx)
		if err != nil {
			return nil, err
		}
		return pv, nil
	}
	if err != nil {
		return nil, err
	}
	return pv, nil
}

// refetch reads the current (pre-statement) state of the rows identified by
// ids, reported in the same order so Before pairs with After by position.
// Rows that do not exist yet are recorded as nil entries.
func (p *Previewer) refetch(ctx context.Context, scope *engine.Scope, obj *engine.Object, keys []string, ids [][]any) ([]RowMap, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s has no primary key, rowid or known key columns", ErrTargetUnresolved, obj.Name)
	}

	var conds []string
	for _, k := range keys {
		col := k
		if k == "vq_rowid" {
			col = "rowid"
		}
		conds = append(conds, fmt.Sprintf("%q = ?", col))
	}
	query := fmt.Sprintf("SELECT * FROM %q WHERE %s", obj.Name, strings.Join(conds, " AND "))

	before := make([]RowMap, 0, len(ids))
	for _, id := range ids {
		rows, err := scope.Query(ctx, query, id...)
		if err != nil {
			return nil, translate(err)
		}
		_, fetched, err := scanRowMaps(rows)
		if err != nil {
			return nil, translate(err)
		}
		if len(fetched) == 0 {
			before = append(before, nil)
			continue
		}
		before = append(before, fetched[0])
	}
	return before, nil
}

// scanRowMaps drains rows into RowMaps, normalizing driver types to plain
// scalars.
func scanRowMaps(rows *sql.Rows) ([]string, []RowMap, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	var out []RowMap
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan captured row: %w", err)
		}
		m := make(RowMap, len(columns))
		for i, c := range columns {
			m[c] = normalizeValue(values[i])
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating captured rows: %w", err)
	}
	return columns, out, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// extractIDs pulls the key tuple out of every captured row.
func extractIDs(rows []RowMap, keys []string) [][]any {
	ids := make([][]any, 0, len(rows))
	for _, row := range rows {
		id := make([]any, 0, len(keys))
		for _, k := range keys {
			id = append(id, row[k])
		}
		ids = append(ids, id)
	}
	return ids
}

// stripCapture removes the synthetic vq_rowid column from captured rows.
func stripCapture(rows []RowMap) []RowMap {
	for _, row := range rows {
		delete(row, "vq_rowid")
	}
	return rows
}

func stripCaptureColumns(columns []string) []string {
	out := columns[:0:0]
	for _, c := range columns {
		if c != "vq_rowid" {
			out = append(out, c)
		}
	}
	return out
}
