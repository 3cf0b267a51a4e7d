package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column describes one column of a table or view.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	PK      bool
}

// Object is one table or view in the schema catalog.
type Object struct {
	Name     string
	Type     string // "table" or "view"
	RootPage int
	Columns  []Column
}

// IsTable reports whether the object is a real table (as opposed to a view).
func (o *Object) IsTable() bool { return o.Type == "table" }

// PKColumns returns the names of the object's primary-key columns, in
// declaration order.
func (o *Object) PKColumns() []string {
	var pks []string
	for _, c := range o.Columns {
		if c.PK {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// ColumnNames returns every column name in declaration order.
func (o *Object) ColumnNames() []string {
	names := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the object declares the named column.
func (o *Object) HasColumn(name string) bool {
	for _, c := range o.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Catalog is a snapshot of the schema: tables and views by name, and tables
// by storage root page for plan introspection.
type Catalog struct {
	objects map[string]*Object
	byRoot  map[int]*Object
}

// Lookup finds an object by name, case-insensitively.
func (c *Catalog) Lookup(name string) (*Object, bool) {
	o, ok := c.objects[strings.ToLower(name)]
	return o, ok
}

// ByRootPage finds the table stored at the given b-tree root page.
func (c *Catalog) ByRootPage(page int) (*Object, bool) {
	o, ok := c.byRoot[page]
	return o, ok
}

// Catalog reads the schema catalog: every user table and view with its
// columns, primary-key flags and root page.
func (db *DB) Catalog(ctx context.Context) (*Catalog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT name, type, rootpage
		FROM sqlite_schema
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema catalog: %w", err)
	}
	defer rows.Close()

	cat := &Catalog{
		objects: make(map[string]*Object),
		byRoot:  make(map[int]*Object),
	}

	var objects []*Object
	for rows.Next() {
		var o Object
		var root sql.NullInt64
		if err := rows.Scan(&o.Name, &o.Type, &root); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		o.RootPage = int(root.Int64)
		objects = append(objects, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog: %w", err)
	}

	for _, o := range objects {
		if err := db.loadColumns(ctx, o); err != nil {
			return nil, err
		}
		cat.objects[strings.ToLower(o.Name)] = o
		if o.IsTable() && o.RootPage > 0 {
			cat.byRoot[o.RootPage] = o
		}
	}
	return cat, nil
}

func (db *DB) loadColumns(ctx context.Context, o *Object) error {
	// PRAGMA arguments cannot be bound; the identifier is quoted instead.
	quoted := strings.ReplaceAll(o.Name, `"`, `""`)
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, quoted))
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", o.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan column of %s: %w", o.Name, err)
		}
		col.NotNull = notNull != 0
		col.PK = pk != 0
		o.Columns = append(o.Columns, col)
	}
	return rows.Err()
}

// WriteTarget inspects the query plan of stmt and returns the name of the
// table it opens for writing, mapped back to the catalog by storage-page
// identity. This is more reliable than syntactic parsing when generated SQL
// wraps the target in expressions. Returns "" when introspection is
// unavailable or inconclusive; the caller falls back to the syntactic
// result.
func (db *DB) WriteTarget(ctx context.Context, cat *Catalog, stmt string, args ...any) string {
	rows, err := db.conn.QueryContext(ctx, "EXPLAIN "+stmt, args...)
	if err != nil {
		db.logger.Printf("plan introspection unavailable for statement: %v", err)
		return ""
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil || len(cols) < 3 {
		return ""
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ""
		}

		// Bytecode rows are (addr, opcode, p1, p2, p3, p4, p5, comment);
		// OpenWrite's p2 is the root page of the written b-tree.
		opcode, _ := values[1].(string)
		if opcode != "OpenWrite" {
			continue
		}
		page, ok := toInt(values[3])
		if !ok {
			continue
		}
		if o, ok := cat.ByRootPage(page); ok {
			return o.Name
		}
	}
	return ""
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
