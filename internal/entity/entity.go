// Package entity defines the row types that mirror one relational tuple per
// text-backed entity kind, plus the positional fields shared by all of them.
//
// Rows are plain value types. They are produced by the forward indexer, stored
// in the relational engine, and handed back to the write path by the entity
// handlers. Nothing in this package touches the database or the filesystem.
package entity

// Kind identifies the closed set of entity kinds the write path understands.
type Kind int

const (
	KindTask Kind = iota
	KindHeading
	KindListItem
	KindTableCell
	KindProperty
	KindContent
)

// String returns the relational-facing name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindHeading:
		return "heading"
	case KindListItem:
		return "list item"
	case KindTableCell:
		return "table cell"
	case KindProperty:
		return "property"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// NewEntityLine marks a row that has no prior text location and must be
// inserted, never located.
const NewEntityLine = -1

// Pos carries the positional hints shared by all text-backed rows.
//
// LineNumber is 1-based; NewEntityLine (-1) means the row is brand new.
// StartOffset/EndOffset are byte offsets from the last known-good location;
// a negative StartOffset means "unset". BlockID is an explicit anchor token
// (without the leading caret). AnchorHash is the content fingerprint computed
// by AnchorHash over the line's 3-line context.
type Pos struct {
	Path        string
	LineNumber  int
	BlockID     string
	StartOffset int
	EndOffset   int
	AnchorHash  string
}

// NoPos returns an "unset" position for the given path: new-entity line
// number and invalid offsets, so the locator will refuse to locate it.
func NoPos(path string) Pos {
	return Pos{Path: path, LineNumber: NewEntityLine, StartOffset: -1, EndOffset: -1}
}

// HasOffsets reports whether StartOffset/EndOffset describe a plausible range.
// The locator still validates the range against the actual document length.
func (p Pos) HasOffsets() bool {
	return p.StartOffset >= 0 && p.EndOffset > p.StartOffset
}

// Row is implemented by every locatable entity row.
type Row interface {
	Kind() Kind
	Position() Pos
}

// Task mirrors one row of the tasks table. Date fields hold calendar dates
// as YYYY-MM-DD strings; empty string means unset.
type Task struct {
	Pos

	Text      string
	Status    string // the character inside the checkbox brackets
	Checked   bool
	Created   string
	Scheduled string
	Start     string
	Due       string
	Done      string
	Cancelled string

	Recurrence   string
	OnCompletion string
	TaskID       string
	DependsOn    []string
	Priority     string // lowest, low, normal, medium, high, highest
	Tags         []string

	Indent     string // leading whitespace of the source line
	ListMarker string // "-", "*", "+", or a numbered marker like "3."
}

func (t Task) Kind() Kind    { return KindTask }
func (t Task) Position() Pos { return t.Pos }

// Heading mirrors one row of the headings table.
type Heading struct {
	Pos

	Text  string
	Level int // 1..6
}

func (h Heading) Kind() Kind    { return KindHeading }
func (h Heading) Position() Pos { return h.Pos }

// ListItem mirrors one row of the list_items table. Ordered items carry a
// numbered marker ("1.", "2)"), unordered a bullet character.
type ListItem struct {
	Pos

	Text    string
	Indent  string
	Marker  string
	Ordered bool
}

func (l ListItem) Kind() Kind    { return KindListItem }
func (l ListItem) Position() Pos { return l.Pos }

// TableCell mirrors one cell of a Markdown table. Cells are grouped by
// (Path, TableIndex) into whole-table rewrites by the table planner, so the
// per-cell position is the position of the table block, not of the cell.
type TableCell struct {
	Pos

	TableIndex int
	RowIndex   int // 0-based data row, header excluded
	Column     string
	Value      string
}

func (c TableCell) Kind() Kind    { return KindTableCell }
func (c TableCell) Position() Pos { return c.Pos }

// Property is a frontmatter key/value pair. Properties are not located by
// byte range; they are applied as structured frontmatter mutations.
type Property struct {
	Path  string
	Key   string
	Value any
}

func (p Property) Kind() Kind    { return KindProperty }
func (p Property) Position() Pos { return NoPos(p.Path) }

// Content is a whole-note content row (path plus full text). Used for the
// notes relation where the "edit" is a file create, rewrite or delete.
type Content struct {
	Path  string
	Title string
	Text  string
}

func (c Content) Kind() Kind    { return KindContent }
func (c Content) Position() Pos { return NoPos(c.Path) }
