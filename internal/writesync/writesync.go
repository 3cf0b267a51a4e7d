// Package writesync drives a relational mutation preview back into the
// vault's documents: it converts the preview into entity-specific edit
// plans, merges them per document, applies the final edits through the host
// file I/O, and reports the affected document paths.
//
// Edit application is not transactional across documents. Each document is
// applied independently in one read-modify-write cycle against the freshest
// text; a failure on one document does not roll back documents already
// written. This is a deliberate at-least-once, best-effort multi-file write:
// successes are reported in the affected path list, the rest as warnings.
package writesync

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bobstanton/vaultquery/internal/engine"
	"github.com/bobstanton/vaultquery/internal/entity"
	"github.com/bobstanton/vaultquery/internal/handler"
	"github.com/bobstanton/vaultquery/internal/locate"
	"github.com/bobstanton/vaultquery/internal/plan"
	"github.com/bobstanton/vaultquery/internal/preview"
	"github.com/bobstanton/vaultquery/internal/vault"
)

// Store is the host file I/O collaborator the orchestrator writes through.
// Satisfied by *vault.FS.
type Store interface {
	ReadText(path string) (string, error)
	WriteText(path, text string) error
	CreateText(path, text string) error
	TrashOrDelete(path string) error
	ResolveBlockAnchor(path, token string) (locate.Range, bool)
}

// Result reports the outcome of applying one preview.
type Result struct {
	AffectedPaths []string
	Warnings      []string
	Stats         plan.Stats
}

// Syncer converts previews into edit plans and applies them.
type Syncer struct {
	db      *engine.DB
	store   Store
	reg     *handler.Registry
	planner *plan.Planner
	logger  *log.Logger
}

// Config adjusts a Syncer beyond its defaults.
type Config struct {
	// FuzzyThreshold overrides the locator's fuzzy-match acceptance score
	// (0 keeps the default).
	FuzzyThreshold float64
	// Logger for orchestration activity; nil means stderr.
	Logger *log.Logger
}

// New returns a Syncer writing through store against db.
func New(db *engine.DB, store Store, cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[writesync] ", log.LstdFlags)
	}
	loc := locate.New(store)
	if cfg.FuzzyThreshold > 0 {
		loc.SetFuzzyThreshold(cfg.FuzzyThreshold)
	}
	return &Syncer{
		db:      db,
		store:   store,
		reg:     handler.NewRegistry(),
		planner: plan.NewPlanner(loc),
		logger:  logger,
	}
}

// Registry exposes the table-to-kind registry for callers that extend the
// schema.
func (s *Syncer) Registry() *handler.Registry { return s.reg }

// Plan converts a preview into the edit plan that Apply would carry out,
// without touching any file. Useful for display; Apply re-plans from fresh
// text rather than consuming this plan.
func (s *Syncer) Plan(p *preview.Preview) (*plan.EditPlan, error) {
	batch, err := handler.Convert(p, s.reg)
	if err != nil {
		return nil, err
	}

	out := &plan.EditPlan{Warnings: batch.Warnings}
	s.planFileOps(batch, out)
	for _, path := range batch.Paths() {
		if hasFileOp(batch, path) {
			continue
		}
		text, err := s.store.ReadText(path)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("cannot plan edits for %s: %v", path, err))
			continue
		}
		list := s.planDocument(batch, path, text)
		out.Edits = append(out.Edits, list.Edits...)
		out.Warnings = append(out.Warnings, list.Warnings...)
	}
	tally(out)
	return out, nil
}

// Apply commits the preview's statements to the relational engine, then
// synchronizes the textual representation document by document. Returns the
// paths whose files were changed; per-file failures become warnings, not
// errors.
func (s *Syncer) Apply(ctx context.Context, p *preview.Preview) (*Result, error) {
	batch, err := handler.Convert(p, s.reg)
	if err != nil {
		return nil, err
	}

	// Commit the relational side first, inside the advisory lock. The
	// preview rolled its scope back; applying means running the statements
	// for real.
	scope, err := s.db.BeginScope(ctx)
	if err != nil {
		return nil, err
	}
	for _, stmt := range p.Statements() {
		if _, err := scope.Exec(ctx, stmt, p.Params...); err != nil {
			if rbErr := scope.Rollback(ctx); rbErr != nil {
				s.logger.Printf("Warning: failed to unwind apply scope: %v", rbErr)
			}
			return nil, fmt.Errorf("failed to apply statement: %w", err)
		}
	}
	if err := scope.Release(ctx); err != nil {
		return nil, err
	}

	res := &Result{Warnings: batch.Warnings}

	// File-level operations first: creations, whole-note rewrites,
	// deletions.
	s.applyFileOps(batch, res)

	// Then per-document range and frontmatter edits, each document in one
	// read-modify-write cycle against its freshest text.
	for _, path := range batch.Paths() {
		if hasFileOp(batch, path) {
			continue
		}
		text, err := s.store.ReadText(path)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot read %s: %v", path, err))
			continue
		}

		list := s.planDocument(batch, path, text)
		res.Warnings = append(res.Warnings, list.Warnings...)

		updated, warnings := applyDocumentEdits(text, list.Edits)
		res.Warnings = append(res.Warnings, warnings...)
		if updated == text {
			continue
		}
		if err := s.store.WriteText(path, updated); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot write %s: %v", path, err))
			continue
		}
		res.AffectedPaths = append(res.AffectedPaths, path)
		countEdits(&res.Stats, list.Edits)
	}
	return res, nil
}

// planDocument builds the merged edit list for one document: per-kind plans
// combined in fixed priority order (table, heading, task, list item), plus
// the document's structured frontmatter and link edits.
func (s *Syncer) planDocument(batch *handler.Batch, path, text string) plan.EditList {
	doc := plan.Doc{Path: path, Text: text}

	merged := plan.Merge(
		s.planner.Tables(doc, filterCells(batch.CellUpserts, path), filterCells(batch.CellDeletes, path)),
		s.planner.Headings(doc, filterHeadings(batch.HeadingUpserts, path), filterHeadings(batch.HeadingDeletes, path)),
		s.planner.Tasks(doc, filterTasks(batch.TaskUpserts, path), filterTasks(batch.TaskDeletes, path)),
		s.planner.ListItems(doc, filterItems(batch.ListItemUpserts, path), filterItems(batch.ListItemDeletes, path)),
		s.planLinks(doc, batch),
	)

	for _, prop := range batch.PropertySets {
		if prop.Path == path {
			merged.Edits = append(merged.Edits, plan.Edit{
				Kind: plan.SetProperty, Path: path, Key: prop.Key, Value: prop.Value,
				Reason: "set property " + prop.Key,
			})
		}
	}
	for _, prop := range batch.PropertyDeletes {
		if prop.Path == path {
			merged.Edits = append(merged.Edits, plan.Edit{
				Kind: plan.DeleteProperty, Path: path, Key: prop.Key,
				Reason: "delete property " + prop.Key,
			})
		}
	}

	if edit, ok := s.planTagEdit(path, text, batch); ok {
		merged.Edits = append(merged.Edits, edit)
	}
	return merged
}

// planTagEdit folds tag additions and removals for one document into a
// single frontmatter tags-list update.
func (s *Syncer) planTagEdit(path, text string, batch *handler.Batch) (plan.Edit, bool) {
	var adds, removes []string
	for _, t := range batch.TagAdds {
		if t.Path == path {
			adds = append(adds, strings.TrimPrefix(t.Tag, "#"))
		}
	}
	for _, t := range batch.TagRemoves {
		if t.Path == path {
			removes = append(removes, strings.TrimPrefix(t.Tag, "#"))
		}
	}
	if len(adds) == 0 && len(removes) == 0 {
		return plan.Edit{}, false
	}

	fm, err := vault.ParseFrontmatter(text)
	var tags []string
	if err == nil {
		tags = fm.Tags()
	}
	for _, r := range removes {
		for i, t := range tags {
			if t == r {
				tags = append(tags[:i], tags[i+1:]...)
				break
			}
		}
	}
	for _, a := range adds {
		if !contains(tags, a) {
			tags = append(tags, a)
		}
	}
	return plan.Edit{
		Kind: plan.SetProperty, Path: path, Key: "tags", Value: tags,
		Reason: "update tags",
	}, true
}

// planLinks turns link additions into an appended wiki-link line and link
// removals into a located deletion of the first matching occurrence.
func (s *Syncer) planLinks(doc plan.Doc, batch *handler.Batch) plan.EditList {
	var out plan.EditList
	for _, l := range batch.LinkAdds {
		if l.Path != doc.Path {
			continue
		}
		at := len(doc.Text)
		line := "[[" + l.Target + "]]"
		text := line + "\n"
		if at > 0 && !strings.HasSuffix(doc.Text, "\n") {
			text = "\n" + line
		}
		out.Edits = append(out.Edits, plan.Edit{
			Kind: plan.ReplaceRange, Path: doc.Path,
			Range: locate.Range{Start: at, End: at},
			Text:  text, Reason: "add link to " + l.Target,
		})
	}
	for _, l := range batch.LinkRemoves {
		if l.Path != doc.Path {
			continue
		}
		needle := "[[" + l.Target + "]]"
		i := strings.Index(doc.Text, needle)
		if i < 0 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("cannot remove link %s from %s: link not found", needle, doc.Path))
			continue
		}
		r := locate.Range{Start: i, End: i + len(needle)}
		// Take the whole line when the link is all that's on it.
		lineStart, lineEnd := lineBounds(doc.Text, i)
		if strings.TrimSpace(doc.Text[lineStart:r.Start])+strings.TrimSpace(doc.Text[r.End:lineEnd]) == "" {
			r.Start, r.End = lineStart, lineEnd
			if r.End < len(doc.Text) && doc.Text[r.End] == '\n' {
				r.End++
			}
		}
		out.Edits = append(out.Edits, plan.Edit{
			Kind: plan.ReplaceRange, Path: doc.Path, Range: r,
			Reason: "remove link to " + l.Target,
		})
	}
	return out
}

// planFileOps mirrors applyFileOps for the dry-run plan.
func (s *Syncer) planFileOps(batch *handler.Batch, out *plan.EditPlan) {
	for _, c := range batch.ContentCreates {
		out.Edits = append(out.Edits, plan.Edit{Kind: plan.CreateFile, Path: c.Path, Text: c.Text, Reason: "create note"})
	}
	for _, c := range batch.ContentSets {
		out.Edits = append(out.Edits, plan.Edit{Kind: plan.SetContent, Path: c.Path, Text: c.Text, Reason: "rewrite note content"})
	}
	for _, path := range batch.ContentDeletes {
		out.Edits = append(out.Edits, plan.Edit{Kind: plan.DeleteFile, Path: path, Reason: "delete note"})
	}
}

func (s *Syncer) applyFileOps(batch *handler.Batch, res *Result) {
	for _, c := range batch.ContentCreates {
		if err := s.store.CreateText(c.Path, c.Text); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot create %s: %v", c.Path, err))
			continue
		}
		res.AffectedPaths = append(res.AffectedPaths, c.Path)
	}
	for _, c := range batch.ContentSets {
		if err := s.store.WriteText(c.Path, c.Text); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot rewrite %s: %v", c.Path, err))
			continue
		}
		res.AffectedPaths = append(res.AffectedPaths, c.Path)
	}
	for _, path := range batch.ContentDeletes {
		if err := s.store.TrashOrDelete(path); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot delete %s: %v", path, err))
			continue
		}
		res.AffectedPaths = append(res.AffectedPaths, path)
	}
}

// applyDocumentEdits runs one document's edits against its text: range
// edits first (already sorted descending and disjoint by Merge), then
// frontmatter mutations on the result.
func applyDocumentEdits(text string, edits []plan.Edit) (string, []string) {
	var warnings []string
	text = plan.ApplyRangeEdits(text, edits)
	for _, e := range edits {
		var (
			updated string
			err     error
		)
		switch e.Kind {
		case plan.SetProperty:
			updated, err = vault.SetProperty(text, e.Key, e.Value)
		case plan.DeleteProperty:
			updated, err = vault.DeleteProperty(text, e.Key)
		default:
			continue
		}
		// A failed frontmatter edit must leave the document as it was.
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("frontmatter edit failed on %s: %v", e.Path, err))
			continue
		}
		text = updated
	}
	return text, warnings
}

func hasFileOp(batch *handler.Batch, path string) bool {
	for _, c := range batch.ContentCreates {
		if c.Path == path {
			return true
		}
	}
	for _, c := range batch.ContentSets {
		if c.Path == path {
			return true
		}
	}
	for _, p := range batch.ContentDeletes {
		if p == path {
			return true
		}
	}
	return false
}

func lineBounds(text string, at int) (int, int) {
	start := strings.LastIndexByte(text[:at], '\n') + 1
	end := strings.IndexByte(text[at:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += at
	}
	return start, end
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func filterTasks(rows []entity.Task, path string) []entity.Task {
	var out []entity.Task
	for _, r := range rows {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func filterHeadings(rows []entity.Heading, path string) []entity.Heading {
	var out []entity.Heading
	for _, r := range rows {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func filterItems(rows []entity.ListItem, path string) []entity.ListItem {
	var out []entity.ListItem
	for _, r := range rows {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func filterCells(rows []entity.TableCell, path string) []entity.TableCell {
	var out []entity.TableCell
	for _, r := range rows {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func countEdits(stats *plan.Stats, edits []plan.Edit) {
	for _, e := range edits {
		switch {
		case e.Kind == plan.ReplaceRange && e.Range.Len() == 0:
			stats.Inserts++
		case e.Kind == plan.ReplaceRange && e.Text == "":
			stats.Deletes++
		case e.Kind == plan.ReplaceRange:
			stats.Replacements++
		default:
			stats.Replacements++
		}
	}
}

func tally(p *plan.EditPlan) {
	countEdits(&p.Stats, p.Edits)
}
