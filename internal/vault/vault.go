// Package vault is the host file I/O collaborator: it reads and writes the
// plain-text documents of one vault directory, resolves explicit block
// anchors to byte ranges, and knows how to rewrite frontmatter in place.
package vault

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bobstanton/vaultquery/internal/locate"
)

// ErrNotFound reports that a document does not exist in the vault.
var ErrNotFound = errors.New("document not found")

// trashDir is where deleted documents are moved before being given up on.
const trashDir = ".trash"

// FS is a vault rooted at a directory on the local filesystem. Paths are
// vault-relative, slash-separated, and confined to the root.
type FS struct {
	root   string
	logger *log.Logger
}

// Open returns a vault rooted at dir. The directory must exist.
func Open(dir string, logger *log.Logger) (*FS, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[vault] ", log.LstdFlags)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", dir)
	}
	return &FS{root: dir, logger: logger}, nil
}

// Root returns the vault's root directory.
func (v *FS) Root() string { return v.root }

// abs resolves a vault-relative path, refusing to escape the root.
func (v *FS) abs(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes the vault", path)
	}
	return filepath.Join(v.root, clean), nil
}

// ReadText returns the document's full text, or ErrNotFound.
func (v *FS) ReadText(path string) (string, error) {
	abs, err := v.abs(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteText replaces the document's text. The document must already exist;
// use CreateText for new documents.
func (v *FS) WriteText(path, text string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err := os.WriteFile(abs, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// CreateText creates a new document with the given initial text, creating
// parent directories as needed. Fails if the document already exists.
func (v *FS) CreateText(path, text string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("document %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// TrashOrDelete moves the document into the vault's trash directory,
// falling back to plain deletion when the move fails.
func (v *FS) TrashOrDelete(path string) error {
	abs, err := v.abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	trashed := filepath.Join(v.root, trashDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(trashed), 0755); err == nil {
		if err := os.Rename(abs, trashed); err == nil {
			return nil
		}
	}

	v.logger.Printf("trash unavailable for %s, deleting instead", path)
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

var blockAnchorRe = regexp.MustCompile(`\s\^([A-Za-z0-9-]+)\s*$`)

// ResolveBlockAnchor finds the line carrying the explicit anchor token in
// the document and returns its byte range (without the line terminator).
// Implements locate.AnchorResolver.
func (v *FS) ResolveBlockAnchor(path, token string) (locate.Range, bool) {
	text, err := v.ReadText(path)
	if err != nil {
		return locate.Range{}, false
	}
	return FindBlockAnchor(text, token)
}

// FindBlockAnchor scans text for a line ending in ^token.
func FindBlockAnchor(text, token string) (locate.Range, bool) {
	token = strings.TrimPrefix(token, "^")
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		if m := blockAnchorRe.FindStringSubmatch(trimmed); m != nil && m[1] == token {
			return locate.Range{Start: offset, End: offset + len(trimmed)}, true
		}
		offset += len(line)
	}
	return locate.Range{}, false
}

// Walk calls fn for every markdown document in the vault, passing the
// vault-relative slash path. The trash directory and dotfiles are skipped.
func (v *FS) Walk(fn func(path string) error) error {
	return filepath.Walk(v.root, func(abs string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(v.root, abs)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			base := filepath.Base(abs)
			if rel != "." && (strings.HasPrefix(base, ".") || base == trashDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") || strings.HasPrefix(filepath.Base(abs), ".") {
			return nil
		}
		return fn(rel)
	})
}
