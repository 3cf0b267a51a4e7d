package vault

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FrontmatterStyle is the fence/serialization style of a document's
// frontmatter block.
type FrontmatterStyle int

const (
	StyleNone FrontmatterStyle = iota
	StyleYAML                  // --- fences
	StyleTOML                  // +++ fences
)

// Frontmatter is a parsed frontmatter block plus the body that follows it.
// YAML blocks are kept as a yaml.Node tree so key order and comments survive
// a rewrite; TOML blocks are decoded to a map and re-encoded on render.
type Frontmatter struct {
	Style FrontmatterStyle
	Body  string

	yamlDoc *yaml.Node
	tomlMap map[string]any
}

// ParseFrontmatter splits a document into frontmatter and body. A document
// without a leading fence gets StyleNone and an empty block that renders as
// YAML once a key is set.
func ParseFrontmatter(text string) (*Frontmatter, error) {
	style, block, body := splitFrontmatter(text)

	fm := &Frontmatter{Style: style, Body: body}
	switch style {
	case StyleYAML:
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
		}
		fm.yamlDoc = &doc
	case StyleTOML:
		fm.tomlMap = make(map[string]any)
		if err := toml.Unmarshal([]byte(block), &fm.tomlMap); err != nil {
			return nil, fmt.Errorf("failed to parse TOML frontmatter: %w", err)
		}
	}
	return fm, nil
}

func splitFrontmatter(text string) (FrontmatterStyle, string, string) {
	for _, f := range []struct {
		fence string
		style FrontmatterStyle
	}{
		{"---", StyleYAML},
		{"+++", StyleTOML},
	} {
		open := f.fence + "\n"
		if !strings.HasPrefix(text, open) {
			continue
		}
		rest := text[len(open):]
		closeFence := "\n" + f.fence
		i := strings.Index(rest, closeFence)
		if i < 0 {
			continue
		}
		block := rest[:i+1]
		body := rest[i+len(closeFence):]
		body = strings.TrimPrefix(body, "\n")
		return f.style, block, body
	}
	return StyleNone, "", text
}

// Get returns the decoded value for key.
func (f *Frontmatter) Get(key string) (any, bool) {
	switch f.Style {
	case StyleYAML:
		if node := f.findYAMLValue(key); node != nil {
			var v any
			if err := node.Decode(&v); err == nil {
				return v, true
			}
		}
	case StyleTOML:
		v, ok := f.tomlMap[key]
		return v, ok
	}
	return nil, false
}

// Set sets key to value, appending the key when new. A StyleNone document
// becomes YAML.
func (f *Frontmatter) Set(key string, value any) error {
	switch f.Style {
	case StyleTOML:
		f.tomlMap[key] = value
		return nil
	case StyleNone:
		f.Style = StyleYAML
		f.yamlDoc = &yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
		fallthrough
	default:
		var vn yaml.Node
		if err := vn.Encode(value); err != nil {
			return fmt.Errorf("failed to encode value for %s: %w", key, err)
		}
		mapping := f.yamlMapping()
		if mapping == nil {
			return fmt.Errorf("frontmatter is not a key-value mapping")
		}
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				mapping.Content[i+1] = &vn
				return nil
			}
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&vn,
		)
		return nil
	}
}

// Delete removes key. Reports whether the key was present.
func (f *Frontmatter) Delete(key string) bool {
	switch f.Style {
	case StyleTOML:
		_, ok := f.tomlMap[key]
		delete(f.tomlMap, key)
		return ok
	case StyleYAML:
		mapping := f.yamlMapping()
		if mapping == nil {
			return false
		}
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
				return true
			}
		}
	}
	return false
}

// Keys returns every top-level key, in declaration order for YAML and
// sorted order for TOML.
func (f *Frontmatter) Keys() []string {
	switch f.Style {
	case StyleYAML:
		mapping := f.yamlMapping()
		if mapping == nil {
			return nil
		}
		var keys []string
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			keys = append(keys, mapping.Content[i].Value)
		}
		return keys
	case StyleTOML:
		keys := make([]string, 0, len(f.tomlMap))
		for k := range f.tomlMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

// Tags returns the frontmatter tags list, tolerating both a list and a
// single scalar.
func (f *Frontmatter) Tags() []string {
	v, ok := f.Get("tags")
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		var tags []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	case []string:
		return t
	case string:
		return []string{t}
	default:
		return nil
	}
}

// Render reassembles the full document text.
func (f *Frontmatter) Render() (string, error) {
	switch f.Style {
	case StyleNone:
		return f.Body, nil
	case StyleYAML:
		out, err := yaml.Marshal(f.yamlDoc)
		if err != nil {
			return "", fmt.Errorf("failed to render YAML frontmatter: %w", err)
		}
		block := string(out)
		if f.yamlMapping() == nil || len(f.yamlMapping().Content) == 0 {
			return f.Body, nil
		}
		return "---\n" + block + "---\n" + f.Body, nil
	case StyleTOML:
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(f.tomlMap); err != nil {
			return "", fmt.Errorf("failed to render TOML frontmatter: %w", err)
		}
		if len(f.tomlMap) == 0 {
			return f.Body, nil
		}
		block := b.String()
		if !strings.HasSuffix(block, "\n") {
			block += "\n"
		}
		return "+++\n" + block + "+++\n" + f.Body, nil
	}
	return f.Body, nil
}

func (f *Frontmatter) yamlMapping() *yaml.Node {
	if f.yamlDoc == nil {
		return nil
	}
	node := f.yamlDoc
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			node.Content = []*yaml.Node{{Kind: yaml.MappingNode}}
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}

func (f *Frontmatter) findYAMLValue(key string) *yaml.Node {
	mapping := f.yamlMapping()
	if mapping == nil {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// SetProperty rewrites text with the frontmatter key set to value.
func SetProperty(text, key string, value any) (string, error) {
	fm, err := ParseFrontmatter(text)
	if err != nil {
		return "", err
	}
	if err := fm.Set(key, value); err != nil {
		return "", err
	}
	return fm.Render()
}

// DeleteProperty rewrites text with the frontmatter key removed. Returns the
// input unchanged when the key was absent.
func DeleteProperty(text, key string) (string, error) {
	fm, err := ParseFrontmatter(text)
	if err != nil {
		return "", err
	}
	if !fm.Delete(key) {
		return text, nil
	}
	return fm.Render()
}
