package vault

import (
	"strings"
	"testing"
)

const yamlDoc = `---
title: Groceries
status: open
tags:
  - errand
  - home
---
# Groceries

- [ ] Buy milk
`

const tomlDoc = `+++
title = "Groceries"
status = "open"
+++
# Groceries
`

func TestParseFrontmatter_Styles(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantStyle FrontmatterStyle
		wantBody  string
	}{
		{"yaml", yamlDoc, StyleYAML, "# Groceries\n\n- [ ] Buy milk\n"},
		{"toml", tomlDoc, StyleTOML, "# Groceries\n"},
		{"none", "# Plain\n", StyleNone, "# Plain\n"},
		{"unterminated fence is body", "---\ntitle: x\n# no close", StyleNone, "---\ntitle: x\n# no close"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, err := ParseFrontmatter(tt.text)
			if err != nil {
				t.Fatalf("ParseFrontmatter() error = %v", err)
			}
			if fm.Style != tt.wantStyle {
				t.Errorf("Style = %v, want %v", fm.Style, tt.wantStyle)
			}
			if fm.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", fm.Body, tt.wantBody)
			}
		})
	}
}

func TestFrontmatter_GetKeysTags(t *testing.T) {
	fm, err := ParseFrontmatter(yamlDoc)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := fm.Get("title"); !ok || v != "Groceries" {
		t.Errorf("Get(title) = %v, %v", v, ok)
	}
	if _, ok := fm.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}

	keys := fm.Keys()
	if len(keys) != 3 || keys[0] != "title" || keys[1] != "status" || keys[2] != "tags" {
		t.Errorf("Keys() = %v, want declaration order", keys)
	}

	tags := fm.Tags()
	if len(tags) != 2 || tags[0] != "errand" || tags[1] != "home" {
		t.Errorf("Tags() = %v", tags)
	}
}

func TestSetProperty_PreservesKeyOrder(t *testing.T) {
	got, err := SetProperty(yamlDoc, "status", "done")
	if err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}

	if !strings.Contains(got, "status: done") {
		t.Errorf("status not updated:\n%s", got)
	}
	// Existing keys keep their order; the body is untouched.
	title := strings.Index(got, "title:")
	status := strings.Index(got, "status:")
	tags := strings.Index(got, "tags:")
	if !(title < status && status < tags) {
		t.Errorf("key order changed:\n%s", got)
	}
	if !strings.Contains(got, "# Groceries\n\n- [ ] Buy milk\n") {
		t.Errorf("body disturbed:\n%s", got)
	}
}

func TestSetProperty_AppendsNewKey(t *testing.T) {
	got, err := SetProperty(yamlDoc, "priority", "high")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "priority: high") {
		t.Errorf("new key missing:\n%s", got)
	}
	if strings.Index(got, "priority:") < strings.Index(got, "tags:") {
		t.Errorf("new key should be appended after existing keys:\n%s", got)
	}
}

func TestSetProperty_PromotesPlainDocument(t *testing.T) {
	got, err := SetProperty("# Plain\n", "status", "open")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "---\n") || !strings.Contains(got, "status: open") {
		t.Errorf("plain document should gain a YAML block:\n%s", got)
	}
	if !strings.Contains(got, "# Plain\n") {
		t.Errorf("body lost:\n%s", got)
	}
}

func TestSetProperty_TOML(t *testing.T) {
	got, err := SetProperty(tomlDoc, "status", "done")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "+++\n") {
		t.Errorf("TOML fences lost:\n%s", got)
	}
	if !strings.Contains(got, `status = "done"`) {
		t.Errorf("status not updated:\n%s", got)
	}
}

func TestDeleteProperty(t *testing.T) {
	got, err := DeleteProperty(yamlDoc, "status")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "status:") {
		t.Errorf("key not removed:\n%s", got)
	}

	unchanged, err := DeleteProperty(yamlDoc, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if unchanged != yamlDoc {
		t.Error("deleting an absent key must leave the text unchanged")
	}
}
