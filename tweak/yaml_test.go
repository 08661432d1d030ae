package tweak

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(`
name: CustomChime
label: Custom Boot Chime
kind: gestalt
key: QHxt+hGLaBPbQJbXiUJX3w
value: 1
minVersion: "17.0"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tw := def.Tweak()
	if tw.Kind != KindGestalt || tw.Key != "QHxt+hGLaBPbQJbXiUJX3w" {
		t.Fatalf("unexpected tweak: %+v", tw)
	}
}

func TestParseDefinitionYAMLValidation(t *testing.T) {
	cases := map[string]string{
		"empty payload":   "",
		"missing name":    "kind: gestalt\nkey: k\n",
		"unknown kind":    "name: x\nkind: bogus\n",
		"picker no opts":  "name: x\nkind: gestalt-picker\nkey: k\n",
		"flag no names":   "name: x\nkind: feature-flag\nflagCategory: SB\n",
		"multi no values": "name: x\nkind: gestalt-multi\n",
	}
	for label, payload := range cases {
		if _, err := ParseDefinitionYAML([]byte(payload)); err == nil {
			t.Errorf("%s: expected validation error", label)
		}
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	writeDef := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeDef("20-second.yaml", "name: Second\nkind: gestalt\nkey: kb\n")
	writeDef("10-first.yaml", "name: First\nkind: gestalt\nkey: ka\n")
	writeDef("ignored.txt", "not yaml")

	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Definition.Name != "First" || defs[1].Definition.Name != "Second" {
		t.Fatalf("definitions must load in path order: %+v", defs)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || defs != nil {
		t.Fatalf("missing dir must be a no-op, got %v %v", defs, err)
	}
	if defs, err := LoadDefinitionDir(""); err != nil || defs != nil {
		t.Fatalf("empty dir must be a no-op, got %v %v", defs, err)
	}
}

func TestCatalogExtendOverridesInPlace(t *testing.T) {
	c := DefaultCatalog()
	before := c.Names()

	defs := []DefinitionFile{
		{Definition: Definition{Name: "BootChime", Kind: "gestalt", Key: "replaced"}.Normalized(), Path: "a.yaml"},
		{Definition: Definition{Name: "Brand New", Kind: "gestalt", Key: "k"}.Normalized(), Path: "b.yaml"},
	}
	for _, d := range defs {
		if err := d.Definition.Validate(); err != nil {
			t.Fatalf("fixture invalid: %v", err)
		}
	}
	if err := c.Extend(defs); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if c.Len() != len(before)+1 {
		t.Fatalf("expected one appended tweak")
	}
	bc, _ := c.Get("BootChime")
	if bc.Key != "replaced" {
		t.Fatalf("override did not take effect")
	}
	if names := c.Names(); names[len(names)-1] != "Brand New" {
		t.Fatalf("new definitions must append: %v", names)
	}
}
