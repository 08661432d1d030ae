package tweak

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stepherg/gestaltmgr"
)

// Definition describes a tweak loaded from an on-disk YAML file. The schema
// is intentionally narrow so definitions can be validated before they are
// wired into the catalog.
type Definition struct {
	Name       string `yaml:"name"`
	Label      string `yaml:"label,omitempty"`
	Kind       string `yaml:"kind"`
	MinVersion string `yaml:"minVersion,omitempty"`

	Key    string      `yaml:"key,omitempty"`
	Subkey string      `yaml:"subkey,omitempty"`
	Value  interface{} `yaml:"value,omitempty"`

	Options []interface{} `yaml:"options,omitempty"`

	KeyValues map[string]interface{} `yaml:"keyValues,omitempty"`

	FlagCategory string   `yaml:"flagCategory,omitempty"`
	FlagNames    []string `yaml:"flagNames,omitempty"`
	FlagList     *bool    `yaml:"flagList,omitempty"`
	Inverted     bool     `yaml:"inverted,omitempty"`
}

// DefinitionFile pairs a parsed definition with its on-disk source.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

var definitionKinds = map[string]Kind{
	"gestalt":        KindGestalt,
	"gestalt-picker": KindGestaltPicker,
	"gestalt-multi":  KindGestaltMulti,
	"feature-flag":   KindFeatureFlag,
}

// Validate checks structural requirements for the definition's kind.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tweak definition: name required")
	}
	kind, ok := definitionKinds[strings.TrimSpace(d.Kind)]
	if !ok {
		return fmt.Errorf("tweak definition %q: unknown kind %q", d.Name, d.Kind)
	}
	switch kind {
	case KindGestalt:
		if strings.TrimSpace(d.Key) == "" {
			return fmt.Errorf("tweak definition %q: key required", d.Name)
		}
	case KindGestaltPicker:
		if strings.TrimSpace(d.Key) == "" {
			return fmt.Errorf("tweak definition %q: key required", d.Name)
		}
		if len(d.Options) == 0 {
			return fmt.Errorf("tweak definition %q: options required", d.Name)
		}
	case KindGestaltMulti:
		if len(d.KeyValues) == 0 {
			return fmt.Errorf("tweak definition %q: keyValues required", d.Name)
		}
	case KindFeatureFlag:
		if strings.TrimSpace(d.FlagCategory) == "" || len(d.FlagNames) == 0 {
			return fmt.Errorf("tweak definition %q: flagCategory and flagNames required", d.Name)
		}
	}
	return nil
}

// Normalized returns a whitespace-trimmed copy.
func (d Definition) Normalized() Definition {
	d.Name = strings.TrimSpace(d.Name)
	d.Label = strings.TrimSpace(d.Label)
	d.Kind = strings.TrimSpace(d.Kind)
	d.MinVersion = strings.TrimSpace(d.MinVersion)
	d.Key = strings.TrimSpace(d.Key)
	d.Subkey = strings.TrimSpace(d.Subkey)
	d.FlagCategory = strings.TrimSpace(d.FlagCategory)
	if len(d.FlagNames) > 0 {
		names := make([]string, 0, len(d.FlagNames))
		for _, n := range d.FlagNames {
			if t := strings.TrimSpace(n); t != "" {
				names = append(names, t)
			}
		}
		d.FlagNames = names
	}
	return d
}

// Tweak converts a validated definition into a catalog tweak.
func (d Definition) Tweak() *Tweak {
	t := &Tweak{
		Name:       d.Name,
		Label:      d.Label,
		Kind:       definitionKinds[d.Kind],
		MinVersion: gestaltmgr.ParseVersion(d.MinVersion),
		Key:        d.Key,
		Subkey:     d.Subkey,
		Value:      d.Value,
		Options:    d.Options,
		KeyValues:  d.KeyValues,

		FlagCategory: d.FlagCategory,
		FlagNames:    d.FlagNames,
		FlagList:     true,
		Inverted:     d.Inverted,
	}
	if d.FlagList != nil {
		t.FlagList = *d.FlagList
	}
	if t.Kind == KindGestalt && t.Value == nil {
		t.Value = 1
	}
	return t
}

// ParseDefinitionYAML decodes and validates a single definition payload.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("tweak definition: payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("tweak definition: decode: %w", err)
	}
	def = def.Normalized()
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitionFile reads one YAML definition from disk.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("tweak definition: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("tweak definition: %s: %w", path, err)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir scans a directory for *.yaml tweak definitions. The
// result is sorted by path so catalog extension order is deterministic.
// A missing directory means "no definitions".
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tweak definition: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

// Extend layers definitions over the catalog: known names are replaced in
// place, new names are appended.
func (c *Catalog) Extend(defs []DefinitionFile) error {
	for _, df := range defs {
		if err := c.Replace(df.Definition.Tweak()); err != nil {
			return fmt.Errorf("%s: %w", df.Path, err)
		}
	}
	return nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
