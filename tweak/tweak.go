// Package tweak models independently authored configuration mutations and
// folds them into the small set of documents a restore transaction carries.
package tweak

import (
	"sort"

	"github.com/stepherg/gestaltmgr"
)

// Kind discriminates the closed set of tweak variants. The merge engine
// depends on knowing all of them exhaustively; do not add open-ended
// dispatch here.
type Kind int

const (
	// KindGestalt writes one value into the gestalt cache document.
	KindGestalt Kind = iota
	// KindGestaltPicker writes one value chosen from a fixed option list.
	KindGestaltPicker
	// KindGestaltMulti writes a burst of independent gestalt keys.
	KindGestaltMulti
	// KindFeatureFlag mutates the feature-flag document.
	KindFeatureFlag
	// KindFileSet produces complete file payloads, bypassing document merge.
	KindFileSet
)

func (k Kind) String() string {
	switch k {
	case KindGestalt:
		return "gestalt"
	case KindGestaltPicker:
		return "gestalt-picker"
	case KindGestaltMulti:
		return "gestalt-multi"
	case KindFeatureFlag:
		return "feature-flag"
	case KindFileSet:
		return "file-set"
	}
	return "unknown"
}

// File is a complete payload produced by a file-set tweak: contents plus a
// fully resolved destination.
type File struct {
	Contents []byte
	Path     string
	Name     string
}

// Tweak is one mutation unit. Only the fields relevant to its Kind are
// populated; Apply dispatches on Kind.
type Tweak struct {
	Name       string
	Label      string
	Kind       Kind
	MinVersion gestaltmgr.Version

	// Gestalt variants.
	Key    string
	Subkey string
	Value  interface{}

	// Picker variant: Options holds the candidate values, Selected indexes
	// into them.
	Options  []interface{}
	Selected int

	// Multi variant.
	KeyValues map[string]interface{}

	// Feature-flag variant. FlagList selects the {Enabled: bool} leaf form;
	// Inverted negates the enabled state on write.
	FlagCategory string
	FlagNames    []string
	FlagList     bool
	Inverted     bool

	// File-set variant: Produce yields the payloads. A nil producer yields
	// nothing.
	Produce func() []File

	Enabled bool
}

// SetEnabled sets the enabled state.
func (t *Tweak) SetEnabled(v bool) { t.Enabled = v }

// ToggleEnabled flips the enabled state.
func (t *Tweak) ToggleEnabled() { t.Enabled = !t.Enabled }

// SetValue updates the tweak value and enables the tweak.
func (t *Tweak) SetValue(v interface{}) {
	t.Value = v
	t.Enabled = true
}

// SelectOption picks a picker option by index and enables the tweak.
// Out-of-range indexes are ignored.
func (t *Tweak) SelectOption(i int) {
	if i < 0 || i >= len(t.Options) {
		return
	}
	t.Selected = i
	t.Enabled = true
}

// CompatibleWith reports whether the device version meets the tweak's
// minimum. Unknown device versions are treated as compatible.
func (t *Tweak) CompatibleWith(v gestaltmgr.Version) bool {
	if !v.Known() {
		return true
	}
	return v.AtLeast(t.MinVersion)
}

// applyGestalt folds a gestalt-targeting tweak into doc and returns it.
// Disabled tweaks pass the document through untouched.
func (t *Tweak) applyGestalt(doc map[string]interface{}) map[string]interface{} {
	if !t.Enabled {
		return doc
	}
	extra, ok := doc["CacheExtra"].(map[string]interface{})
	if !ok {
		extra = make(map[string]interface{})
		doc["CacheExtra"] = extra
	}
	switch t.Kind {
	case KindGestalt:
		setGestaltValue(extra, t.Key, t.Subkey, t.Value)
	case KindGestaltPicker:
		if t.Selected >= 0 && t.Selected < len(t.Options) {
			setGestaltValue(extra, t.Key, t.Subkey, t.Options[t.Selected])
		}
	case KindGestaltMulti:
		keys := make([]string, 0, len(t.KeyValues))
		for k := range t.KeyValues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			extra[k] = t.KeyValues[k]
		}
	}
	return doc
}

func setGestaltValue(extra map[string]interface{}, key, subkey string, value interface{}) {
	if subkey == "" {
		extra[key] = value
		return
	}
	nested, ok := extra[key].(map[string]interface{})
	if !ok {
		nested = make(map[string]interface{})
		extra[key] = nested
	}
	nested[subkey] = value
}

// applyFlags folds a feature-flag tweak into the flag document. Unlike the
// gestalt variants this always writes, because disabling an inverted flag
// still needs an explicit entry.
func (t *Tweak) applyFlags(doc map[string]interface{}) map[string]interface{} {
	enable := t.Enabled
	if t.Inverted {
		enable = !t.Enabled
	}
	category, ok := doc[t.FlagCategory].(map[string]interface{})
	if !ok {
		category = make(map[string]interface{})
		doc[t.FlagCategory] = category
	}
	for _, flag := range t.FlagNames {
		if t.FlagList {
			category[flag] = map[string]interface{}{"Enabled": enable}
		} else {
			category[flag] = enable
		}
	}
	return doc
}

// Files returns the payloads of a file-set tweak, or nil when disabled or
// without a producer.
func (t *Tweak) Files() []File {
	if !t.Enabled || t.Produce == nil {
		return nil
	}
	return t.Produce()
}
