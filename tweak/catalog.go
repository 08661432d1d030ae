package tweak

import (
	"fmt"

	"github.com/stepherg/gestaltmgr"
)

// Catalog is an ordered collection of tweaks. Iteration order is insertion
// order, never map order: later document-patches observe earlier ones'
// output, so the fold must be deterministic.
type Catalog struct {
	order  []string
	byName map[string]*Tweak
}

func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]*Tweak)}
}

// Add appends a tweak. Duplicate names are rejected.
func (c *Catalog) Add(t *Tweak) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("catalog: tweak name required")
	}
	if _, exists := c.byName[t.Name]; exists {
		return fmt.Errorf("catalog: duplicate tweak %q", t.Name)
	}
	c.order = append(c.order, t.Name)
	c.byName[t.Name] = t
	return nil
}

// Replace swaps an existing tweak in place, keeping its catalog position,
// or appends when the name is new.
func (c *Catalog) Replace(t *Tweak) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("catalog: tweak name required")
	}
	if _, exists := c.byName[t.Name]; exists {
		c.byName[t.Name] = t
		return nil
	}
	return c.Add(t)
}

// Get looks a tweak up by name.
func (c *Catalog) Get(name string) (*Tweak, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Names returns tweak names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Tweaks returns the tweaks in catalog order.
func (c *Catalog) Tweaks() []*Tweak {
	out := make([]*Tweak, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Len reports the number of tweaks.
func (c *Catalog) Len() int { return len(c.order) }

func v(s string) gestaltmgr.Version { return gestaltmgr.ParseVersion(s) }

// DefaultCatalog returns the built-in tweak set. Entries are registered in
// the order users see them; that order is also the merge order.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	add := func(t *Tweak) {
		// names are unique by construction here
		_ = c.Add(t)
	}

	add(&Tweak{Name: "DynamicIsland", Label: "Toggle Dynamic Island", Kind: KindGestaltPicker,
		Key: "oPeik/9e8lQWMszEjbPzng", Subkey: "ArtworkDeviceSubType",
		Options: []interface{}{2436, 2556, 2796, 2976, 2622, 2868}, MinVersion: v("1.0")})
	add(&Tweak{Name: "ModelName", Label: "Set Device Model Name", Kind: KindGestalt,
		Key: "oPeik/9e8lQWMszEjbPzng", Subkey: "ArtworkDeviceProductDescription",
		Value: "", MinVersion: v("1.0")})
	add(&Tweak{Name: "BootChime", Label: "Toggle Boot Chime", Kind: KindGestalt,
		Key: "QHxt+hGLaBPbQJbXiUJX3w", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "ChargeLimit", Label: "Toggle Charge Limit", Kind: KindGestalt,
		Key: "37NVydb//GP/GrhuTN+exg", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "CollisionSOS", Label: "Toggle Collision SOS", Kind: KindGestalt,
		Key: "HCzWusHQwZDea6nNhaKndw", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "TapToWake", Label: "Toggle Tap To Wake (iPhone SE)", Kind: KindGestalt,
		Key: "yZf3GTRMGTuwSV/lD7Cagw", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "CameraButton", Label: "Toggle iPhone 16 Settings", Kind: KindGestaltMulti,
		KeyValues:  map[string]interface{}{"CwvKxM2cEogD3p+HYgaW0Q": 1, "oOV1jhJbdV3AddkcCg0AEA": 1},
		MinVersion: v("18.0")})
	add(&Tweak{Name: "Parallax", Label: "Disable Wallpaper Parallax", Kind: KindGestalt,
		Key: "UIParallaxCapability", Value: 0, MinVersion: v("1.0")})
	add(&Tweak{Name: "StageManager", Label: "Toggle Stage Manager Supported (WARNING: risky on some devices, mainly phones)",
		Kind: KindGestalt, Key: "qeaj75wk3HF4DwQ8qbIi7g", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "iPadApps", Label: "Allow iPad Apps on iPhone", Kind: KindGestalt,
		Key: "9MZ5AdH43csAUajl/dU+IQ", Value: []interface{}{1, 2}, MinVersion: v("1.0")})
	add(&Tweak{Name: "Shutter", Label: "Disable Region Restrictions (ie. Shutter Sound)", Kind: KindGestaltMulti,
		KeyValues:  map[string]interface{}{"h63QSdBCiT/z0WU6rdQv6Q": "US", "zHeENZu+wbg7PUprwNwBWg": "LL/A"},
		MinVersion: v("1.0")})
	add(&Tweak{Name: "Pencil", Label: "Toggle Apple Pencil", Kind: KindGestalt,
		Key: "yhHcB0iH0d1XzPO/CFd3ow", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "ActionButton", Label: "Toggle Action Button", Kind: KindGestalt,
		Key: "cT44WE1EohiwRzhsZ8xEsw", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "InternalStorage", Label: "Toggle Internal Storage (WARNING: risky for some devices, mainly iPads)",
		Kind: KindGestalt, Key: "LBJfwOEzExRxzlAnSuI7eg", Value: 1, MinVersion: v("1.0")})
	add(&Tweak{Name: "InternalInstall", Label: "Set as Apple Internal Install (ie Metal HUD in any app)",
		Kind: KindGestalt, Key: "EqrsVvjcYDdxHBiQmGhAWw", Value: 1, MinVersion: v("1.0")})
	// The region-eligibility payloads depend on per-device identifiers, so
	// the generator is supplied by the embedding caller via
	// Catalog.SetProducer. Without one the tweak contributes no files.
	add(&Tweak{Name: "EUEnabler", Label: "EU Enabler", Kind: KindFileSet, MinVersion: v("1.0")})
	add(&Tweak{Name: "AOD", Label: "Always On Display", Kind: KindGestaltMulti,
		KeyValues:  map[string]interface{}{"2OOJf1VhaM7NxfRok3HbWQ": 1, "j8/Omm6s1lsmTDFsXjsBfA": 1},
		MinVersion: v("18.0")})
	add(&Tweak{Name: "SleepApnea", Label: "Toggle Sleep Apnea (real) [for apple watches]", Kind: KindGestalt,
		Key: "e0HV2blYUDBk/MsMEQACNA", Value: 1, MinVersion: v("18.0")})
	add(&Tweak{Name: "ClockAnim", Label: "Toggle Lockscreen Clock Animation", Kind: KindFeatureFlag,
		FlagCategory: "SpringBoard", FlagNames: []string{"SwiftUITimeAnimation"},
		FlagList:     true, MinVersion: v("18.0")})
	add(&Tweak{Name: "Lockscreen", Label: "Toggle Duplicate Lockscreen Button and Lockscreen Quickswitch",
		Kind:         KindFeatureFlag,
		FlagCategory: "SpringBoard",
		FlagNames:    []string{"AutobahnQuickSwitchTransition", "SlipSwitch", "PosterEditorKashida"},
		FlagList:     true, MinVersion: v("18.0")})
	add(&Tweak{Name: "PhotoUI", Label: "Enable Old Photo UI", Kind: KindFeatureFlag,
		FlagCategory: "Photos", FlagNames: []string{"Lemonade"},
		FlagList:     false, Inverted: true, MinVersion: v("18.0")})
	add(&Tweak{Name: "AI", Label: "Enable Apple Intelligence", Kind: KindFeatureFlag,
		FlagCategory: "SpringBoard", FlagNames: []string{"Domino", "SuperDomino"},
		FlagList:     true, MinVersion: v("18.1")})

	return c
}

// SetProducer attaches a file producer to a file-set tweak.
func (c *Catalog) SetProducer(name string, produce func() []File) error {
	t, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("catalog: unknown tweak %q", name)
	}
	if t.Kind != KindFileSet {
		return fmt.Errorf("catalog: tweak %q is not a file-set tweak", name)
	}
	t.Produce = produce
	return nil
}
