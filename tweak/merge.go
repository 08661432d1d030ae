package tweak

// Result is the output of a merge: the two documents plus any standalone
// file payloads. Gestalt is nil when no base document was supplied.
type Result struct {
	Flags   map[string]interface{}
	Gestalt map[string]interface{}
	Files   []File
}

// Merge folds the catalog's tweaks into output documents.
//
// The fold runs in catalog order over a single accumulator per document:
// tweaks targeting different documents are independent, but tweaks sharing a
// document must see each other's effects. Feature-flag tweaks always run
// over an initially empty flag document. Gestalt tweaks run only when a base
// document was supplied; with base == nil they are skipped silently, which
// is the expected state for devices below the minimum version and for the
// reset path. File-set tweaks run with no document input and append to the
// file accumulator in catalog order.
//
// With reset set, no tweaks are applied at all: the flag document stays
// empty and the base document passes through unchanged.
func Merge(c *Catalog, base map[string]interface{}, reset bool) Result {
	res := Result{
		Flags:   make(map[string]interface{}),
		Gestalt: base,
	}
	if reset {
		return res
	}
	for _, t := range c.Tweaks() {
		switch t.Kind {
		case KindFeatureFlag:
			res.Flags = t.applyFlags(res.Flags)
		case KindFileSet:
			res.Files = append(res.Files, t.Files()...)
		default:
			if res.Gestalt != nil {
				res.Gestalt = t.applyGestalt(res.Gestalt)
			}
		}
	}
	return res
}
