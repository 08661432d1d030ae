package gestaltmgr

import (
	"strconv"
	"strings"
)

// Version is a dotted numeric ordinal parsed from a device's reported OS
// version string. Comparison is component-wise numeric, never lexical:
// 17.10 sorts above 17.2.
type Version struct {
	parts []int
	raw   string
}

// ParseVersion parses a dotted version string. Parsing stops at the first
// component that is not a plain integer, so "17.4.1 beta" truncates to the
// numeric prefix rather than failing.
func ParseVersion(s string) Version {
	trimmed := strings.TrimSpace(s)
	v := Version{raw: trimmed}
	if trimmed == "" {
		return v
	}
	for _, comp := range strings.Split(trimmed, ".") {
		n, err := strconv.Atoi(strings.TrimSpace(comp))
		if err != nil {
			break
		}
		v.parts = append(v.parts, n)
	}
	return v
}

// Compare returns -1, 0, or 1. Missing components compare as zero, so
// 17 == 17.0 and 17.0.1 > 17.
func (v Version) Compare(o Version) int {
	n := len(v.parts)
	if len(o.parts) > n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		a, b := 0, 0
		if i < len(v.parts) {
			a = v.parts[i]
		}
		if i < len(o.parts) {
			b = o.parts[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool { return v.Compare(o) >= 0 }

// Known reports whether at least one numeric component was parsed.
func (v Version) Known() bool { return len(v.parts) > 0 }

func (v Version) String() string { return v.raw }
