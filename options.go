package gestaltmgr

// Options configures the tweak-application engine.
type Options struct {
	// MinVersion is the minimum OS version for which a gestalt document may
	// be carried in a transaction. Devices below it still accept flag and
	// file-set tweaks conceptually, but their gestalt snapshot is cleared.
	MinVersion Version

	// ApplyOverWiFi permits devices reachable only over Wi-Fi. When false,
	// discovery is filtered to USB-attached devices.
	ApplyOverWiFi bool

	// Destination of the feature-flag document. Protocol-level contract
	// with the device OS; do not change.
	FlagPath string
	FlagName string

	// Destination of the gestalt cache document. Protocol-level contract
	// with the device OS; do not change.
	GestaltPath string
	GestaltName string

	// CatalogDir optionally points at a directory of YAML tweak
	// definitions layered over the built-in catalog.
	CatalogDir string
}

// DefaultOptions gives the baseline configuration matching current device
// OS expectations.
func DefaultOptions() Options {
	return Options{
		MinVersion:    ParseVersion("17"),
		ApplyOverWiFi: true,
		FlagPath:      "/var/preferences/FeatureFlags/",
		FlagName:      "Global.plist",
		GestaltPath:   "/var/containers/Shared/SystemGroup/systemgroup.com.apple.mobilegestaltcache/Library/Caches/",
		GestaltName:   "com.apple.MobileGestalt.plist",
	}
}
