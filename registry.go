package gestaltmgr

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"howett.net/plist"
)

// gestaltKeyProductType is the obfuscated MobileGestalt cache key holding
// the device's product type, used to sanity-check user-supplied snapshots.
const gestaltKeyProductType = "qNNddlUK+B/YlooNoymwgA"

// Notice reports a non-fatal per-device failure observed during a refresh.
type Notice struct {
	Serial string
	Err    error
}

// Registry holds the currently reachable devices and the single current
// selection. It owns every device session until the next refresh replaces
// the list.
//
// The registry performs no internal locking: Refresh and Select must be
// serialized by the caller against each other and against any in-flight
// transaction using the current selection.
type Registry struct {
	discovery Discovery
	opener    SessionOpener
	opts      Options
	logger    *slog.Logger

	devices      []Device
	current      int // index into devices, -1 when nothing selected
	eligible     bool
	snapshotPath string
}

// NewRegistry builds a registry over the supplied discovery and session
// capabilities. logger may be nil.
func NewRegistry(discovery Discovery, opener SessionOpener, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		discovery: discovery,
		opener:    opener,
		opts:      opts,
		logger:    logger,
		current:   -1,
	}
}

// Refresh replaces the device list wholesale. Devices are filtered to
// USB-attached ones unless ApplyOverWiFi is set. A session-open failure on
// one device is surfaced as a Notice and skipped; the refresh continues.
// If at least one device was opened, index 0 becomes current; otherwise the
// selection is cleared.
func (r *Registry) Refresh(ctx context.Context) ([]Notice, error) {
	discovered, err := r.discovery.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	r.closeSessions()
	r.devices = r.devices[:0]

	var notices []Notice
	for _, d := range discovered {
		if !d.USB && !r.opts.ApplyOverWiFi {
			continue
		}
		sess, err := r.opener.OpenSession(ctx, d.Serial)
		if err != nil {
			serr := NewSessionError(d.Serial, err)
			r.logger.Warn("skipping device: session open failed",
				"serial", d.Serial, "err", err)
			notices = append(notices, Notice{Serial: d.Serial, Err: serr})
			continue
		}
		info := sess.Info()
		r.devices = append(r.devices, Device{
			UUID:    d.Serial,
			Name:    info.DeviceName,
			Version: info.ProductVersion,
			Model:   info.ProductType,
			Locale:  info.Locale,
			Session: sess,
		})
	}

	if len(r.devices) > 0 {
		r.Select(0)
	} else {
		r.Select(-1)
	}
	return notices, nil
}

// Select sets the current device and recomputes eligibility. An out-of-range
// index clears the selection. Selecting an ineligible or absent device also
// clears the gestalt snapshot reference.
func (r *Registry) Select(index int) {
	if index < 0 || index >= len(r.devices) {
		r.current = -1
		r.eligible = false
		r.snapshotPath = ""
		return
	}
	r.current = index
	dev := r.devices[index]
	r.eligible = ParseVersion(dev.Version).AtLeast(r.opts.MinVersion)
	if !r.eligible {
		r.snapshotPath = ""
	}
}

// Devices returns the current device list.
func (r *Registry) Devices() []Device { return r.devices }

// Current returns the selected device, if any.
func (r *Registry) Current() (Device, bool) {
	if r.current < 0 || r.current >= len(r.devices) {
		return Device{}, false
	}
	return r.devices[r.current], true
}

// CurrentIndex returns the selection index, or -1.
func (r *Registry) CurrentIndex() int { return r.current }

// Eligible reports whether the current device meets the minimum version.
func (r *Registry) Eligible() bool { return r.eligible }

// CurrentName returns the selected device's name, or the "No Device"
// placeholder. Never fails.
func (r *Registry) CurrentName() string {
	dev, ok := r.Current()
	if !ok {
		return "No Device"
	}
	return dev.Name
}

// CurrentVersion returns the selected device's version string, or "".
func (r *Registry) CurrentVersion() string {
	dev, ok := r.Current()
	if !ok {
		return ""
	}
	return dev.Version
}

// CurrentUUID returns the selected device's serial, or "".
func (r *Registry) CurrentUUID() string {
	dev, ok := r.Current()
	if !ok {
		return ""
	}
	return dev.UUID
}

// SetGestaltSnapshot records the path of a gestalt cache snapshot for the
// current device. Ignored when no eligible device is selected.
func (r *Registry) SetGestaltSnapshot(path string) error {
	if _, ok := r.Current(); !ok {
		return ErrNoDevice
	}
	if !r.eligible {
		return ErrDeviceIneligible
	}
	r.snapshotPath = path
	return nil
}

// GestaltSnapshot returns the recorded snapshot path, or "".
func (r *Registry) GestaltSnapshot() string { return r.snapshotPath }

// SnapshotMatchesDevice reports whether the snapshot at path was captured
// from the same product type as the current device. Callers may still use a
// mismatched snapshot after confirmation; this only feeds that decision.
func (r *Registry) SnapshotMatchesDevice(path string) (bool, error) {
	dev, ok := r.Current()
	if !ok {
		return false, ErrNoDevice
	}
	doc, err := loadPlist(path)
	if err != nil {
		return false, err
	}
	extra, ok := doc["CacheExtra"].(map[string]interface{})
	if !ok {
		return false, nil
	}
	model, _ := extra[gestaltKeyProductType].(string)
	return model == dev.Model, nil
}

// LoadGestalt decodes the recorded snapshot. A registry with no snapshot
// returns (nil, nil): an absent gestalt document is a valid state, and
// document-patch tweaks are simply skipped downstream.
func (r *Registry) LoadGestalt() (map[string]interface{}, error) {
	if r.snapshotPath == "" {
		return nil, nil
	}
	return loadPlist(r.snapshotPath)
}

// Close releases all device sessions and clears the selection.
func (r *Registry) Close() {
	r.closeSessions()
	r.devices = nil
	r.Select(-1)
}

func (r *Registry) closeSessions() {
	for _, d := range r.devices {
		if d.Session == nil {
			continue
		}
		if err := d.Session.Close(); err != nil {
			r.logger.Debug("session close failed", "serial", d.UUID, "err", err)
		}
	}
}

func loadPlist(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}
