package gestaltmgr

import "context"

// Device is one reachable device as assembled during a registry refresh.
// The registry owns the session for the device's lifetime; the session is
// closed when the list is replaced on the next refresh.
type Device struct {
	UUID    string
	Name    string
	Version string
	Model   string
	Locale  string
	Session Session
}

// LockdownInfo carries the identification values reported by a device when a
// session is opened.
type LockdownInfo struct {
	DeviceName     string
	ProductVersion string
	ProductType    string
	Locale         string
	AllValues      map[string]interface{}
}

// Session is an opaque handle to an open communication channel with one
// device. Implementations live behind SessionOpener; the engine only
// forwards the handle to the restore channel.
type Session interface {
	Serial() string
	Info() LockdownInfo
	Close() error
}

// DiscoveredDevice is the raw discovery record before a session is opened.
type DiscoveredDevice struct {
	Serial string
	USB    bool
}

// Discovery enumerates currently reachable devices.
type Discovery interface {
	ListDevices(ctx context.Context) ([]DiscoveredDevice, error)
}

// SessionOpener establishes a session with a discovered device.
type SessionOpener interface {
	OpenSession(ctx context.Context, serial string) (Session, error)
}

// Stage identifies a checkpoint of a restore transaction. Stages advance in
// declaration order and are never re-entered within one invocation.
type Stage int

const (
	StageIdle Stage = iota
	StageApplying
	StageGeneratingBackup
	StageRestoring
	StageSuccess
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageApplying:
		return "applying"
	case StageGeneratingBackup:
		return "generating_backup"
	case StageRestoring:
		return "restoring"
	case StageSuccess:
		return "success"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// ProgressFunc receives stage checkpoints with their user-facing labels.
// Notifications are observational only; implementations must not block.
type ProgressFunc func(stage Stage, label string)

// NopProgress discards progress notifications.
func NopProgress(Stage, string) {}
