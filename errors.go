package gestaltmgr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoDevice             = errors.New("no device selected")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceIneligible     = errors.New("device below minimum supported version")
	ErrDuplicateDestination = errors.New("duplicate restore destination")
	ErrGatewayUnavailable   = errors.New("gateway unavailable")
	ErrNotConnected         = errors.New("not connected")
)

// SessionError records a per-device session-open failure during a refresh.
// It never aborts the refresh; the remaining devices are still evaluated.
type SessionError struct {
	Serial string
	cause  error
}

func NewSessionError(serial string, cause error) *SessionError {
	return &SessionError{Serial: serial, cause: cause}
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session open failed for device %s: %v", e.Serial, e.cause)
}

func (e *SessionError) Unwrap() error { return e.cause }

// Category labels a terminal restore failure for user-facing reporting.
type Category string

const (
	// CategoryFindMy marks the known irrecoverable precondition: the
	// device's Find My protection is enabled. User-actionable, never retried.
	CategoryFindMy Category = "find_my_enabled"
	// CategoryUnknown marks every other restore-channel failure.
	CategoryUnknown Category = "unknown_restore_failure"
)

// findMyMarker is the substring the restore channel emits when Find My
// blocks the transaction. Substring matching is fragile but is the only
// signal the channel exposes today; revisit if it ever grows an error code.
const findMyMarker = "Find My"

const findMyRemediation = "Disable Find My from Settings (Settings -> [Your Name] -> Find My) and then try again."

// RestoreError is a classified terminal failure of a restore transaction.
// It carries a short category label plus the full underlying cause so
// callers can report both a headline and diagnostic detail.
type RestoreError struct {
	Category    Category
	Message     string
	Remediation string
	cause       error
}

func (e *RestoreError) Error() string {
	parts := []string{"restore failed", "category=" + string(e.Category)}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *RestoreError) Unwrap() error { return e.cause }

// ClassifyRestoreError folds an arbitrary channel error into the fixed
// failure taxonomy. Any message containing the Find My marker classifies as
// CategoryFindMy regardless of the rest of its content.
func ClassifyRestoreError(err error) *RestoreError {
	if err == nil {
		return nil
	}
	if re := (*RestoreError)(nil); errors.As(err, &re) {
		return re
	}
	if strings.Contains(err.Error(), findMyMarker) {
		return &RestoreError{
			Category:    CategoryFindMy,
			Message:     "Find My must be disabled in order to use this tool.",
			Remediation: findMyRemediation,
			cause:       err,
		}
	}
	return &RestoreError{
		Category: CategoryUnknown,
		Message:  err.Error(),
		cause:    err,
	}
}
