// Package restore assembles merged documents into ordered restore
// transactions and drives the external restore channel.
package restore

import (
	"context"

	"github.com/stepherg/gestaltmgr"
)

// FileToRestore is one fully resolved payload: byte content plus its
// destination directory and filename on the device.
type FileToRestore struct {
	Contents []byte
	Path     string
	Name     string
}

// Transaction is an ordered payload list plus the reboot directive. Built
// fresh per invocation, never persisted, discarded after submission.
type Transaction struct {
	ID     string
	Files  []FileToRestore
	Reboot bool
}

// Channel is the external restore capability. The wire protocol behind it is
// not owned by this engine.
type Channel interface {
	Restore(ctx context.Context, files []FileToRestore, reboot bool, session gestaltmgr.Session) error
}
