package restore

import (
	"context"
	"log/slog"

	"github.com/stepherg/gestaltmgr"
)

// Stage labels shown to the user at each checkpoint.
const (
	labelApplying  = "Applying changes to files..."
	labelBackup    = "Generating backup..."
	labelRestoring = "Restoring to device..."
	labelSuccess   = "Success!"
	labelFailed    = "Failed to restore"
)

// machine is the per-invocation stage tracker. Transitions only advance;
// no stage is ever re-entered.
type machine struct {
	stage    gestaltmgr.Stage
	progress gestaltmgr.ProgressFunc
}

func newMachine(progress gestaltmgr.ProgressFunc) *machine {
	if progress == nil {
		progress = gestaltmgr.NopProgress
	}
	return &machine{stage: gestaltmgr.StageIdle, progress: progress}
}

func (m *machine) to(stage gestaltmgr.Stage, label string) {
	if stage <= m.stage {
		return
	}
	m.stage = stage
	m.progress(stage, label)
}

// Orchestrator submits built transactions to the restore channel and
// classifies the outcome. It holds no per-transaction state between
// invocations; each Apply runs a fresh stage machine.
type Orchestrator struct {
	channel Channel
	logger  *slog.Logger
}

func NewOrchestrator(channel Channel, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{channel: channel, logger: logger}
}

// Apply submits the transaction over the device session. Progress is
// notified at the three fixed checkpoints, then either the terminal success
// label or the failure label. The channel call blocks for the duration of
// the transfer; there is no mid-transaction cancellation and no retry. On
// failure the device is left however the channel left it, and the error is
// surfaced classified, never retried.
func (o *Orchestrator) Apply(ctx context.Context, tx *Transaction, session gestaltmgr.Session, progress gestaltmgr.ProgressFunc) error {
	m := newMachine(progress)
	m.to(gestaltmgr.StageApplying, labelApplying)
	m.to(gestaltmgr.StageGeneratingBackup, labelBackup)
	m.to(gestaltmgr.StageRestoring, labelRestoring)

	o.logger.Info("submitting restore transaction",
		"transaction", tx.ID, "files", len(tx.Files), "reboot", tx.Reboot,
		"serial", session.Serial())

	if err := o.channel.Restore(ctx, tx.Files, tx.Reboot, session); err != nil {
		classified := gestaltmgr.ClassifyRestoreError(err)
		o.logger.Error("restore transaction failed",
			"transaction", tx.ID, "category", string(classified.Category), "err", err)
		m.to(gestaltmgr.StageFailed, labelFailed)
		return classified
	}

	// The device reboots on its own once the channel reports completion;
	// nothing further to wait on here.
	o.logger.Info("restore transaction complete", "transaction", tx.ID)
	m.to(gestaltmgr.StageSuccess, labelSuccess)
	return nil
}
