package restore

import (
	"context"
	"errors"
	"testing"

	"github.com/stepherg/gestaltmgr"
)

type stubSession struct{ serial string }

func (s stubSession) Serial() string { return s.serial }
func (s stubSession) Info() gestaltmgr.LockdownInfo {
	return gestaltmgr.LockdownInfo{}
}
func (s stubSession) Close() error { return nil }

type stubChannel struct {
	err   error
	files []FileToRestore
	calls int
}

func (c *stubChannel) Restore(_ context.Context, files []FileToRestore, reboot bool, _ gestaltmgr.Session) error {
	c.calls++
	c.files = files
	return c.err
}

type progressRecorder struct {
	stages []gestaltmgr.Stage
	labels []string
}

func (p *progressRecorder) record(stage gestaltmgr.Stage, label string) {
	p.stages = append(p.stages, stage)
	p.labels = append(p.labels, label)
}

func TestApplyEmitsCheckpointsInOrder(t *testing.T) {
	ch := &stubChannel{}
	o := NewOrchestrator(ch, nil)
	rec := &progressRecorder{}

	tx := BuildReset(gestaltmgr.DefaultOptions())
	if err := o.Apply(context.Background(), tx, stubSession{serial: "aaa"}, rec.record); err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := []gestaltmgr.Stage{
		gestaltmgr.StageApplying,
		gestaltmgr.StageGeneratingBackup,
		gestaltmgr.StageRestoring,
		gestaltmgr.StageSuccess,
	}
	if len(rec.stages) != len(want) {
		t.Fatalf("expected %d checkpoints, got %v", len(want), rec.stages)
	}
	for i, s := range want {
		if rec.stages[i] != s {
			t.Fatalf("checkpoint %d = %v, want %v", i, rec.stages[i], s)
		}
	}
	if rec.labels[0] != "Applying changes to files..." {
		t.Fatalf("unexpected first label %q", rec.labels[0])
	}
	if rec.labels[len(rec.labels)-1] != "Success!" {
		t.Fatalf("terminal success label missing, got %q", rec.labels[len(rec.labels)-1])
	}
	if ch.calls != 1 {
		t.Fatalf("channel must be called exactly once, got %d", ch.calls)
	}
}

func TestApplyClassifiesFindMyFailure(t *testing.T) {
	ch := &stubChannel{err: errors.New("backup rejected: Find My is on")}
	o := NewOrchestrator(ch, nil)
	rec := &progressRecorder{}

	tx := BuildReset(gestaltmgr.DefaultOptions())
	err := o.Apply(context.Background(), tx, stubSession{}, rec.record)
	if err == nil {
		t.Fatalf("expected failure")
	}
	var re *gestaltmgr.RestoreError
	if !errors.As(err, &re) || re.Category != gestaltmgr.CategoryFindMy {
		t.Fatalf("expected Find My classification, got %v", err)
	}
	if re.Remediation == "" {
		t.Fatalf("Find My failure must carry remediation instructions")
	}
	if rec.stages[len(rec.stages)-1] != gestaltmgr.StageFailed {
		t.Fatalf("terminal stage must be failed, got %v", rec.stages)
	}
	if ch.calls != 1 {
		t.Fatalf("failures must not be retried, channel called %d times", ch.calls)
	}
}

func TestApplyClassifiesUnknownFailure(t *testing.T) {
	ch := &stubChannel{err: errors.New("device vanished")}
	o := NewOrchestrator(ch, nil)

	tx := BuildReset(gestaltmgr.DefaultOptions())
	err := o.Apply(context.Background(), tx, stubSession{}, nil)
	var re *gestaltmgr.RestoreError
	if !errors.As(err, &re) || re.Category != gestaltmgr.CategoryUnknown {
		t.Fatalf("expected unknown classification, got %v", err)
	}
}

func TestApplyForwardsPayloadList(t *testing.T) {
	ch := &stubChannel{}
	o := NewOrchestrator(ch, nil)

	tx := BuildReset(gestaltmgr.DefaultOptions())
	if err := o.Apply(context.Background(), tx, stubSession{}, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(ch.files) != 1 || ch.files[0].Name != "com.apple.MobileGestalt.plist" {
		t.Fatalf("payloads not forwarded as built: %+v", ch.files)
	}
}
