package gestaltmgr

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyFindMy(t *testing.T) {
	err := errors.New("device refused restore: Find My is enabled on this device")
	re := ClassifyRestoreError(err)
	if re.Category != CategoryFindMy {
		t.Fatalf("expected CategoryFindMy, got %s", re.Category)
	}
	if re.Remediation == "" {
		t.Fatalf("Find My classification must carry remediation instructions")
	}
	if !errors.Is(re, err) {
		t.Fatalf("classified error must unwrap to the cause")
	}
}

func TestClassifyUnknown(t *testing.T) {
	err := errors.New("device disconnected mid transfer")
	re := ClassifyRestoreError(err)
	if re.Category != CategoryUnknown {
		t.Fatalf("expected CategoryUnknown, got %s", re.Category)
	}
	if !strings.Contains(re.Error(), "unknown_restore_failure") {
		t.Fatalf("error string must carry the category label: %s", re.Error())
	}
}

func TestClassifyIdempotent(t *testing.T) {
	re := ClassifyRestoreError(errors.New("Find My blocked it"))
	again := ClassifyRestoreError(re)
	if again != re {
		t.Fatalf("classifying an already classified error must be a no-op")
	}
}

func TestClassifyNil(t *testing.T) {
	if re := ClassifyRestoreError(nil); re != nil {
		t.Fatalf("nil error should classify to nil, got %v", re)
	}
}
