package worker

import (
	"testing"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

func TestStateSnapshotDefaultsToZeroValue(t *testing.T) {
	s := NewState()
	got := s.Snapshot("unknown-stream")
	if got.ShouldWriteMoment || got.CurrentMomentID != nil {
		t.Errorf("snapshot of unset stream id should be the zero value, got %+v", got)
	}
}

func TestStateApplyPatchUpsertsAndRemove(t *testing.T) {
	s := NewState()
	should := true
	id := "m1"

	s.ApplyPatch("s1", core.MomentStatePatch{ShouldWriteMoment: &should, CurrentMomentID: &id, CurrentMomentIDSet: true})
	got := s.Snapshot("s1")
	if !got.ShouldWriteMoment || got.CurrentMomentID == nil || *got.CurrentMomentID != id {
		t.Fatalf("unexpected snapshot after upsert: %+v", got)
	}

	s.Remove("s1")
	got = s.Snapshot("s1")
	if got.ShouldWriteMoment {
		t.Errorf("entry should be gone after Remove, got %+v", got)
	}
}
