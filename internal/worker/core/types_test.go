package core

import "testing"

func TestMomentStateMergePartialUpdate(t *testing.T) {
	id1 := "m1"
	base := MomentState{ShouldWriteMoment: true, CurrentMomentID: &id1, DiscardPreviousMaybeMoment: false}

	// A patch that only touches discard_previous_maybe_moment must leave
	// the other two fields untouched (spec.md §4.6: tolerant to partial
	// updates).
	discard := true
	patched := base.Merge(MomentStatePatch{DiscardPreviousMaybeMoment: &discard})

	if !patched.ShouldWriteMoment {
		t.Errorf("ShouldWriteMoment changed by unrelated patch")
	}
	if patched.CurrentMomentID == nil || *patched.CurrentMomentID != id1 {
		t.Errorf("CurrentMomentID changed by unrelated patch")
	}
	if !patched.DiscardPreviousMaybeMoment {
		t.Errorf("DiscardPreviousMaybeMoment not applied")
	}
}

func TestMomentStateMergeExplicitNullID(t *testing.T) {
	id1 := "m1"
	base := MomentState{ShouldWriteMoment: true, CurrentMomentID: &id1}

	patched := base.Merge(MomentStatePatch{CurrentMomentIDSet: true, CurrentMomentID: nil})
	if patched.CurrentMomentID != nil {
		t.Errorf("explicit null current_moment_id should clear the field, got %v", *patched.CurrentMomentID)
	}
}

func TestMomentStateMergeOmittedFieldPreserved(t *testing.T) {
	id1 := "m1"
	base := MomentState{ShouldWriteMoment: true, CurrentMomentID: &id1}

	// CurrentMomentIDSet left false means "field omitted", distinct from
	// an explicit null.
	patched := base.Merge(MomentStatePatch{})
	if patched.CurrentMomentID == nil || *patched.CurrentMomentID != id1 {
		t.Errorf("omitted current_moment_id should preserve existing value")
	}
}
