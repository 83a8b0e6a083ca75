package recorder

import (
	"os"
	"testing"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

func strptr(s string) *string { return &s }

func TestApplyNoopWhenClosedAndNotWanted(t *testing.T) {
	r := New("s1", t.TempDir())
	saved, err := r.Apply(core.MomentState{}, VideoCodecParams{})
	if err != nil || saved != nil {
		t.Fatalf("expected no-op, got saved=%v err=%v", saved, err)
	}
	if r.IsOpen() {
		t.Errorf("recorder should remain closed")
	}
}

func TestApplyOpensOnFirstWantedMoment(t *testing.T) {
	root := t.TempDir()
	r := New("s1", root)

	desired := core.MomentState{ShouldWriteMoment: true, CurrentMomentID: strptr("m1")}
	if _, err := r.Apply(desired, VideoCodecParams{Width: 640, Height: 480}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !r.IsOpen() {
		t.Fatalf("recorder should be open after a wanted moment with an id")
	}
	if r.CurrentMomentID() != "m1" {
		t.Errorf("CurrentMomentID = %q, want m1", r.CurrentMomentID())
	}
}

func TestApplyCloseFinalizeEmitsClipSaved(t *testing.T) {
	root := t.TempDir()
	r := New("s1", root)

	open := core.MomentState{ShouldWriteMoment: true, CurrentMomentID: strptr("m1")}
	if _, err := r.Apply(open, VideoCodecParams{Width: 640, Height: 480}); err != nil {
		t.Fatalf("open Apply failed: %v", err)
	}
	if err := r.Append([]byte{0xFF, 0xD8}, true); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	close := core.MomentState{ShouldWriteMoment: false}
	saved, err := r.Apply(close, VideoCodecParams{})
	if err != nil {
		t.Fatalf("close Apply failed: %v", err)
	}
	if saved == nil || saved.MomentID != "m1" {
		t.Fatalf("expected a ClipSaved for m1, got %v", saved)
	}
	if _, statErr := os.Stat(saved.ClipPath); statErr != nil {
		t.Errorf("finalized clip should exist on disk: %v", statErr)
	}
	if r.IsOpen() {
		t.Errorf("recorder should be closed after close-finalize")
	}
}

func TestApplyCloseDiscardEmitsNoClipAndDeletesFile(t *testing.T) {
	root := t.TempDir()
	r := New("s1", root)

	open := core.MomentState{ShouldWriteMoment: true, CurrentMomentID: strptr("m1")}
	if _, err := r.Apply(open, VideoCodecParams{Width: 640, Height: 480}); err != nil {
		t.Fatalf("open Apply failed: %v", err)
	}
	path := r.recording.Path

	discard := core.MomentState{ShouldWriteMoment: false, DiscardPreviousMaybeMoment: true}
	saved, err := r.Apply(discard, VideoCodecParams{})
	if err != nil {
		t.Fatalf("discard Apply failed: %v", err)
	}
	if saved != nil {
		t.Errorf("discard should never emit a ClipSaved, got %v", saved)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Errorf("discarded file should be removed from disk")
	}
}

func TestApplySwitchesMomentIDClosesThenOpens(t *testing.T) {
	root := t.TempDir()
	r := New("s1", root)

	if _, err := r.Apply(core.MomentState{ShouldWriteMoment: true, CurrentMomentID: strptr("m1")}, VideoCodecParams{Width: 640, Height: 480}); err != nil {
		t.Fatalf("open m1 failed: %v", err)
	}

	saved, err := r.Apply(core.MomentState{ShouldWriteMoment: true, CurrentMomentID: strptr("m2")}, VideoCodecParams{Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("switch to m2 failed: %v", err)
	}
	if saved == nil || saved.MomentID != "m1" {
		t.Fatalf("expected m1 to be finalized on switch, got %v", saved)
	}
	if r.CurrentMomentID() != "m2" {
		t.Errorf("CurrentMomentID after switch = %q, want m2", r.CurrentMomentID())
	}
}
