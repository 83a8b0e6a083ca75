// Package recorder implements the moment-recording state machine: a
// single open-or-closed container writer per stream, driven by
// per-packet inspection of command-channel state.
//
// The container format is Matroska (not the restricted WebM profile):
// a single video track carrying MJPEG packets, timebase 1/1000. Header
// and track setup mirror the teacher's webm.NewSimpleBlockWriter idiom,
// generalized from the mkvcore package directly so a non-WebM codec id
// (V_MJPEG) is legal.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"

	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

// State tags the recorder's two states. Represented as a sum type (a tag
// plus the payload only valid in the open state), not a class hierarchy.
type State int

const (
	Closed State = iota
	Open
)

// VideoCodecParams describes the encoder context the recorder copies
// codec parameters from when opening a new container.
type VideoCodecParams struct {
	Width, Height int
	ExtraData     []byte // encoder-specific config, copied verbatim
}

// Recording is the open-state payload: output_id, opened-at timestamp,
// the container handle, and the wall-clock start time set on the first
// written packet.
type Recording struct {
	OutputID   string
	OpenedAtMs int64
	Path       string
	streamIdx  uint64
	writer     mkvcore.BlockWriteCloser
	closer     func() error
	startWall  *time.Time // nil until first Append
}

// Recorder is the per-stream moment recorder. It is exclusively owned by
// the stream driver; no other goroutine touches it.
type Recorder struct {
	streamID string
	saveRoot string
	logger   *slog.Logger

	state     State
	recording *Recording
}

// New creates a closed recorder for one stream.
func New(streamID, saveRoot string) *Recorder {
	return &Recorder{
		streamID: streamID,
		saveRoot: saveRoot,
		logger:   util.WithStream(streamID),
		state:    Closed,
	}
}

// IsOpen reports whether a recording is currently open.
func (r *Recorder) IsOpen() bool { return r.state == Open }

// CurrentMomentID returns the output_id of the open recording, or "" if
// none is open.
func (r *Recorder) CurrentMomentID() string {
	if r.recording == nil {
		return ""
	}
	return r.recording.OutputID
}

// ClipSaved is returned by Apply when a moment finalized successfully.
type ClipSaved struct {
	MomentID string
	ClipPath string
}

// Apply runs one state-machine step against the desired moment state
// (spec.md table in §4.3). codec carries the parameters needed to open a
// new container; it is only read when an open is actually required.
func (r *Recorder) Apply(desired core.MomentState, codec VideoCodecParams) (*ClipSaved, error) {
	switch r.state {
	case Closed:
		if !desired.ShouldWriteMoment {
			return nil, nil
		}
		if desired.CurrentMomentID == nil {
			return nil, nil
		}
		return nil, r.open(*desired.CurrentMomentID, codec)

	case Open:
		if desired.ShouldWriteMoment {
			if desired.CurrentMomentID != nil && *desired.CurrentMomentID == r.recording.OutputID {
				return nil, nil // append path handled by caller per-packet
			}
			// different id: close-finalize the old one, open the new one
			saved, err := r.closeFinalize()
			if err != nil {
				r.logger.Error("close-finalize during moment switch failed", "error", err)
			}
			if desired.CurrentMomentID != nil {
				if openErr := r.open(*desired.CurrentMomentID, codec); openErr != nil {
					return saved, openErr
				}
			}
			return saved, nil
		}

		// should_write_moment went false: close, discard or finalize
		if desired.DiscardPreviousMaybeMoment {
			r.closeDiscard()
			return nil, nil
		}
		saved, err := r.closeFinalize()
		return saved, err
	}
	return nil, nil
}

// Append writes a clone of the encoded packet to the currently open
// recording. Callers must clone before calling Append (I1 in spec.md:
// the recorder never receives the bytes that were also published
// downstream by reference).
func (r *Recorder) Append(encoded []byte, keyframe bool) error {
	if r.state != Open {
		return nil
	}
	now := time.Now()
	if r.recording.startWall == nil {
		r.recording.startWall = &now
	}
	elapsedMs := now.Sub(*r.recording.startWall).Milliseconds()

	if _, err := r.recording.writer.Write(keyframe, elapsedMs, encoded); err != nil {
		r.logger.Error("moment append failed", "moment_id", r.recording.OutputID, "error", err)
		return fmt.Errorf("moment append: %w", err)
	}
	return nil
}

// CloseOnLoopExit performs a final close-finalize with no ClipSaved
// emission required (spec.md §4.3: "no moment_clip_saved emission is
// required in this path").
func (r *Recorder) CloseOnLoopExit() {
	if r.state != Open {
		return
	}
	if _, err := r.closeFinalize(); err != nil {
		r.logger.Error("close-finalize at loop exit failed", "error", err)
	}
}

func (r *Recorder) open(momentID string, codec VideoCodecParams) error {
	dir := filepath.Join(r.saveRoot, r.streamID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir moment dir: %w", err)
	}

	openedAt := time.Now().UnixMilli()
	path := filepath.Join(dir, fmt.Sprintf("%s_from_%d_ms.mkv", r.streamID, openedAt))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create moment file: %w", err)
	}

	writers, err := mkvcore.NewSimpleBlockWriter(f, []mkvcore.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_MJPEG",
			TrackType:       1,
			DefaultDuration: uint64(time.Second / 30),
			Video: &mkvcore.Video{
				PixelWidth:  uint64(codec.Width),
				PixelHeight: uint64(codec.Height),
			},
		},
	}, mkvcore.WithSegmentInfo(mkvcore.NewSegmentInfo("streamworker")),
		mkvcore.WithOnFatalHandler(func(err error) {
			r.logger.Warn("moment container fatal write error", "moment_id", momentID, "error", err)
		}))
	if err != nil {
		f.Close()
		return fmt.Errorf("open moment container: %w", err)
	}

	r.recording = &Recording{
		OutputID:   momentID,
		OpenedAtMs: openedAt,
		Path:       path,
		streamIdx:  0,
		writer:     writers[0],
		closer:     f.Close,
	}
	r.state = Open
	r.logger.Info("moment opened", "moment_id", momentID, "path", path)
	return nil
}

func (r *Recorder) closeFinalize() (*ClipSaved, error) {
	rec := r.recording
	r.recording = nil
	r.state = Closed

	if err := rec.writer.Close(); err != nil {
		r.logger.Warn("moment trailer write failed", "moment_id", rec.OutputID, "error", err)
	}
	if rec.closer != nil {
		rec.closer()
	}

	closedAt := time.Now().UnixMilli()
	finalPath := fmt.Sprintf("%s_to_%d_ms.mkv", rec.Path[:len(rec.Path)-len(".mkv")], closedAt)
	if err := os.Rename(rec.Path, finalPath); err != nil {
		r.logger.Error("moment rename failed", "moment_id", rec.OutputID, "error", err)
		return nil, fmt.Errorf("rename moment clip: %w", err)
	}

	r.logger.Info("moment finalized", "moment_id", rec.OutputID, "path", finalPath)
	return &ClipSaved{MomentID: rec.OutputID, ClipPath: finalPath}, nil
}

func (r *Recorder) closeDiscard() {
	rec := r.recording
	r.recording = nil
	r.state = Closed

	if rec.closer != nil {
		rec.closer()
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("moment discard unlink failed", "moment_id", rec.OutputID, "path", rec.Path, "error", err)
	}
	r.logger.Info("moment discarded", "moment_id", rec.OutputID)
}
