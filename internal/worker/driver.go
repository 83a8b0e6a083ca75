package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/asticode/go-astiav"
	pkgerrors "github.com/pkg/errors"

	"github.com/tri2820/unblink-sub001/internal/metrics"
	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker/codec"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/pacer"
	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
	"github.com/tri2820/unblink-sub001/internal/worker/recorder"
)

// packetPullTimeout bounds how long the driver waits for the next
// demuxed packet before treating the source as gracefully ended
// (spec.md §4.4/§7).
const packetPullTimeout = 10 * time.Second

// Driver runs one attempt of a stream: open the pipeline, then loop
// pull-decode-pace-process-record until the source ends, errors, or the
// run is aborted. Grounded on the teacher's scrcpy.Source.runReader
// packet-pull loop, generalized from a fixed video/audio/control demux
// to this spec's video-only pipeline plus moment recorder.
type Driver struct {
	cfg         core.StreamConfig
	state       *State
	broadcaster *pubsub.Broadcaster
	logger      *slog.Logger
}

func NewDriver(cfg core.StreamConfig, state *State, broadcaster *pubsub.Broadcaster) *Driver {
	return &Driver{
		cfg:         cfg,
		state:       state,
		broadcaster: broadcaster,
		logger:      util.WithStream(cfg.ID),
	}
}

// Run executes one attempt. A nil return means graceful end; errAborted
// means the context was cancelled; any other error is a retryable
// failure the supervisor should count against the stream's hearts.
func (d *Driver) Run(ctx context.Context) error {
	pipeline, identity, err := codec.Open(d.cfg)
	if err != nil {
		return pkgerrors.Wrapf(err, "open pipeline for stream %q", d.cfg.ID)
	}
	defer pipeline.Close()

	rec := recorder.New(d.cfg.ID, d.cfg.SaveLocation)
	defer rec.CloseOnLoopExit()

	p := pacer.New(pacer.DetectMode(d.cfg.URI, d.cfg.Ephemeral))
	ts := &core.TimingState{}
	ts.TargetFrameIntervalMs = pacer.TargetFrameIntervalMs(pipeline.AvgFrameRate())

	d.broadcaster.Publish(pubsub.Message{CodecIdentity: identity})

	endReason := "graceful"
	runErr := d.loop(ctx, pipeline, rec, p, ts, &endReason)

	d.broadcaster.Publish(pubsub.Message{Ended: &pubsub.EndedMsg{Reason: endReason}})
	return runErr
}

func (d *Driver) loop(ctx context.Context, pipeline *codec.Pipeline, rec *recorder.Recorder, p *pacer.Pacer, ts *core.TimingState, endReason *string) error {
	pkt := astiav.AllocPacket()
	defer pkt.Free()

	firstPacket := true
	videoIdx := pipeline.VideoStreamIndex()

	for {
		if ctx.Err() != nil {
			*endReason = "aborted"
			return errAborted
		}

		pkt.Unref()
		readDone := make(chan error, 1)
		go func() { readDone <- pipeline.ReadPacket(pkt) }()

		select {
		case <-ctx.Done():
			*endReason = "aborted"
			return errAborted
		case <-time.After(packetPullTimeout):
			*endReason = "timeout"
			return nil
		case err := <-readDone:
			if err != nil {
				if errors.Is(err, astiav.ErrEof) {
					*endReason = "graceful"
					return nil
				}
				return err
			}
		}

		if pkt.StreamIndex() != videoIdx {
			continue
		}

		if !d.cfg.Ephemeral {
			moment := d.state.Snapshot(d.cfg.ID)
			saved, err := rec.Apply(moment, recorderCodecParams(pipeline))
			if err != nil {
				d.logger.Warn("recorder state transition failed", "error", err)
			}
			if saved != nil {
				d.broadcaster.Publish(pubsub.Message{ClipSaved: &pubsub.ClipSavedMsg{
					MomentID: saved.MomentID,
					ClipPath: saved.ClipPath,
				}})
			}
		}

		p.InitFirstPacket(ts, pkt.Pts())
		p.PreDelay(ctx, ts, firstPacket)

		if p.Mode() == pacer.Live {
			if p.LiveDecision(ts) == pacer.Skip {
				continue
			}
		}

		result, err := pipeline.ProcessVideoPacket(pkt)
		if err != nil {
			if !errors.Is(err, codec.ErrNoFrame) {
				d.logger.Warn("packet processing failed, dropping", "error", err)
			}
			firstPacket = false
			continue
		}

		tbNum, tbDen := pipeline.VideoTimeBase()
		elapsedMs := pacer.ElapsedFileMs(result.PTS, derefOr(ts.FirstPTS, result.PTS), tbNum, tbDen)

		frame := core.Frame{Data: result.PublishData}
		if d.cfg.Ephemeral {
			progress := pacer.ProgressTimestampMs(d.cfg.InitSeekSec, elapsedMs)
			frame.TimestampMs = &progress
		}
		d.broadcaster.Publish(pubsub.Message{Frame: &frame})
		metrics.FramesPublished.WithLabelValues(d.cfg.ID).Inc()

		if result.RecordData != nil && rec.IsOpen() {
			if err := rec.Append(result.RecordData, result.Keyframe); err != nil {
				d.logger.Warn("moment append failed", "error", err)
			}
		}
		if rec.IsOpen() {
			metrics.MomentsOpen.WithLabelValues(d.cfg.ID).Set(1)
		} else {
			metrics.MomentsOpen.WithLabelValues(d.cfg.ID).Set(0)
		}

		if lateMs := p.PostDelay(ctx, ts, elapsedMs); lateMs > 0 {
			d.logger.Warn("file-mode packet emitted late", "late_ms", lateMs)
		}
		firstPacket = false
	}
}

func recorderCodecParams(p *codec.Pipeline) recorder.VideoCodecParams {
	w, h := p.OutputDimensions()
	return recorder.VideoCodecParams{Width: w, Height: h}
}

func derefOr(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
