// Package pacer decides when each decoded frame may be emitted
// downstream: live-throttle for network sources, dual pre/post delay for
// file playback. Pure logic over core.TimingState — no I/O beyond
// time.Sleep, so it needs no third-party dependency.
package pacer

import (
	"context"
	"math"
	"time"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

// Mode tags the pacer's two strategies. A sum type, not a class
// hierarchy: Live carries no payload, File carries none either (all its
// state lives in core.TimingState, owned by the caller).
type Mode int

const (
	Live Mode = iota
	File
)

const (
	liveThrottleIntervalMs = 1000.0 / 30.0
	maxSleepCap            = 5 * time.Second
	defaultFrameRate       = 30.0
	lateFrameThresholdMs   = 100.0
)

// DetectMode implements spec.md §4.2: file mode iff the URI is a local
// file or the stream is ephemeral.
func DetectMode(uri string, ephemeral bool) Mode {
	if ephemeral || isLocalFileURI(uri) {
		return File
	}
	return Live
}

func isLocalFileURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, scheme := range []string{"rtsp://", "http://", "https://"} {
		if len(uri) >= len(scheme) && uri[:len(scheme)] == scheme {
			return false
		}
	}
	return true
}

// TargetFrameIntervalMs computes spec.md §3's TimingState invariant: a
// finite, strictly positive interval, forced to 30fps if the source
// reports something non-finite or non-positive, capped so streams at or
// above 24fps never drift slower than 1000/24ms.
func TargetFrameIntervalMs(sourceFPS float64) float64 {
	if math.IsNaN(sourceFPS) || math.IsInf(sourceFPS, 0) || sourceFPS <= 0 {
		return 1000.0 / defaultFrameRate
	}
	interval := 1000.0 / sourceFPS
	if sourceFPS >= 24 && interval > 1000.0/24.0 {
		return 1000.0 / 24.0
	}
	return interval
}

// Decision is the pacer's tri-state per-packet verdict.
type Decision int

const (
	Emit Decision = iota
	Skip
	EmitAfterDelay
)

// Pacer holds only its mode; all per-run timing lives in the
// core.TimingState passed to each call. The driver creates a fresh
// TimingState for every attempt, so pacing never carries over a stream
// restart (spec.md I2).
type Pacer struct {
	mode Mode
}

func New(mode Mode) *Pacer {
	return &Pacer{mode: mode}
}

func (p *Pacer) Mode() Mode { return p.mode }

// PreDelay applies the file-mode pre-processing delay (spec.md §4.2):
// sleeps for the deficit against ts.LastFrameSend, which is —
// intentionally, per spec.md §9 — only updated in PostDelay, so this
// reads a value set a full packet ago. No-op in live mode and for the
// first packet of a file-mode run.
func (p *Pacer) PreDelay(ctx context.Context, ts *core.TimingState, isFirstPacket bool) {
	if p.mode != File || isFirstPacket {
		return
	}
	now := time.Now()
	deficitMs := ts.TargetFrameIntervalMs - float64(now.Sub(ts.LastFrameSend).Milliseconds())
	sleepFor(ctx, deficitMs)
}

// LiveDecision implements the live-mode throttle (spec.md §4.2).
func (p *Pacer) LiveDecision(ts *core.TimingState) Decision {
	now := time.Now()
	if !ts.LastLiveThrottleSend.IsZero() && float64(now.Sub(ts.LastLiveThrottleSend).Milliseconds()) < liveThrottleIntervalMs {
		return Skip
	}
	ts.LastLiveThrottleSend = now
	return Emit
}

// InitFirstPacket records first_pts / playback_start_wallclock on the
// first video packet seen in file mode (spec.md §4.2).
func (p *Pacer) InitFirstPacket(ts *core.TimingState, pts int64) {
	if ts.FirstPTS != nil {
		return
	}
	ts.FirstPTS = &pts
	ts.PlaybackStartWall = time.Now()
}

// ElapsedFileMs computes spec.md §4.2/§4.3's elapsed_file_ms from a
// packet's PTS and the stream's timebase (num/den).
func ElapsedFileMs(pts int64, firstPTS int64, tbNum, tbDen int) int64 {
	if tbDen == 0 {
		return 0
	}
	return (pts - firstPTS) * int64(tbNum) * 1000 / int64(tbDen)
}

// PostDelay applies the file-mode post-processing delay (spec.md §4.2)
// after a packet has been emitted, and updates LastFrameSend — the value
// PreDelay reads on the *next* packet. Returns the lateness in
// milliseconds when the packet landed more than lateFrameThresholdMs
// behind schedule, so the caller can log it with stream context; zero
// otherwise. The pacer itself never drops file-mode packets for being
// late (spec.md §4.2) — this is purely a logging signal.
func (p *Pacer) PostDelay(ctx context.Context, ts *core.TimingState, elapsedFileMs int64) (lateMs int64) {
	now := time.Now()
	ts.LastFrameSend = now
	if p.mode != File {
		return 0
	}
	target := ts.PlaybackStartWall.Add(time.Duration(elapsedFileMs) * time.Millisecond)
	deficit := target.Sub(now)
	if deficit < 0 {
		late := -deficit.Milliseconds()
		if late > int64(lateFrameThresholdMs) {
			return late
		}
		return 0
	}
	sleepFor(ctx, float64(deficit.Milliseconds()))
	return 0
}

// ProgressTimestampMs implements spec.md §4.2's ephemeral progress
// timestamp: init_seek_sec*1000 + elapsed_file_ms.
func ProgressTimestampMs(initSeekSec *float64, elapsedFileMs int64) int64 {
	var seekMs int64
	if initSeekSec != nil {
		seekMs = int64(*initSeekSec * 1000)
	}
	return seekMs + elapsedFileMs
}

func sleepFor(ctx context.Context, ms float64) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms <= 0 {
		return
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxSleepCap {
		d = maxSleepCap
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
