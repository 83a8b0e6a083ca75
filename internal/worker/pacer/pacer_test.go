package pacer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

func noCancelCtx() context.Context { return context.Background() }

func TestDetectMode(t *testing.T) {
	cases := []struct {
		name      string
		uri       string
		ephemeral bool
		want      Mode
	}{
		{"rtsp is live", "rtsp://cam.local/stream", false, Live},
		{"http is live", "http://cam.local/stream.mjpeg", false, Live},
		{"local path is file", "/data/clips/clip.mkv", false, File},
		{"ephemeral rtsp is still file", "rtsp://cam.local/stream", true, File},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectMode(c.uri, c.ephemeral); got != c.want {
				t.Errorf("DetectMode(%q, %v) = %v, want %v", c.uri, c.ephemeral, got, c.want)
			}
		})
	}
}

func TestTargetFrameIntervalMs(t *testing.T) {
	cases := []struct {
		name string
		fps  float64
		want float64
	}{
		{"30fps", 30, 1000.0 / 30},
		{"60fps passes through under the 24fps bound", 60, 1000.0 / 60},
		{"zero forced to default", 0, 1000.0 / 30},
		{"negative forced to default", -5, 1000.0 / 30},
		{"nan forced to default", math.NaN(), 1000.0 / 30},
		{"inf forced to default", math.Inf(1), 1000.0 / 30},
		{"slow 10fps passes through", 10, 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := TargetFrameIntervalMs(c.fps)
			if math.Abs(got-c.want) > 1e-9 {
				t.Errorf("TargetFrameIntervalMs(%v) = %v, want %v", c.fps, got, c.want)
			}
			if got <= 0 || math.IsInf(got, 0) {
				t.Errorf("TargetFrameIntervalMs(%v) = %v, want finite and positive", c.fps, got)
			}
		})
	}
}

func TestLiveDecisionThrottles(t *testing.T) {
	p := New(Live)
	ts := &core.TimingState{}

	if d := p.LiveDecision(ts); d != Emit {
		t.Fatalf("first decision = %v, want Emit", d)
	}
	if d := p.LiveDecision(ts); d != Skip {
		t.Fatalf("immediate second decision = %v, want Skip", d)
	}

	ts.LastLiveThrottleSend = time.Now().Add(-40 * time.Millisecond)
	if d := p.LiveDecision(ts); d != Emit {
		t.Fatalf("decision after throttle window elapsed = %v, want Emit", d)
	}
}

func TestInitFirstPacketOnlySetsOnce(t *testing.T) {
	p := New(File)
	ts := &core.TimingState{}

	p.InitFirstPacket(ts, 100)
	firstWall := ts.PlaybackStartWall

	p.InitFirstPacket(ts, 999)
	if *ts.FirstPTS != 100 {
		t.Errorf("FirstPTS changed on second call: got %d, want 100", *ts.FirstPTS)
	}
	if !ts.PlaybackStartWall.Equal(firstWall) {
		t.Errorf("PlaybackStartWall changed on second call")
	}
}

func TestElapsedFileMs(t *testing.T) {
	got := ElapsedFileMs(300, 0, 1, 30) // 300 ticks at 1/30s timebase
	want := int64(10000)                // 300 * (1/30) * 1000 = 10000ms
	if got != want {
		t.Errorf("ElapsedFileMs = %d, want %d", got, want)
	}
}

func TestProgressTimestampMs(t *testing.T) {
	seek := 2.5
	got := ProgressTimestampMs(&seek, 500)
	if got != 3000 {
		t.Errorf("ProgressTimestampMs = %d, want 3000", got)
	}

	if got := ProgressTimestampMs(nil, 500); got != 500 {
		t.Errorf("ProgressTimestampMs(nil, 500) = %d, want 500", got)
	}
}

func TestPostDelayReportsLatenessOnlyInFileModeBeyondThreshold(t *testing.T) {
	p := New(File)
	ts := &core.TimingState{}
	ts.PlaybackStartWall = time.Now().Add(-500 * time.Millisecond)

	if lateMs := p.PostDelay(noCancelCtx(), ts, 0); lateMs < 400 {
		t.Errorf("PostDelay lateMs = %d, want something close to 500ms late", lateMs)
	}

	livePacer := New(Live)
	ts2 := &core.TimingState{}
	if lateMs := livePacer.PostDelay(noCancelCtx(), ts2, 0); lateMs != 0 {
		t.Errorf("live mode PostDelay should never report lateness, got %d", lateMs)
	}

	ts3 := &core.TimingState{PlaybackStartWall: time.Now().Add(-10 * time.Millisecond)}
	if lateMs := p.PostDelay(noCancelCtx(), ts3, 0); lateMs != 0 {
		t.Errorf("lateness under threshold should report 0, got %d", lateMs)
	}
}

func TestPreDelayNoopOnFirstPacketOrLiveMode(t *testing.T) {
	ts := &core.TimingState{TargetFrameIntervalMs: 1000, LastFrameSend: time.Now()}

	filePacer := New(File)
	start := time.Now()
	filePacer.PreDelay(noCancelCtx(), ts, true)
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("PreDelay slept on first packet, should be a no-op")
	}

	livePacer := New(Live)
	start = time.Now()
	livePacer.PreDelay(noCancelCtx(), ts, false)
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("PreDelay slept in live mode, should be a no-op")
	}
}
