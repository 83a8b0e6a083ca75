package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tri2820/unblink-sub001/internal/config"
	"github.com/tri2820/unblink-sub001/internal/metrics"
	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
)

const (
	retryDelay      = 5 * time.Second
	stabilityWindow = 30 * time.Second
)

// errAborted distinguishes a cooperative cancellation from a real driver
// error: the supervisor never retries after one (spec.md §4.5).
var errAborted = errors.New("worker: stream aborted")

// heartState is the spec's SupervisorState: a decrementing credit budget
// with periodic replenishment after a stability window, re-specialized
// from the teacher's exponential-backoff Backoff into this fixed-budget
// shape (grounded on tomtom215-lyrebirdaudio-go's
// internal/stream.Backoff RecordFailure/RecordSuccess pattern).
type heartState struct {
	mu     sync.Mutex
	hearts int
	timer  *time.Timer
}

func newHeartState() *heartState {
	return &heartState{hearts: core.InitialHearts}
}

// armStability starts (or restarts) the 30s stability timer; firing
// resets hearts to full.
func (h *heartState) armStability() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(stabilityWindow, func() {
		h.mu.Lock()
		h.hearts = core.InitialHearts
		h.mu.Unlock()
	})
}

// disarmStability cancels the pending timer without touching hearts,
// called whenever an error interrupts a run before it becomes stable.
func (h *heartState) disarmStability() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// recordFailure decrements hearts and reports whether any remain.
func (h *heartState) recordFailure() (remaining int, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hearts--
	return h.hearts, h.hearts > 0
}

// Supervisor wraps one stream's driver in a restart loop (spec.md §4.5).
type Supervisor struct {
	cfg         core.StreamConfig
	state       *State
	broadcaster *pubsub.Broadcaster
	logger      *slog.Logger
}

// NewSupervisor constructs a supervisor for one stream configuration.
func NewSupervisor(cfg core.StreamConfig, state *State, broadcaster *pubsub.Broadcaster) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		state:       state,
		broadcaster: broadcaster,
		logger:      util.WithStream(cfg.ID),
	}
}

// Run drives the restart loop until the stream is aborted, exhausts its
// hearts, or (for non-demo sources) ends gracefully.
func (s *Supervisor) Run(ctx context.Context) {
	hearts := newHeartState()
	metrics.HeartsRemaining.WithLabelValues(s.cfg.ID).Set(core.InitialHearts)

	for attempt := 0; ; attempt++ {
		runID := util.NewRunID()
		s.logger.Info("stream attempt starting", "run_id", runID)
		if attempt > 0 {
			metrics.SupervisorRestarts.WithLabelValues(s.cfg.ID).Inc()
		}

		hearts.armStability()
		driver := NewDriver(s.cfg, s.state, s.broadcaster)
		err := driver.Run(ctx)
		hearts.disarmStability()

		if err == nil {
			s.logger.Info("stream ended gracefully", "run_id", runID)
			if strings.HasPrefix(s.cfg.URI, config.DemoBucketPrefix()) && ctx.Err() == nil {
				continue // loop immediately, per spec.md §4.5
			}
			return
		}

		if errors.Is(err, errAborted) || ctx.Err() != nil {
			s.logger.Info("stream aborted", "run_id", runID)
			return
		}

		remaining, ok := hearts.recordFailure()
		metrics.HeartsRemaining.WithLabelValues(s.cfg.ID).Set(float64(remaining))
		s.logger.Error("stream attempt failed", "run_id", runID, "error", err, "hearts_remaining", remaining)
		if !ok {
			s.logger.Error("hearts exhausted, giving up", "run_id", runID)
			return
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return
		}
	}
}
