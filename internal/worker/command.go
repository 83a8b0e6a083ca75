package worker

import (
	"context"
	"log/slog"

	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
)

// StartStreamCommand is the start_stream inbound message (spec.md §6).
type StartStreamCommand struct {
	ID           string
	URI          string
	SaveLocation string
	InitSeekSec  *float64
	SessionID    string
	Ephemeral    bool
}

type StopStreamCommand struct {
	ID string
}

type SetMomentStateCommand struct {
	ID    string
	Patch core.MomentStatePatch
}

// Dispatcher is the single-threaded command handler described in
// spec.md §4.6. All three command types funnel through its HandleX
// methods, called from exactly one goroutine (the server's WebSocket read
// loop) — matching "single-threaded message queue". Registry and State
// still hold their own locks because the driver and the server read them
// concurrently with dispatch.
type Dispatcher struct {
	state       *State
	registry    *Registry
	defaultRoot string
	logger      *slog.Logger
}

func NewDispatcher(state *State, registry *Registry, defaultMomentsRoot string) *Dispatcher {
	return &Dispatcher{
		state:       state,
		registry:    registry,
		defaultRoot: defaultMomentsRoot,
		logger:      util.GetLogger(),
	}
}

// HandleStartStream registers a new stream's abort token and spawns its
// supervisor (spec.md §4.6). onEnded is invoked once the supervisor loop
// has fully exited, letting the caller (the server) unregister transport
// state and notify its own subscribers.
func (d *Dispatcher) HandleStartStream(cmd StartStreamCommand, onEnded func()) {
	saveRoot := cmd.SaveLocation
	if saveRoot == "" {
		saveRoot = d.defaultRoot
	}

	cfg := core.StreamConfig{
		ID:           cmd.ID,
		URI:          cmd.URI,
		SaveLocation: saveRoot,
		InitSeekSec:  cmd.InitSeekSec,
		Ephemeral:    cmd.Ephemeral,
		SessionID:    cmd.SessionID,
	}

	ctx, cancel := context.WithCancel(context.Background())
	broadcaster := pubsub.NewBroadcaster(cmd.ID)

	if !d.registry.Register(cmd.ID, cancel, broadcaster) {
		d.logger.Warn("start_stream ignored: stream id already running", "stream_id", cmd.ID)
		cancel()
		return
	}

	sup := NewSupervisor(cfg, d.state, broadcaster)
	go func() {
		sup.Run(ctx)
		d.registry.Unregister(cmd.ID)
		if onEnded != nil {
			onEnded()
		}
	}()
}

// HandleStopStream fires the stream's abort token and removes its
// WorkerState entry (spec.md §4.6). The supervisor and driver perform the
// actual teardown asynchronously.
func (d *Dispatcher) HandleStopStream(cmd StopStreamCommand) {
	d.registry.Abort(cmd.ID)
	d.state.Remove(cmd.ID)
}

// HandleSetMomentState upserts WorkerState for a stream id, tolerant to
// partial updates (spec.md §4.6).
func (d *Dispatcher) HandleSetMomentState(cmd SetMomentStateCommand) core.MomentState {
	return d.state.ApplyPatch(cmd.ID, cmd.Patch)
}
