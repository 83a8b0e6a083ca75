// Package worker wires together the codec pipeline, pacer, recorder, and
// command channel into one supervised stream run per stream id.
package worker

import (
	"sync"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

// State is the process-wide WorkerState: a mapping from stream id to its
// moment-recording intent. Mutated exclusively by the command channel;
// the driver takes a read-only snapshot once per packet (spec.md §5).
type State struct {
	mu      sync.RWMutex
	moments map[string]core.MomentState
}

func NewState() *State {
	return &State{moments: make(map[string]core.MomentState)}
}

// Snapshot returns the current moment state for a stream id. The zero
// value (should_write_moment=false, no current id) is returned for a
// stream with no entry yet, matching "created on first set_moment_state".
func (s *State) Snapshot(streamID string) core.MomentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.moments[streamID]
}

// ApplyPatch upserts a stream's moment state, preserving fields the patch
// leaves unset (spec.md §4.6: "tolerant to partial updates").
func (s *State) ApplyPatch(streamID string, patch core.MomentStatePatch) core.MomentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.moments[streamID].Merge(patch)
	s.moments[streamID] = next
	return next
}

// Remove drops a stream's entry, called on stop_stream.
func (s *State) Remove(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.moments, streamID)
}
