package worker

import (
	"context"
	"sync"

	"github.com/tri2820/unblink-sub001/internal/worker/pubsub"
)

// entry is one running stream's cancellation handle and broadcaster,
// adapted from the teacher's scrcpy GlobalManager device registry
// pattern (id -> live handle, looked up by command and server alike).
type entry struct {
	cancel      context.CancelFunc
	broadcaster *pubsub.Broadcaster
}

// Registry tracks every stream currently owned by a supervisor, keyed by
// stream id. Safe for concurrent use by the command dispatcher and the
// WebSocket server.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register installs a new stream's cancel func and broadcaster. Returns
// false if the id is already registered (start_stream on a live id is a
// no-op per the command channel's upsert contract for state, but stream
// goroutines themselves are not restarted in place).
func (r *Registry) Register(streamID string, cancel context.CancelFunc, b *pubsub.Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[streamID]; exists {
		return false
	}
	r.entries[streamID] = &entry{cancel: cancel, broadcaster: b}
	return true
}

// Unregister removes a stream's entry. Called once its supervisor loop
// has fully exited.
func (r *Registry) Unregister(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, streamID)
}

// Abort fires the stream's cancellation token, if it is currently
// registered.
func (r *Registry) Abort(streamID string) {
	r.mu.Lock()
	e, ok := r.entries[streamID]
	r.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// Broadcaster looks up a running stream's fan-out broadcaster, used by
// the server to attach a new WebSocket subscriber.
func (r *Registry) Broadcaster(streamID string) (*pubsub.Broadcaster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[streamID]
	if !ok {
		return nil, false
	}
	return e.broadcaster, true
}
