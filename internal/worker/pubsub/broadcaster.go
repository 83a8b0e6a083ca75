// Package pubsub fans out one stream's downstream messages (codec
// identity, frames, moment-clip-saved, ended) to any number of
// subscribers, each on its own buffered channel so one slow reader never
// blocks the driver loop. Adapted from the teacher's pipeline.Pipeline /
// pipeline.Broadcaster pair.
package pubsub

import (
	"sync"

	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

const subscriberBufferSize = 64

// Message is the tagged union of everything a stream publishes. Exactly
// one of the fields is non-nil per message, mirroring spec.md §5's
// OutboundMessage union.
type Message struct {
	CodecIdentity *core.CodecIdentity
	Frame         *core.Frame
	ClipSaved     *ClipSavedMsg
	Ended         *EndedMsg
}

type ClipSavedMsg struct {
	MomentID string
	ClipPath string
}

type EndedMsg struct {
	Reason string
}

// subscriber is one outbound channel plus the drop counter used to log
// when a reader falls behind.
type subscriber struct {
	ch      chan Message
	dropped int
}

// Broadcaster fans out messages for one stream id to N subscribers.
// Safe for concurrent Subscribe/Unsubscribe from the server package while
// the driver goroutine calls Publish.
type Broadcaster struct {
	streamID string

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

func NewBroadcaster(streamID string) *Broadcaster {
	return &Broadcaster{
		streamID:    streamID,
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a new reader and returns its id plus a receive-only
// channel. Callers must call Unsubscribe(id) when done.
func (b *Broadcaster) Subscribe() (string, <-chan Message) {
	id := util.GenerateRandomString(12)
	sub := &subscriber{ch: make(chan Message, subscriberBufferSize)}

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return id, sub.ch
}

// Unsubscribe removes and closes a subscriber's channel. Idempotent.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish fans a message out to every current subscriber. Non-blocking
// per subscriber: a full buffer means that subscriber is falling behind,
// and the message is dropped for it rather than stalling the driver loop
// that every other stream operation depends on.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- msg:
		default:
			sub.dropped++
			if sub.dropped == 1 || sub.dropped%100 == 0 {
				util.WithStream(b.streamID).Warn("subscriber falling behind, dropping message",
					"subscriber_id", id, "dropped_total", sub.dropped)
			}
		}
	}
}

// SubscriberCount reports how many subscribers are currently attached.
// The driver does not consult it: encode and publish run whether or not
// anyone is subscribed.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// CloseAll closes and removes every subscriber channel. No stream
// teardown path calls it; a stream socket unsubscribes itself after
// relaying the ended message.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
