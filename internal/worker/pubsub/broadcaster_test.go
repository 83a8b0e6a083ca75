package pubsub

import (
	"testing"
	"time"

	"github.com/tri2820/unblink-sub001/internal/worker/core"
)

func TestPublishFanOutToMultipleSubscribers(t *testing.T) {
	b := NewBroadcaster("s1")
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(Message{Frame: &core.Frame{Data: []byte("hello")}})

	for _, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			if string(msg.Frame.Data) != "hello" {
				t.Errorf("got %q, want %q", msg.Frame.Data, "hello")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fanned-out message")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster("s1")
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed after Unsubscribe")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBroadcaster("s1")
	_, ch := b.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+10; i++ {
			b.Publish(Message{Frame: &core.Frame{Data: []byte{byte(i)}}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
	_ = ch
}

func TestCloseAllClosesEverySubscriber(t *testing.T) {
	b := NewBroadcaster("s1")
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.CloseAll()

	for _, ch := range []<-chan Message{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Errorf("channel should be closed after CloseAll")
		}
	}
	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount after CloseAll = %d, want 0", n)
	}
}
