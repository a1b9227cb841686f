package eventbus

import (
	"sync"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Observer is one attached subscriber's delivery queue. Events() yields
// published events in produce order; a slow consumer drops its oldest
// undelivered event rather than stalling the bus, matching the
// best-effort delivery semantics of §4.6.
type Observer struct {
	ch     chan model.Event
	mu     sync.Mutex
	closed bool
}

func newObserver() *Observer {
	return &Observer{ch: make(chan model.Event, ObserverQueueSize)}
}

// Events returns the channel events are delivered on. It is closed when
// the observer is detached.
func (o *Observer) Events() <-chan model.Event {
	return o.ch
}

func (o *Observer) deliver(event model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- event:
	default:
		// Queue full: drop the oldest queued event to make room rather
		// than block the publisher.
		select {
		case <-o.ch:
		default:
		}
		select {
		case o.ch <- event:
		default:
		}
	}
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
