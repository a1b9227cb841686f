// Package eventbus implements spec §4.6: named channels and a bounded,
// best-effort event fan-out to connected observers.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// MaxEventBuffer is the number of recent events retained for late-joining
// observers (§4.6).
const MaxEventBuffer = 1000

// InitFrameEventCount is the tail length of the event buffer included in
// an observer's init frame (§4.6).
const InitFrameEventCount = 100

// ObserverQueueSize bounds the per-observer delivery channel. Delivery is
// best-effort: an observer slower than the producer has its oldest queued
// events silently dropped rather than blocking the bus (§4.6).
const ObserverQueueSize = 256

// SessionLister is implemented by whatever owns session summaries, used
// to populate an observer's init frame without eventbus depending on the
// session store package directly. sessionstore.Store satisfies this
// directly via its List method.
type SessionLister interface {
	List() ([]model.Summary, error)
}

// InitFrame is sent to a newly attached observer before any live events.
type InitFrame struct {
	Channels []model.ChannelDocument `json:"channels"`
	Sessions []model.Summary         `json:"sessions"`
	Events   []model.Event           `json:"events"`
}

// Bus broadcasts events to every attached Observer and owns channel
// persistence.
type Bus struct {
	mu        sync.Mutex
	buf       []model.Event
	observers map[*Observer]struct{}
	logger    *slog.Logger
	sessions  SessionLister
	channels  *ChannelStore
}

// New builds a Bus backed by the given channel store. sessions may be nil
// if session summaries are not yet available (init frames then report an
// empty session list).
func New(channels *ChannelStore, sessions SessionLister, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		observers: make(map[*Observer]struct{}),
		logger:    logger.With("component", "eventbus"),
		sessions:  sessions,
		channels:  channels,
	}
}

// Publish appends event to the bounded buffer and fans it out to every
// attached observer. Within a single observer, events are delivered in
// strictly increasing produce order (§4.6); across observers no ordering
// is implied.
func (b *Bus) Publish(event model.Event) {
	b.mu.Lock()
	b.buf = append(b.buf, event)
	if len(b.buf) > MaxEventBuffer {
		b.buf = b.buf[len(b.buf)-MaxEventBuffer:]
	}
	observers := make([]*Observer, 0, len(b.observers))
	for o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.Unlock()

	for _, o := range observers {
		o.deliver(event)
	}
}

// Attach registers a new Observer, seeded with an InitFrame built from the
// current channel list, session summaries, and the tail of the event
// buffer.
func (b *Bus) Attach() (*Observer, InitFrame) {
	o := newObserver()

	b.mu.Lock()
	tail := lastN(b.buf, InitFrameEventCount)
	b.observers[o] = struct{}{}
	b.mu.Unlock()

	frame := InitFrame{Events: tail}
	if b.channels != nil {
		frame.Channels, _ = b.channels.List()
	}
	if b.sessions != nil {
		if summaries, err := b.sessions.List(); err == nil {
			frame.Sessions = summaries
		} else {
			b.logger.Warn("list session summaries for init frame", "error", err)
		}
	}
	return o, frame
}

// Detach removes an observer from the fan-out set and closes its channel.
func (b *Bus) Detach(o *Observer) {
	b.mu.Lock()
	_, ok := b.observers[o]
	delete(b.observers, o)
	b.mu.Unlock()
	if ok {
		o.close()
	}
}

func lastN(events []model.Event, n int) []model.Event {
	if n <= 0 || n > len(events) {
		n = len(events)
	}
	out := make([]model.Event, n)
	copy(out, events[len(events)-n:])
	return out
}
