package eventbus

import (
	"testing"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return New(NewChannelStore(root), nil, nil)
}

func TestBusAttachReceivesPublishedEvents(t *testing.T) {
	b := newTestBus(t)
	obs, _ := b.Attach()
	defer b.Detach(obs)

	b.Publish(model.Event{Type: model.EventSessionStarted, SessionID: "s1", Seq: 1})

	select {
	case ev := <-obs.Events():
		if ev.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered synchronously to buffered channel")
	}
}

func TestBusAttachInitFrameIncludesRecentEvents(t *testing.T) {
	b := newTestBus(t)
	b.Publish(model.Event{Type: model.EventSessionStarted, SessionID: "s1"})
	b.Publish(model.Event{Type: model.EventSessionStarted, SessionID: "s2"})

	_, frame := b.Attach()
	if len(frame.Events) != 2 {
		t.Fatalf("expected 2 buffered events in init frame, got %d", len(frame.Events))
	}
}

func TestBusInitFrameTailIsBounded(t *testing.T) {
	b := newTestBus(t)
	for i := 0; i < InitFrameEventCount+50; i++ {
		b.Publish(model.Event{Type: model.EventSessionStarted})
	}
	_, frame := b.Attach()
	if len(frame.Events) != InitFrameEventCount {
		t.Fatalf("expected init frame capped at %d events, got %d", InitFrameEventCount, len(frame.Events))
	}
}

func TestBusBufferEvictsOldestPastCapacity(t *testing.T) {
	b := newTestBus(t)
	for i := 0; i < MaxEventBuffer+10; i++ {
		b.Publish(model.Event{Type: model.EventSessionStarted, Seq: uint64(i)})
	}
	b.mu.Lock()
	n := len(b.buf)
	oldest := b.buf[0].Seq
	b.mu.Unlock()
	if n != MaxEventBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", MaxEventBuffer, n)
	}
	if oldest != 10 {
		t.Fatalf("expected oldest retained seq 10, got %d", oldest)
	}
}

func TestBusDetachStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	obs, _ := b.Attach()
	b.Detach(obs)

	b.Publish(model.Event{Type: model.EventSessionStarted})

	_, ok := <-obs.Events()
	if ok {
		t.Fatal("expected channel closed after Detach")
	}
}

func TestObserverDropsOldestWhenQueueFull(t *testing.T) {
	b := newTestBus(t)
	obs, _ := b.Attach()
	defer b.Detach(obs)

	for i := 0; i < ObserverQueueSize+5; i++ {
		b.Publish(model.Event{Type: model.EventSessionStarted, Seq: uint64(i)})
	}

	first := <-obs.Events()
	if first.Seq == 0 {
		t.Fatalf("expected oldest events to have been dropped, got seq %d first", first.Seq)
	}
}

type fakeSessionLister struct {
	summaries []model.Summary
}

func (f *fakeSessionLister) List() ([]model.Summary, error) {
	return f.summaries, nil
}

func TestBusInitFrameIncludesSessionsAndChannels(t *testing.T) {
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	channels := NewChannelStore(root)
	if _, err := channels.Create("ops", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	lister := &fakeSessionLister{summaries: []model.Summary{{ID: "s1", State: model.StateRunning}}}
	b := New(channels, lister, nil)

	_, frame := b.Attach()
	if len(frame.Channels) != 1 || frame.Channels[0].Metadata.Name != "ops" {
		t.Fatalf("expected channel in init frame, got %+v", frame.Channels)
	}
	if len(frame.Sessions) != 1 || frame.Sessions[0].ID != "s1" {
		t.Fatalf("expected session summary in init frame, got %+v", frame.Sessions)
	}
}
