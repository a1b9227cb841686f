package eventbus

import (
	"errors"
	"testing"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
)

func newTestStore(t *testing.T) *ChannelStore {
	t.Helper()
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return NewChannelStore(root)
}

func TestChannelStoreCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("ops", "operations channel"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc, err := s.Get("ops")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Metadata.Name != "ops" || doc.Spec.Description != "operations channel" {
		t.Fatalf("unexpected channel: %+v", doc)
	}
}

func TestChannelStoreCreateDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("ops", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("ops", ""); !errors.Is(err, ErrChannelExists) {
		t.Fatalf("expected ErrChannelExists, got %v", err)
	}
}

func TestChannelStoreGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestChannelStoreAddAndRemoveSession(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("ops", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AddSession("ops", "sess-1"); err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	if err := s.AddSession("ops", "sess-1"); err != nil {
		t.Fatalf("AddSession (duplicate) should be a no-op, got %v", err)
	}
	doc, err := s.Get("ops")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(doc.Spec.AgentSessions) != 1 || doc.Spec.AgentSessions[0] != "sess-1" {
		t.Fatalf("expected exactly one session, got %+v", doc.Spec.AgentSessions)
	}

	if err := s.RemoveSession("ops", "sess-1"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	doc, err = s.Get("ops")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(doc.Spec.AgentSessions) != 0 {
		t.Fatalf("expected no sessions after removal, got %+v", doc.Spec.AgentSessions)
	}
}

func TestChannelStoreDeleteAndList(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("a", ""); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if _, err := s.Create("b", ""); err != nil {
		t.Fatalf("Create b: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Metadata.Name != "a" || list[1].Metadata.Name != "b" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("a"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound on second delete, got %v", err)
	}

	list, err = s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Metadata.Name != "b" {
		t.Fatalf("unexpected list after delete: %+v", list)
	}
}
