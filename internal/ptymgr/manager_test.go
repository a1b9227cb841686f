package ptymgr

import (
	"strings"
	"testing"
	"time"
)

func waitForLine(t *testing.T, m *Manager, id string, contains string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lines, _, err := m.InitFrame(id, 0)
		if err != nil {
			t.Fatalf("InitFrame: %v", err)
		}
		for _, l := range lines {
			if strings.Contains(l, contains) {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for output containing %q", contains)
}

func TestManagerCreateWriteAndRead(t *testing.T) {
	m := NewManager(0, nil)
	if err := m.Create("s1", "sh", []string{"-c", "echo hello-ptymgr"}, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close("s1")

	waitForLine(t, m, "s1", "hello-ptymgr")
}

func TestManagerCreateIsIdempotent(t *testing.T) {
	m := NewManager(0, nil)
	if err := m.Create("s1", "sh", []string{"-c", "sleep 1"}, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close("s1")
	if err := m.Create("s1", "sh", []string{"-c", "sleep 1"}, 80, 24); err != nil {
		t.Fatalf("second Create should be a no-op, got error: %v", err)
	}
}

func TestManagerUnknownSessionOperationsFail(t *testing.T) {
	m := NewManager(0, nil)
	if _, _, err := m.ReadSince("missing", 0); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Write("missing", []byte("x")); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.Close("missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManagerWriteSpecialKey(t *testing.T) {
	m := NewManager(0, nil)
	if err := m.Create("s1", "cat", nil, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Close("s1")

	if err := m.WriteSpecialKey("s1", "CtrlD"); err != nil {
		t.Fatalf("WriteSpecialKey: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		closed, err := m.Closed("s1")
		if err != nil {
			t.Fatalf("Closed: %v", err)
		}
		if closed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected cat to exit after receiving EOF")
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(0, nil)
	if err := m.Create("s1", "sleep", []string{"1"}, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Create("s2", "sleep", []string{"1"}, 80, 24); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.CloseAll()

	if _, _, err := m.ReadSince("s1", 0); err != ErrSessionNotFound {
		t.Fatalf("expected s1 removed after CloseAll, got %v", err)
	}
	if _, _, err := m.ReadSince("s2", 0); err != ErrSessionNotFound {
		t.Fatalf("expected s2 removed after CloseAll, got %v", err)
	}
}
