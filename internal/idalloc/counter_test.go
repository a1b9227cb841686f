package idalloc

import (
	"os"
	"testing"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
)

func newTestRoot(t *testing.T) *workspace.Root {
	t.Helper()
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return root
}

func TestAllocateStartsAtZero(t *testing.T) {
	root := newTestRoot(t)
	c, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := c.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id != "0" {
		t.Fatalf("expected first id 0, got %s", id)
	}
}

func TestAllocateMonotonicNoGaps(t *testing.T) {
	root := newTestRoot(t)
	c, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := c.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}

	data, err := os.ReadFile(root.CounterPath())
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if string(data) != "50" {
		t.Fatalf("expected counter file to read 50, got %q", data)
	}
}

func TestCorruptCounterAbortsStartup(t *testing.T) {
	root := newTestRoot(t)
	if err := workspace.WriteFileAtomic(root.CounterPath(), []byte("not-a-number"), 0o600); err != nil {
		t.Fatalf("seed corrupt counter: %v", err)
	}

	if _, err := New(root); err == nil {
		t.Fatal("expected corrupt counter to fail New")
	}
}

func TestAllocateConcurrentNoDuplicates(t *testing.T) {
	root := newTestRoot(t)
	c, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const n = 100
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			id, err := c.Allocate()
			if err != nil {
				results <- "ERR:" + err.Error()
				return
			}
			results <- id
		}()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := <-results
		if seen[id] {
			t.Fatalf("duplicate id allocated concurrently: %s", id)
		}
		seen[id] = true
	}
}
