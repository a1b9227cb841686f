// Package idalloc allocates the strictly monotonic session ids described in
// spec §4.1: allocate_id() reads the persisted counter, writes back
// current+1, and returns the value it read.
package idalloc

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
)

// ErrCorrupt is returned when the counter file holds something other than
// a non-negative decimal integer. A corrupt counter aborts daemon startup
// per spec §7 (Fatal errors).
var ErrCorrupt = fmt.Errorf("idalloc: counter file is corrupt")

// Counter is a crash-safe, file-backed monotonic id allocator.
type Counter struct {
	mu   sync.Mutex
	path string
}

// New loads (or initializes) the counter at root.CounterPath(). A missing
// file is not an error: the first Allocate call will initialize it to "1"
// and return "0".
func New(root *workspace.Root) (*Counter, error) {
	c := &Counter{path: root.CounterPath()}
	if workspace.Exists(c.path) {
		if _, err := c.peek(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Counter) peek() (uint64, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	text := string(data)
	for len(text) > 0 && (text[len(text)-1] == '\n' || text[len(text)-1] == '\r') {
		text = text[:len(text)-1]
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return n, nil
}

// Allocate returns the next id as a decimal string and persists the
// incremented counter. Write-then-read ordering per spec: read current,
// persist current+1, return current.
func (c *Counter) Allocate() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.peek()
	if err != nil {
		return "", err
	}
	if err := workspace.WriteFileAtomic(c.path, []byte(strconv.FormatUint(current+1, 10)), 0o600); err != nil {
		return "", fmt.Errorf("idalloc: persist counter: %w", err)
	}
	return strconv.FormatUint(current, 10), nil
}
