// Package ptymgr implements spec §4.5: PTY sessions backed by
// github.com/creack/pty, with bounded scrollback and multi-subscriber
// stream fan-out.
package ptymgr

import "sync"

// DefaultScrollback is the default number of lines retained per session
// (§4.5).
const DefaultScrollback = 10000

// RingBuffer is a bounded, append-only line buffer with silent FIFO
// eviction once capacity is exceeded. Reads use a monotonic line
// sequence number so subscribers can resume from a cursor without
// re-reading lines they've already seen.
type RingBuffer struct {
	mu       sync.Mutex
	capacity int
	lines    []string
	// base is the sequence number of lines[0]; evicted lines permanently
	// advance it.
	base int
}

// NewRingBuffer returns a RingBuffer holding at most capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultScrollback
	}
	return &RingBuffer{capacity: capacity}
}

// Append adds a line, evicting the oldest line if the buffer is full.
func (b *RingBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		overflow := len(b.lines) - b.capacity
		b.lines = b.lines[overflow:]
		b.base += overflow
	}
}

// Len returns the current sequence number just past the newest line,
// i.e. the cursor a new subscriber should start from to see only future
// lines.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + len(b.lines)
}

// Since returns every line with sequence number >= cursor, along with the
// cursor a caller should pass next. If cursor has fallen behind the
// buffer's retained window (lines were evicted), it is silently advanced
// to the oldest retained line — callers see a contiguous tail, never a
// gap error (§4.5's silent-eviction semantics).
func (b *RingBuffer) Since(cursor int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cursor < b.base {
		cursor = b.base
	}
	offset := cursor - b.base
	if offset >= len(b.lines) {
		return nil, b.base + len(b.lines)
	}
	out := append([]string(nil), b.lines[offset:]...)
	return out, b.base + len(b.lines)
}

// LastN returns up to n of the most recent lines plus the cursor
// following them, the shape used to seed a newly attaching observer with
// recent scrollback (§4.5, §6.4 init frame).
func (b *RingBuffer) LastN(n int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.lines) {
		n = len(b.lines)
	}
	start := len(b.lines) - n
	out := append([]string(nil), b.lines[start:]...)
	return out, b.base + len(b.lines)
}
