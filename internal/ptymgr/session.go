package ptymgr

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Session is one live PTY-backed subprocess and its scrollback buffer.
type Session struct {
	ID      string
	cmd     *exec.Cmd
	file    *os.File
	buffer  *RingBuffer
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
	partial bytes.Buffer
}

// newSession starts command under a pseudo-terminal of the given size.
func newSession(id, command string, args []string, cols, rows uint16, scrollback int, logger *slog.Logger) (*Session, error) {
	cmd := exec.Command(command, args...)
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("ptymgr: start pty for session %q: %w", id, err)
	}
	_ = pty.Setsize(f, &pty.Winsize{Rows: rows, Cols: cols})

	s := &Session{
		ID:     id,
		cmd:    cmd,
		file:   f,
		buffer: NewRingBuffer(scrollback),
		logger: logger.With("component", "ptymgr", "session", id),
	}
	go s.readLoop()
	return s, nil
}

// readLoop pumps PTY output into the line-oriented scrollback buffer
// until the PTY closes (the subprocess exited or the session was closed).
func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.file.Read(buf)
		if n > 0 {
			s.ingest(buf[:n])
		}
		if err != nil {
			s.mu.Lock()
			s.closed = true
			if s.partial.Len() > 0 {
				s.buffer.Append(s.partial.String())
				s.partial.Reset()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Session) ingest(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range chunk {
		if b == '\n' {
			s.buffer.Append(s.partial.String())
			s.partial.Reset()
			continue
		}
		s.partial.WriteByte(b)
	}
}

// Write sends raw bytes (keystrokes) to the subprocess.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("ptymgr: session %q is closed", s.ID)
	}
	_, err := s.file.Write(data)
	return err
}

// Resize updates the PTY's terminal size.
func (s *Session) Resize(cols, rows uint16) error {
	return pty.Setsize(s.file, &pty.Winsize{Rows: rows, Cols: cols})
}

// Closed reports whether the underlying process has exited.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close terminates the subprocess and releases the PTY file descriptor.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.file.Close()
}
