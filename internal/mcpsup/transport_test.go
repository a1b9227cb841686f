package mcpsup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func TestTransportCallReturnsErrTimeoutWithoutResponse(t *testing.T) {
	// A subprocess that reads and discards stdin, never writing a
	// response line, exercises the timeout branch of call() directly.
	cfg := model.MCPServerConfig{Command: "sh", Args: []string{"-c", "cat > /dev/null"}}
	tr := newStdioTransport(cfg, nil)
	tr.callTimeout = 50 * time.Millisecond

	if err := tr.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.stop()

	_, err := tr.call(context.Background(), "tools/call", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSupervisorCallToolTimeoutLeavesRestartsUntouched(t *testing.T) {
	cfg := model.MCPServerConfig{Command: "sh", Args: []string{"-c", "cat > /dev/null"}, MaxRestarts: 3}
	sup := NewSupervisor(cfg, nil, nil)

	tr := newStdioTransport(cfg, sup.logger)
	tr.callTimeout = 50 * time.Millisecond
	if err := tr.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.stop()
	sup.transport = tr

	result, err := sup.CallTool(context.Background(), "some_tool", nil)
	if err != nil {
		t.Fatalf("CallTool returned error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected a failed result for a timed-out call")
	}
	want := "MCP request timeout for " + cfg.Name
	if result.Content != want {
		t.Fatalf("unexpected content: got %q want %q", result.Content, want)
	}
	if sup.restarts != 0 {
		t.Fatalf("expected restarts to stay at 0 after a timeout, got %d", sup.restarts)
	}
	if !tr.isConnected() {
		t.Fatal("expected the subprocess to remain connected after a timeout")
	}
}
