package mcpsup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikesmullin/daemon-sub001/internal/toolkit"
	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// RestartBackoff is the pause between a crashed server's restart attempts
// (§4.4: "crash/restart with ~2s backoff up to max_restarts").
const RestartBackoff = 2 * time.Second

const clientName = "daemon-sub001"
const clientVersion = "1.0"
const protocolVersion = "2024-11-05"

// Supervisor owns the lifecycle of a single MCP server subprocess: lazy
// start, the initialize/tools-list handshake, translation of its tools
// into the shared registry, and crash/restart supervision (§4.4).
type Supervisor struct {
	cfg    model.MCPServerConfig
	root   *workspace.Root
	logger *slog.Logger

	mu        sync.Mutex
	transport *stdioTransport
	restarts  int
	tools     []Tool
}

// NewSupervisor builds a Supervisor for cfg. The subprocess is not started
// until the first call to EnsureStarted.
func NewSupervisor(cfg model.MCPServerConfig, root *workspace.Root, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 3
	}
	return &Supervisor{
		cfg:    cfg,
		root:   root,
		logger: logger.With("component", "mcpsup", "server", cfg.Name),
	}
}

// EnsureStarted lazily launches the subprocess and performs the
// initialize/tools-list handshake the first time it's needed, or after a
// crash. Subsequent calls while already connected are no-ops.
func (s *Supervisor) EnsureStarted(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureStartedLocked(ctx)
}

func (s *Supervisor) ensureStartedLocked(ctx context.Context) error {
	if s.transport != nil && s.transport.isConnected() {
		return nil
	}

	t := newStdioTransport(s.cfg, s.logger)
	if err := t.start(ctx); err != nil {
		return fmt.Errorf("mcpsup: start %q: %w", s.cfg.Name, err)
	}
	s.transport = t

	if err := s.handshakeLocked(ctx); err != nil {
		t.stop()
		s.transport = nil
		return err
	}
	return nil
}

func (s *Supervisor) handshakeLocked(ctx context.Context) error {
	initParams := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      ServerInfo{Name: clientName, Version: clientVersion},
		"capabilities":    map[string]any{},
	}
	if _, err := s.transport.call(ctx, "initialize", initParams); err != nil {
		return fmt.Errorf("mcpsup: initialize %q: %w", s.cfg.Name, err)
	}

	raw, err := s.transport.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("mcpsup: tools/list %q: %w", s.cfg.Name, err)
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("mcpsup: decode tools/list %q: %w", s.cfg.Name, err)
	}
	s.tools = result.Tools
	s.restarts = 0

	s.cacheSchemas(result.Tools)
	return nil
}

func (s *Supervisor) cacheSchemas(tools []Tool) {
	if s.root == nil {
		return
	}
	cache := model.MCPSchemaCache{
		Server:  s.cfg.Name,
		Updated: time.Now().UTC().Format(time.RFC3339),
		Tools:   make(map[string]model.MCPToolSchema, len(tools)),
	}
	for _, t := range tools {
		cache.Tools[t.Name] = model.MCPToolSchema{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}
	if err := workspace.WriteYAMLAtomic(s.root.MCPCachePath(s.cfg.Name), cache); err != nil {
		s.logger.Warn("failed to persist mcp schema cache", "error", err)
	}
}

// ToolName returns the registry name a remote tool is exposed under:
// mcp_<server>_<name> (§4.4).
func (s *Supervisor) ToolName(remote string) string {
	return fmt.Sprintf("mcp_%s_%s", s.cfg.Name, remote)
}

// Tools returns the remote tools discovered at the last successful
// handshake.
func (s *Supervisor) Tools() []Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tool(nil), s.tools...)
}

// RegisterTools adds every discovered remote tool to registry as an
// adapter that dispatches through this supervisor.
func (s *Supervisor) RegisterTools(registry *toolkit.Registry) {
	for _, remote := range s.Tools() {
		registry.Register(&remoteTool{
			sup:    s,
			name:   s.ToolName(remote.Name),
			remote: remote.Name,
			desc:   remote.Description,
			schema: remote.InputSchema,
		})
	}
}

// CallTool invokes a remote tool by its unprefixed name, restarting the
// subprocess with backoff if it has crashed (§4.4).
func (s *Supervisor) CallTool(ctx context.Context, remoteName string, args json.RawMessage) (model.ToolResult, error) {
	s.mu.Lock()
	if err := s.ensureStartedLocked(ctx); err != nil {
		restartErr := s.attemptRestartLocked(ctx)
		s.mu.Unlock()
		if restartErr != nil {
			return model.ErrorResult(restartErr.Error(), nil), nil
		}
		return s.CallTool(ctx, remoteName, args)
	}
	transport := s.transport
	s.mu.Unlock()

	raw, err := transport.call(ctx, "tools/call", CallToolParams{Name: remoteName, Arguments: args})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			// §8 scenario 6: a per-request timeout is not a process exit —
			// the subprocess and its restart count are left untouched.
			return model.ErrorResult(fmt.Sprintf("MCP request timeout for %s", s.cfg.Name), nil), nil
		}
		s.mu.Lock()
		restartErr := s.attemptRestartLocked(ctx)
		s.mu.Unlock()
		if restartErr != nil {
			return model.ErrorResult(fmt.Sprintf("%s: %v", ErrServerDown, s.cfg.Name), nil), nil
		}
		return model.ErrorResult(fmt.Sprintf("mcp tool call failed: %v", err), nil), nil
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return model.ErrorResult(fmt.Sprintf("mcp tool result decode error: %v", err), nil), nil
	}
	return model.ToolResult{Success: !result.IsError, Content: result.Text()}, nil
}

// attemptRestartLocked sleeps RestartBackoff and relaunches the
// subprocess, up to cfg.MaxRestarts attempts total. Caller holds s.mu.
func (s *Supervisor) attemptRestartLocked(ctx context.Context) error {
	if s.transport != nil {
		s.transport.stop()
		s.transport = nil
	}
	if s.restarts >= s.cfg.MaxRestarts {
		return fmt.Errorf("%w: %q exceeded max restarts (%d)", ErrServerDown, s.cfg.Name, s.cfg.MaxRestarts)
	}
	s.restarts++
	s.logger.Warn("restarting mcp server", "attempt", s.restarts, "max", s.cfg.MaxRestarts)

	select {
	case <-time.After(RestartBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.ensureStartedLocked(ctx)
}

// Stop terminates the subprocess, if running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		s.transport.stop()
		s.transport = nil
	}
}

// remoteTool adapts one MCP server tool into the toolkit.Tool interface.
type remoteTool struct {
	sup    *Supervisor
	name   string
	remote string
	desc   string
	schema json.RawMessage
}

func (t *remoteTool) Name() string            { return t.name }
func (t *remoteTool) Description() string     { return t.desc }
func (t *remoteTool) Schema() json.RawMessage { return t.schema }
func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	return t.sup.CallTool(ctx, t.remote, args)
}
