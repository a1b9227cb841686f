// Package toolkit implements spec §4.3: the tool registry, the pre-use
// approval hook, schema validation, and the concurrency/timeout/retry
// executor that dispatches tool calls on a session's behalf.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Tool is the contract every dispatchable tool implements, mirroring the
// shape the conversation loop's tool-calling contract expects (§4.3 step
// 3: "uniform {success, content, metadata} result").
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error)
}

// Registry is a thread-safe tool lookup table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool, used when an MCP server disconnects and its
// synthesized tools must disappear (§4.4).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the JSON-schema tool definitions for every registered
// tool, in the shape passed to an LLM provider's tool-calling API.
func (r *Registry) Schemas() []model.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, model.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// FuncTool adapts a plain function into a Tool, used for small built-ins
// that don't warrant their own type (§4.3's example tools).
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      json.RawMessage
	Fn              func(ctx context.Context, args json.RawMessage) (model.ToolResult, error)
}

func (f FuncTool) Name() string              { return f.ToolName }
func (f FuncTool) Description() string       { return f.ToolDescription }
func (f FuncTool) Schema() json.RawMessage   { return f.ToolSchema }
func (f FuncTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	if f.Fn == nil {
		return model.ToolResult{}, fmt.Errorf("toolkit: tool %q has no implementation", f.ToolName)
	}
	return f.Fn(ctx, args)
}
