package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mikesmullin/daemon-sub001/internal/ptymgr"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// PTY tools give an agent the same create/write/read/close surface §4.5
// exposes to an operator command: a session spawns a PTY-backed
// subprocess, drives it with keystrokes, and polls its scrollback, all
// as ordinary tool calls dispatched through the registry alongside
// execute_shell.

const ptyCreateSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "Program to run under the PTY"},
    "args": {"type": "array", "items": {"type": "string"}, "description": "Program arguments"},
    "cols": {"type": "integer", "description": "Terminal width; defaults to 80"},
    "rows": {"type": "integer", "description": "Terminal height; defaults to 24"}
  },
  "required": ["command"],
  "additionalProperties": false
}`

const ptyWriteSchema = `{
  "type": "object",
  "properties": {
    "pty_id": {"type": "string", "description": "Session id returned by pty_create"},
    "data": {"type": "string", "description": "Raw bytes to write to the subprocess's stdin"},
    "key": {"type": "string", "description": "A named special key (ENTER, CTRL_C, ...) instead of data"}
  },
  "required": ["pty_id"],
  "additionalProperties": false
}`

const ptyReadSchema = `{
  "type": "object",
  "properties": {
    "pty_id": {"type": "string", "description": "Session id returned by pty_create"},
    "lines": {"type": "integer", "description": "Return the last N lines of scrollback instead of since_last_read"},
    "since_last_read": {"type": "integer", "description": "Cursor returned by a previous pty_read call"}
  },
  "required": ["pty_id"],
  "additionalProperties": false
}`

const ptyCloseSchema = `{
  "type": "object",
  "properties": {
    "pty_id": {"type": "string", "description": "Session id returned by pty_create"},
    "force": {"type": "boolean", "description": "Has no effect: pty_close always kills the subprocess immediately"}
  },
  "required": ["pty_id"],
  "additionalProperties": false
}`

// PTYCreateTool spawns a new PTY session and returns its id (§4.5 create).
type PTYCreateTool struct {
	Manager *ptymgr.Manager
}

func (t PTYCreateTool) Name() string            { return "pty_create" }
func (t PTYCreateTool) Description() string     { return "Spawns a program under a new PTY session and returns its session id." }
func (t PTYCreateTool) Schema() json.RawMessage { return json.RawMessage(ptyCreateSchema) }

func (t PTYCreateTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	var input struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
		Cols    uint16   `json:"cols"`
		Rows    uint16   `json:"rows"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return model.ErrorResult("invalid arguments: "+err.Error(), nil), nil
	}
	if input.Cols == 0 {
		input.Cols = 80
	}
	if input.Rows == 0 {
		input.Rows = 24
	}

	id := uuid.NewString()
	if err := t.Manager.Create(id, input.Command, input.Args, input.Cols, input.Rows); err != nil {
		return model.ErrorResult(err.Error(), nil), nil
	}
	return model.ToolResult{Success: true, Content: id, Metadata: map[string]any{"pty_id": id}}, nil
}

// PTYWriteTool sends keystrokes to a live PTY session (§4.5 write, §6.6
// special keys).
type PTYWriteTool struct {
	Manager *ptymgr.Manager
}

func (t PTYWriteTool) Name() string            { return "pty_write" }
func (t PTYWriteTool) Description() string     { return "Writes bytes or a named special key to a PTY session's stdin." }
func (t PTYWriteTool) Schema() json.RawMessage { return json.RawMessage(ptyWriteSchema) }

func (t PTYWriteTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	var input struct {
		PTYID string `json:"pty_id"`
		Data  string `json:"data"`
		Key   string `json:"key"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return model.ErrorResult("invalid arguments: "+err.Error(), nil), nil
	}

	var err error
	switch {
	case input.Key != "":
		err = t.Manager.WriteSpecialKey(input.PTYID, input.Key)
	case input.Data != "":
		err = t.Manager.Write(input.PTYID, []byte(input.Data))
	default:
		return model.ErrorResult("pty_write requires either data or key", nil), nil
	}
	if err != nil {
		return model.ErrorResult(err.Error(), nil), nil
	}
	return model.ToolResult{Success: true, Content: "ok"}, nil
}

// PTYReadTool returns a PTY session's scrollback, either the last N
// lines or everything since a previous cursor (§4.5 read).
type PTYReadTool struct {
	Manager *ptymgr.Manager
}

func (t PTYReadTool) Name() string            { return "pty_read" }
func (t PTYReadTool) Description() string     { return "Reads a PTY session's scrollback since a cursor, or its last N lines." }
func (t PTYReadTool) Schema() json.RawMessage { return json.RawMessage(ptyReadSchema) }

func (t PTYReadTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	var input struct {
		PTYID         string `json:"pty_id"`
		Lines         int    `json:"lines"`
		SinceLastRead int    `json:"since_last_read"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return model.ErrorResult("invalid arguments: "+err.Error(), nil), nil
	}

	var (
		lines []string
		next  int
		err   error
	)
	if input.Lines > 0 {
		lines, next, err = t.Manager.InitFrame(input.PTYID, input.Lines)
	} else {
		lines, next, err = t.Manager.ReadSince(input.PTYID, input.SinceLastRead)
	}
	if err != nil {
		return model.ErrorResult(err.Error(), nil), nil
	}

	return model.ToolResult{
		Success: true,
		Content: strings.Join(lines, "\n"),
		Metadata: map[string]any{
			"lines_read":     len(lines),
			"total_lines":    next,
			"last_read_line": next,
		},
	}, nil
}

// PTYCloseTool terminates a PTY session (§4.5 close).
type PTYCloseTool struct {
	Manager *ptymgr.Manager
}

func (t PTYCloseTool) Name() string            { return "pty_close" }
func (t PTYCloseTool) Description() string     { return "Terminates a PTY session and frees its resources." }
func (t PTYCloseTool) Schema() json.RawMessage { return json.RawMessage(ptyCloseSchema) }

func (t PTYCloseTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	var input struct {
		PTYID string `json:"pty_id"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return model.ErrorResult("invalid arguments: "+err.Error(), nil), nil
	}
	if err := t.Manager.Close(input.PTYID); err != nil {
		return model.ErrorResult(err.Error(), nil), nil
	}
	return model.ToolResult{Success: true, Content: fmt.Sprintf("pty %s closed", input.PTYID)}, nil
}

// RegisterPTYTools adds every PTY tool to registry, backed by manager.
func RegisterPTYTools(registry *Registry, manager *ptymgr.Manager) {
	registry.Register(PTYCreateTool{Manager: manager})
	registry.Register(PTYWriteTool{Manager: manager})
	registry.Register(PTYReadTool{Manager: manager})
	registry.Register(PTYCloseTool{Manager: manager})
}
