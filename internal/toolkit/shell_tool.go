package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

const shellToolSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "Shell command line to run"}
  },
  "required": ["command"],
  "additionalProperties": false
}`

// ShellTool is the built-in "execute_shell" tool (§4.2, §4.3). It never
// consults the allowlist itself — that happens in the pre-use hook, which
// runs before Execute is ever reached — it simply runs the command and
// captures output.
type ShellTool struct {
	Timeout time.Duration
}

func (t ShellTool) Name() string            { return "execute_shell" }
func (t ShellTool) Description() string     { return "Runs a shell command line and returns its combined stdout/stderr output." }
func (t ShellTool) Schema() json.RawMessage { return json.RawMessage(shellToolSchema) }

func (t ShellTool) Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return model.ErrorResult("invalid arguments: "+err.Error(), nil), nil
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", input.Command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	meta := map[string]any{"command": input.Command}
	if exitErr, ok := err.(*exec.ExitError); ok {
		meta["exit_code"] = exitErr.ExitCode()
		return model.ToolResult{Success: false, Content: out.String(), Metadata: meta}, nil
	}
	if err != nil {
		return model.ErrorResult(err.Error(), meta), nil
	}
	meta["exit_code"] = 0
	return model.ToolResult{Success: true, Content: out.String(), Metadata: meta}, nil
}

// ShellApprovalHook builds a PreUseHook that routes execute_shell calls
// through an allowlist evaluator and allows every other tool through
// untouched. It is composed with other hooks (e.g. MCP server policy) by
// the caller.
func ShellApprovalHook(evaluate func(command string) model.ApprovalDecision) PreUseHook {
	return func(ctx context.Context, sessionID string, call model.ToolCall) (model.ApprovalDecision, error) {
		if call.Name != "execute_shell" {
			return model.ApprovalAllow, nil
		}
		var input struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(call.Arguments, &input); err != nil {
			return model.ApprovalDeny, nil
		}
		return evaluate(input.Command), nil
	}
}
