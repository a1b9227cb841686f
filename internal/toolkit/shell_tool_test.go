package toolkit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func TestShellToolCapturesOutput(t *testing.T) {
	tool := ShellTool{}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Content != "hello\n" {
		t.Fatalf("unexpected output: %q", result.Content)
	}
}

func TestShellToolReportsNonZeroExit(t *testing.T) {
	tool := ShellTool{}
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"exit 3"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for non-zero exit")
	}
	if result.Metadata["exit_code"] != 3 {
		t.Fatalf("expected exit_code 3, got %+v", result.Metadata)
	}
}

func TestShellApprovalHookOnlyGuardsShellTool(t *testing.T) {
	hook := ShellApprovalHook(func(command string) model.ApprovalDecision {
		if command == "rm -rf /" {
			return model.ApprovalDeny
		}
		return model.ApprovalAllow
	})

	decision, err := hook(context.Background(), "s1", model.ToolCall{Name: "other_tool"})
	if err != nil || decision != model.ApprovalAllow {
		t.Fatalf("expected non-shell tool to pass through, got %v %v", decision, err)
	}

	decision, err = hook(context.Background(), "s1", model.ToolCall{
		Name: "execute_shell", Arguments: json.RawMessage(`{"command":"rm -rf /"}`),
	})
	if err != nil || decision != model.ApprovalDeny {
		t.Fatalf("expected deny for dangerous shell command, got %v %v", decision, err)
	}
}
