package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func echoTool() Tool {
	return FuncTool{
		ToolName:        "echo",
		ToolDescription: "echoes its input",
		ToolSchema:      json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Fn: func(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
			var in struct {
				Text string `json:"text"`
			}
			json.Unmarshal(args, &in)
			return model.ToolResult{Success: true, Content: in.Text}, nil
		},
	}
}

func TestDispatchUnknownToolReturnsErrorResult(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil)
	result, err := d.Dispatch(context.Background(), "s1", model.ToolCall{ID: "1", Name: "nope"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result for unknown tool")
	}
	if result.Content != "unknown_tool: nope" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
}

func TestDispatchRunsAllowedTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	d := NewDispatcher(reg, nil, nil)

	result, err := d.Dispatch(context.Background(), "s1", model.ToolCall{
		ID:        "1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Content != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatchRejectsArgumentsFailingSchema(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	d := NewDispatcher(reg, nil, nil)

	result, err := d.Dispatch(context.Background(), "s1", model.ToolCall{
		ID:        "1",
		Name:      "echo",
		Arguments: json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected schema validation failure")
	}
}

func TestDispatchDeniedByHook(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	hook := func(ctx context.Context, sessionID string, call model.ToolCall) (model.ApprovalDecision, error) {
		return model.ApprovalDeny, nil
	}
	d := NewDispatcher(reg, hook, nil)

	result, err := d.Dispatch(context.Background(), "s1", model.ToolCall{
		ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected denial")
	}
}

func TestDispatchAskReturnsErrNeedsApproval(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	hook := func(ctx context.Context, sessionID string, call model.ToolCall) (model.ApprovalDecision, error) {
		return model.ApprovalAsk, nil
	}
	d := NewDispatcher(reg, hook, nil)

	_, err := d.Dispatch(context.Background(), "s1", model.ToolCall{
		ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	if !errors.Is(err, ErrNeedsApproval) {
		t.Fatalf("expected ErrNeedsApproval, got %v", err)
	}
}

func TestDispatchRecoversFromToolPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(FuncTool{
		ToolName: "boom",
		Fn: func(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
			panic("kaboom")
		},
	})
	d := NewDispatcher(reg, nil, nil)

	result, err := d.Dispatch(context.Background(), "s1", model.ToolCall{ID: "1", Name: "boom"})
	if err != nil {
		t.Fatalf("panic must not surface as an error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result from recovered panic")
	}
}
