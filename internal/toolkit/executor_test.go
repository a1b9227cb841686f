package toolkit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func TestExecuteConcurrentlyPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(FuncTool{
		ToolName:   "slow",
		ToolSchema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
		Fn: func(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
			var in struct{ N int }
			json.Unmarshal(args, &in)
			return model.ToolResult{Success: true, Content: string(rune('a' + in.N))}, nil
		},
	})
	d := NewDispatcher(reg, nil, nil)
	exec := NewExecutor(d, ExecutorConfig{Concurrency: 2, PerToolTimeout: time.Second, MaxAttempts: 1})

	calls := make([]model.ToolCall, 5)
	for i := range calls {
		calls[i] = model.ToolCall{ID: string(rune('0' + i)), Name: "slow", Arguments: json.RawMessage(`{"n":` + string(rune('0'+i)) + `}`)}
	}

	outcomes := exec.ExecuteConcurrently(context.Background(), "s1", calls)
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(outcomes))
	}
	for i, o := range outcomes {
		if o.Call.ID != calls[i].ID {
			t.Fatalf("outcome %d out of order: got call id %s", i, o.Call.ID)
		}
	}
}

func TestExecuteConcurrentlyTimesOutSlowTool(t *testing.T) {
	reg := NewRegistry()
	reg.Register(FuncTool{
		ToolName: "hang",
		Fn: func(ctx context.Context, args json.RawMessage) (model.ToolResult, error) {
			<-ctx.Done()
			return model.ToolResult{}, ctx.Err()
		},
	})
	d := NewDispatcher(reg, nil, nil)
	exec := NewExecutor(d, ExecutorConfig{Concurrency: 1, PerToolTimeout: 20 * time.Millisecond, MaxAttempts: 1})

	outcomes := exec.ExecuteConcurrently(context.Background(), "s1", []model.ToolCall{{ID: "1", Name: "hang"}})
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if !outcomes[0].TimedOut {
		t.Fatalf("expected timeout, got %+v", outcomes[0])
	}
}

func TestExecuteConcurrentlyPropagatesNeedsApproval(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool())
	hook := func(ctx context.Context, sessionID string, call model.ToolCall) (model.ApprovalDecision, error) {
		return model.ApprovalAsk, nil
	}
	d := NewDispatcher(reg, hook, nil)
	exec := NewExecutor(d, DefaultExecutorConfig())

	outcomes := exec.ExecuteConcurrently(context.Background(), "s1", []model.ToolCall{
		{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)},
	})
	if !outcomes[0].NeedsApproval {
		t.Fatalf("expected NeedsApproval, got %+v", outcomes[0])
	}
}
