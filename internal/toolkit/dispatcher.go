package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// ErrNeedsApproval is returned by Dispatch when the pre-use hook's
// decision is "ask": the caller (the FSM engine) must suspend the
// session, raise an approval request, and re-dispatch once it resolves
// (§4.3 step 2, §4.6).
var ErrNeedsApproval = errors.New("toolkit: tool call requires approval")

// PreUseHook evaluates whether a tool call may proceed. It is the single
// extension point spec §4.3 calls "pre-use hook": allow lets execution
// continue untouched, deny short-circuits to a failed ToolResult, and ask
// suspends the call pending human approval.
type PreUseHook func(ctx context.Context, sessionID string, call model.ToolCall) (model.ApprovalDecision, error)

// AllowAll is the default hook used when no policy is configured.
func AllowAll(context.Context, string, model.ToolCall) (model.ApprovalDecision, error) {
	return model.ApprovalAllow, nil
}

// Dispatcher resolves a tool call to a result, implementing §4.3's
// dispatch contract end to end: unknown-tool synthesis, schema
// validation, the pre-use hook, and panic-safe execution.
type Dispatcher struct {
	registry *Registry
	hook     PreUseHook
	schemas  *schemaCompiler
	guard    ResultGuard
	logger   *slog.Logger
}

// NewDispatcher builds a Dispatcher. A nil hook defaults to AllowAll; every
// successful tool execution passes through DefaultResultGuard before
// becoming part of the session log. Use WithResultGuard to override.
func NewDispatcher(registry *Registry, hook PreUseHook, logger *slog.Logger) *Dispatcher {
	if hook == nil {
		hook = AllowAll
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		hook:     hook,
		schemas:  newSchemaCompiler(),
		guard:    DefaultResultGuard(),
		logger:   logger.With("component", "toolkit"),
	}
}

// WithResultGuard replaces the dispatcher's post-execute redaction policy.
func (d *Dispatcher) WithResultGuard(guard ResultGuard) *Dispatcher {
	d.guard = guard
	return d
}

// Dispatch runs call to completion, never returning an error from a tool's
// own failure — tool failures are expressed as a ToolResult with
// Success=false (§4.3). The only error return is ErrNeedsApproval, which
// the caller must handle by routing through the approval queue.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, call model.ToolCall) (model.ToolResult, error) {
	d.logger.Debug("dispatching tool call", "tool", call.Name, "session", sessionID, "args", marshalArgsForLog(call.Arguments))

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return model.ErrorResult(fmt.Sprintf("unknown_tool: %s", call.Name), nil), nil
	}

	if err := d.schemas.Validate(call.Name, tool.Schema(), call.Arguments); err != nil {
		return model.ErrorResult(err.Error(), map[string]any{"reason": "invalid_arguments"}), nil
	}

	decision, err := d.hook(ctx, sessionID, call)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("pre-use hook error: %v", err), nil), nil
	}
	switch decision {
	case model.ApprovalDeny:
		return model.ErrorResult("denied by approval policy", map[string]any{"reason": "denied"}), nil
	case model.ApprovalAsk:
		return model.ToolResult{}, ErrNeedsApproval
	}

	return d.executeSafely(ctx, tool, call)
}

// DispatchApproved executes call bypassing the pre-use hook. It is used
// once a human has resolved a suspended ErrNeedsApproval call (§4.9) — the
// hook already rendered its "ask" verdict for this call; re-running it
// would only suspend the call again.
func (d *Dispatcher) DispatchApproved(ctx context.Context, sessionID string, call model.ToolCall) (model.ToolResult, error) {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return model.ErrorResult(fmt.Sprintf("unknown_tool: %s", call.Name), nil), nil
	}
	return d.executeSafely(ctx, tool, call)
}

// executeSafely converts a tool panic into a failed ToolResult, so that
// one misbehaving tool can never take down the daemon (§4.3 step 3,
// §7's error-handling boundary rule).
func (d *Dispatcher) executeSafely(ctx context.Context, tool Tool, call model.ToolCall) (result model.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panicked", "tool", call.Name, "tool_call_id", call.ID, "panic", r)
			result = model.ErrorResult(fmt.Sprintf("tool %q panicked: %v", call.Name, r), map[string]any{"reason": "panic"})
			err = nil
		}
	}()

	result, execErr := tool.Execute(ctx, call.Arguments)
	if execErr != nil {
		return model.ErrorResult(execErr.Error(), map[string]any{"reason": "execution_error"}), nil
	}
	return d.guard.apply(result), nil
}

// ToolResultMessage renders a ToolResult into the Message appended to a
// session's log after dispatch (§4.3 step 3: "content is stringified").
func ToolResultMessage(call model.ToolCall, result model.ToolResult) model.Message {
	content := result.Content
	if content == "" && !result.Success {
		content = "tool execution failed"
	}
	return model.Message{
		Timestamp:  time.Now().UTC(),
		Role:       model.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
	}
}

// marshalArgsForLog is a small helper used by callers that want to log a
// tool call's arguments without risking an oversized payload.
func marshalArgsForLog(args json.RawMessage) string {
	const max = 2048
	s := string(args)
	if len(s) > max {
		return s[:max] + "...(truncated)"
	}
	return s
}
