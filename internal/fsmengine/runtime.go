package fsmengine

import "github.com/mikesmullin/daemon-sub001/pkg/model"

// runtimeState is the live, in-memory bookkeeping for one assistant
// message's batch of tool calls (§4.7's tool_exec state). It is kept
// in-process rather than round-tripped through the session document's
// fsm_state_data: that field is a best-effort projection for external
// visibility and coarse crash recovery (promote to pending), not a
// faithful replay of an in-flight tool-call batch. If the engine restarts
// mid tool_exec, the batch is lost and the session is failed rather than
// guessed at — see Engine.runToolExec.
type runtimeState struct {
	toolCalls         []model.ToolCall
	results           map[string]model.ToolResult
	pendingApprovalID string
	pendingToolCallID string
}

func newRuntimeState(calls []model.ToolCall) *runtimeState {
	return &runtimeState{
		toolCalls: calls,
		results:   make(map[string]model.ToolResult, len(calls)),
	}
}

// nextUnresolved returns the first tool call (FIFO) without a recorded
// result yet.
func (r *runtimeState) nextUnresolved() (model.ToolCall, bool) {
	for _, tc := range r.toolCalls {
		if _, done := r.results[tc.ID]; !done {
			return tc, true
		}
	}
	return model.ToolCall{}, false
}

func findToolCall(calls []model.ToolCall, id string) (model.ToolCall, bool) {
	for _, tc := range calls {
		if tc.ID == id {
			return tc, true
		}
	}
	return model.ToolCall{}, false
}

// resolutionRecord is how an approval's outcome reaches the engine's
// human_input handler, whether it arrived via an explicit gateway
// decision (Engine.Approve/Deny/Reply) or a queue-side deadline expiry
// (Engine.tick's SweepExpired pass). Exactly one of result or decision is
// meaningful: a non-nil result is used verbatim (the expired-timeout
// case), otherwise decision/replyContent drive re-dispatch.
type resolutionRecord struct {
	result       *model.ToolResult
	decision     model.ApprovalDecision
	replyContent string
}
