package fsmengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikesmullin/daemon-sub001/internal/approvalqueue"
	"github.com/mikesmullin/daemon-sub001/internal/eventbus"
	"github.com/mikesmullin/daemon-sub001/internal/provider"
	"github.com/mikesmullin/daemon-sub001/internal/sessionstore"
	"github.com/mikesmullin/daemon-sub001/internal/toolkit"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
	"go.opentelemetry.io/otel/trace"
)

// TickObserver records one scheduler tick's duration against its
// session's state. *observer.Metrics satisfies this without the engine
// importing the observer package.
type TickObserver interface {
	ObserveTick(state string, d time.Duration)
}

// SpanTracer starts the spans a turn produces. *observer.Tracer satisfies
// this.
type SpanTracer interface {
	StartTick(ctx context.Context, sessionID string) (context.Context, trace.Span)
	StartLLMCall(ctx context.Context, sessionID, model string) (context.Context, trace.Span)
}

// Dependencies are the components the engine drives to resolve a session
// turn: durable storage, tool dispatch, LLM resolution, the approval
// table, and the event bus. Tools is used only to advertise tool schemas
// to the provider; dispatch itself goes through Dispatcher/Executor.
// Metrics and Tracer are both optional; a nil value disables the
// corresponding instrumentation.
type Dependencies struct {
	Store      *sessionstore.Store
	Tools      *toolkit.Registry
	Dispatcher *toolkit.Dispatcher
	Executor   *toolkit.Executor
	Providers  *provider.Registry
	Approvals  *approvalqueue.Queue
	Bus        *eventbus.Bus
	Metrics    TickObserver
	Tracer     SpanTracer
}

// Config tunes the scheduler.
type Config struct {
	// TickInterval is the scheduler period; defaults to 100ms (§4.7).
	TickInterval time.Duration
	// Mode is strict (default) or permissive transition enforcement.
	Mode Mode
	// MaxTokens is passed to every provider.CompletionRequest; zero means
	// "let the provider pick its own default."
	MaxTokens int
	// ApprovalTTL, if positive, is the deadline set on every approval
	// request this engine raises. Zero means approvals never expire on
	// their own (§4.9 treats the deadline as optional).
	ApprovalTTL time.Duration
	// ApprovedDispatchTimeout bounds a single post-approval tool
	// execution. Defaults to 30s, matching toolkit.DefaultExecutorConfig.
	ApprovedDispatchTimeout time.Duration
	Logger                  *slog.Logger
}

func (c Config) normalized() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.ApprovedDispatchTimeout <= 0 {
		c.ApprovedDispatchTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Engine is the session FSM engine of spec §4.7: a single cooperative
// scheduler that drives every non-terminal session's turn loop, with
// per-session serialization ("a single session never has two in-flight
// turns", §5) enforced by the active set below.
type Engine struct {
	deps Dependencies
	cfg  Config

	logger *slog.Logger

	mu          sync.Mutex
	active      map[string]bool
	stopFlags   map[string]bool
	runtimes    map[string]*runtimeState
	resolutions map[string]resolutionRecord
	seqs        map[string]uint64
}

// New builds an Engine. Call Store.RecoverCrashedFSMStates before Run so
// that created or success sessions whose last message is from the user
// re-enter pending.
func New(deps Dependencies, cfg Config) *Engine {
	cfg = cfg.normalized()
	return &Engine{
		deps:        deps,
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "fsmengine"),
		active:      make(map[string]bool),
		stopFlags:   make(map[string]bool),
		runtimes:    make(map[string]*runtimeState),
		resolutions: make(map[string]resolutionRecord),
		seqs:        make(map[string]uint64),
	}
}

// Run drives the scheduler until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick is one scheduler pass: sweep expired approvals, then dispatch every
// non-active, non-terminal session to its own goroutine (§5: "distinct
// sessions execute concurrently").
func (e *Engine) tick(ctx context.Context) {
	for _, expired := range e.deps.Approvals.SweepExpired(time.Now()) {
		result := approvalqueue.ExpiredResult
		e.recordResolution(expired.ID, resolutionRecord{result: &result})
		e.emit(expired.SessionID, model.EventApprovalResolved, map[string]any{
			"approval_id": expired.ID,
			"status":      "expired",
		})
	}

	summaries, err := e.deps.Store.List()
	if err != nil {
		e.logger.Error("list sessions", "error", err)
		return
	}

	for _, s := range summaries {
		if s.State.Terminal() {
			continue
		}
		id := s.ID

		e.mu.Lock()
		if e.active[id] {
			e.mu.Unlock()
			continue
		}
		e.active[id] = true
		e.mu.Unlock()

		go func(id string) {
			defer func() {
				e.mu.Lock()
				delete(e.active, id)
				e.mu.Unlock()
			}()
			e.stepSession(ctx, id)
		}(id)
	}
}

// stepSession drives one session's current state one step forward. It may
// chain several in-process transitions within a single call (e.g.
// pending→running→tool_exec). A step makes at most one model call; a
// tool_exec step dispatches the batch's tool calls one after another until
// all are resolved or one needs approval.
func (e *Engine) stepSession(ctx context.Context, id string) {
	doc, err := e.deps.Store.Load(id)
	if err != nil {
		e.logger.Error("load session", "id", id, "error", err)
		return
	}
	state := doc.Metadata.FSMState
	if state.Terminal() {
		return
	}

	if e.deps.Tracer != nil {
		var span trace.Span
		ctx, span = e.deps.Tracer.StartTick(ctx, id)
		defer span.End()
	}
	if e.deps.Metrics != nil {
		start := time.Now()
		defer func() { e.deps.Metrics.ObserveTick(string(state), time.Since(start)) }()
	}

	if e.consumeStop(id) {
		e.clearRuntime(id)
		e.transition(id, state, model.StateStopped, nil)
		return
	}

	switch state {
	case model.StateCreated, model.StatePaused, model.StateFailed:
		// no-op: created awaits external activation, paused/failed await
		// an external resume/retry (push promotes failed back to pending).
	case model.StatePending:
		e.transition(id, state, model.StateRunning, nil)
		e.emit(id, model.EventSessionStarted, nil)
		e.runModelTurn(ctx, id)
	case model.StateRunning:
		e.runRunning(ctx, id)
	case model.StateToolExec:
		e.runToolExec(ctx, id)
	case model.StateHumanInput:
		e.runHumanInput(ctx, id)
	}
}

// runRunning handles a session found in running. Most of the time this
// means "perform one model call" (runModelTurn); but a session also
// arrives here fresh out of human_input with tool calls still
// outstanding (the transition table has no human_input→tool_exec edge),
// in which case it hops straight back into tool_exec instead of calling
// the model prematurely.
func (e *Engine) runRunning(ctx context.Context, id string) {
	if rs := e.getRuntime(id); rs != nil {
		if _, ok := rs.nextUnresolved(); ok {
			e.transition(id, model.StateRunning, model.StateToolExec, nil)
			e.runToolExec(ctx, id)
			return
		}
		e.clearRuntime(id)
	}
	e.runModelTurn(ctx, id)
}

// runModelTurn performs exactly one model call and applies §4.7's
// running-state branch. The call is made without a per-call cancellation
// derived from a stop request: a stop is not force-cancelled, its result
// is discarded on arrival (§4.7 Cancellation).
func (e *Engine) runModelTurn(ctx context.Context, id string) {
	doc, err := e.deps.Store.Load(id)
	if err != nil {
		e.logger.Error("load session", "id", id, "error", err)
		return
	}

	p, err := e.deps.Providers.Resolve(doc.Metadata.Model)
	if err != nil {
		e.failSession(id, model.StateRunning, fmt.Sprintf("resolve provider for model %q: %v", doc.Metadata.Model, err))
		return
	}

	messages := model.ToProviderMessages(doc.Spec.Messages)
	if doc.Spec.SystemPrompt != "" {
		messages = append([]model.ProviderMessage{
			{Role: model.RoleSystem, Content: doc.Spec.SystemPrompt},
		}, messages...)
	}

	req := provider.CompletionRequest{
		Model:     doc.Metadata.Model,
		Messages:  messages,
		MaxTokens: e.cfg.MaxTokens,
	}
	if e.deps.Tools != nil {
		req.Tools = e.deps.Tools.Schemas()
	}

	llmCtx := ctx
	var span trace.Span
	if e.deps.Tracer != nil {
		llmCtx, span = e.deps.Tracer.StartLLMCall(ctx, id, doc.Metadata.Model)
	}
	resp, err := p.CreateChatCompletion(llmCtx, req)
	if span != nil {
		span.End()
	}

	if e.consumeStop(id) {
		e.clearRuntime(id)
		e.transition(id, model.StateRunning, model.StateStopped, nil)
		return
	}
	if err != nil {
		e.failSession(id, model.StateRunning, fmt.Sprintf("provider call failed: %v", err))
		return
	}

	choice, finishReason, ok := resp.FirstChoice()
	if !ok {
		e.failSession(id, model.StateRunning, "provider returned no choices")
		return
	}

	assistant := model.Message{
		Timestamp:    time.Now().UTC(),
		Role:         model.RoleAssistant,
		Content:      choice.Content,
		ToolCalls:    choice.ToolCalls,
		FinishReason: finishReason,
	}
	if err := e.deps.Store.AppendMessage(id, assistant); err != nil {
		e.logger.Error("persist assistant message", "id", id, "error", err)
	}
	e.emit(id, model.EventMessageAppended, map[string]any{"role": string(model.RoleAssistant)})

	switch {
	case len(choice.ToolCalls) > 0:
		e.setRuntime(id, newRuntimeState(choice.ToolCalls))
		e.transition(id, model.StateRunning, model.StateToolExec, nil)
	case finishReason == "stop":
		e.transition(id, model.StateRunning, model.StateSuccess, nil)
	default:
		e.transition(id, model.StateRunning, model.StatePending, nil)
	}
}

// runToolExec processes the current assistant message's tool calls in
// FIFO order (§4.7). It runs until either every call resolves (→running)
// or one needs approval (→human_input, suspending the batch mid-way).
func (e *Engine) runToolExec(ctx context.Context, id string) {
	rs := e.getRuntime(id)
	if rs == nil {
		e.failSession(id, model.StateToolExec, "tool_exec has no live tool-call batch (daemon restarted mid execution)")
		return
	}

	for {
		tc, ok := rs.nextUnresolved()
		if !ok {
			break
		}

		outcomes := e.deps.Executor.ExecuteSequentially(ctx, id, []model.ToolCall{tc})
		outcome := outcomes[0]

		if outcome.NeedsApproval {
			approvalID := e.nextApprovalID()
			req := model.ApprovalRequest{
				ID:         approvalID,
				SessionID:  id,
				ToolCall:   tc,
				PromptText: fmt.Sprintf("approve tool call %q?", tc.Name),
				CreatedAt:  time.Now().UTC(),
				Deadline:   e.approvalDeadline(),
			}
			if err := e.deps.Approvals.Submit(req); err != nil {
				e.failSession(id, model.StateToolExec, fmt.Sprintf("submit approval request: %v", err))
				return
			}
			rs.pendingApprovalID = approvalID
			rs.pendingToolCallID = tc.ID
			e.transition(id, model.StateToolExec, model.StateHumanInput, map[string]any{
				"approval_id":   approvalID,
				"tool_call_id":  tc.ID,
			})
			e.emit(id, model.EventApprovalRequested, map[string]any{"approval_id": approvalID, "tool": tc.Name})
			return
		}

		rs.results[tc.ID] = outcome.Result
		if err := e.deps.Store.AppendMessage(id, toolkit.ToolResultMessage(tc, outcome.Result)); err != nil {
			e.logger.Error("persist tool result", "id", id, "error", err)
		}
		e.emit(id, model.EventToolCallCompleted, map[string]any{"tool": tc.Name, "success": outcome.Result.Success})
	}

	e.clearRuntime(id)
	e.transition(id, model.StateToolExec, model.StateRunning, nil)
}

// runHumanInput is a no-op until an external approve/deny/reply (or a
// deadline sweep) deposits a resolution for the session's pending
// approval; it then resumes the suspended tool call and transitions to
// running (§4.7).
func (e *Engine) runHumanInput(ctx context.Context, id string) {
	rs := e.getRuntime(id)
	if rs == nil || rs.pendingApprovalID == "" {
		return
	}

	rec, ok := e.consumeResolution(rs.pendingApprovalID)
	if !ok {
		return
	}

	tc, found := findToolCall(rs.toolCalls, rs.pendingToolCallID)
	if !found {
		e.failSession(id, model.StateHumanInput, "resolved approval references an unknown tool call")
		return
	}

	var result model.ToolResult
	switch {
	case rec.result != nil:
		result = *rec.result
	case rec.decision == model.ApprovalDeny:
		result = model.ErrorResult("denied by approval", map[string]any{"reason": "denied"})
	case rec.replyContent != "":
		result = model.ToolResult{Success: true, Content: rec.replyContent}
	default:
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.ApprovedDispatchTimeout)
		result, _ = e.deps.Dispatcher.DispatchApproved(callCtx, id, tc)
		cancel()
	}

	rs.results[tc.ID] = result
	rs.pendingApprovalID = ""
	rs.pendingToolCallID = ""
	if err := e.deps.Store.AppendMessage(id, toolkit.ToolResultMessage(tc, result)); err != nil {
		e.logger.Error("persist tool result", "id", id, "error", err)
	}
	e.emit(id, model.EventApprovalResolved, map[string]any{"tool": tc.Name, "success": result.Success})

	e.transition(id, model.StateHumanInput, model.StateRunning, nil)
}

// failSession drops any live tool-call batch and transitions the session
// to failed, recording reason in state-data (§4.7's "FSM exceptions
// transition the session to failed with the error stored in state-data").
func (e *Engine) failSession(id string, from model.FSMState, reason string) {
	e.clearRuntime(id)
	e.logger.Error("session turn failed", "id", id, "from", from, "reason", reason)
	e.transition(id, from, model.StateFailed, map[string]any{"error": reason})
}

// transition validates and applies from→to, persisting the new state
// asynchronously relative to the caller's turn (failure is logged, not
// fatal, per §4.7) and publishing state:changed.
func (e *Engine) transition(id string, from, to model.FSMState, data map[string]any) {
	if err := CheckTransition(e.cfg.Mode, from, to, e.logger); err != nil {
		e.logger.Error("rejected invalid transition", "id", id, "from", from, "to", to)
		return
	}
	go func() {
		if err := e.deps.Store.SetFSMState(id, to, data); err != nil {
			e.logger.Error("persist fsm state", "id", id, "to", to, "error", err)
		}
	}()
	payload := map[string]any{"from": string(from), "to": string(to)}
	for k, v := range data {
		payload[k] = v
	}
	e.emit(id, model.EventStateChanged, payload)
}

// Stop requests that a session transition to stopped on its next tick
// boundary (§4.7 Cancellation). If the session currently has an in-flight
// model call, that call is allowed to finish and its result is discarded.
func (e *Engine) Stop(sessionID string) {
	e.mu.Lock()
	e.stopFlags[sessionID] = true
	e.mu.Unlock()
}

func (e *Engine) consumeStop(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopFlags[id] {
		delete(e.stopFlags, id)
		return true
	}
	return false
}

// Approve resolves a pending approval request with an allow decision,
// executing the suspended tool call on the engine's next tick for that
// session.
func (e *Engine) Approve(approvalID string) error {
	if _, err := e.deps.Approvals.Resolve(approvalID, approvalqueue.Resolution{Decision: model.ApprovalAllow}); err != nil {
		return err
	}
	e.recordResolution(approvalID, resolutionRecord{decision: model.ApprovalAllow})
	return nil
}

// Deny resolves a pending approval request with a deny decision.
func (e *Engine) Deny(approvalID string) error {
	if _, err := e.deps.Approvals.Resolve(approvalID, approvalqueue.Resolution{Decision: model.ApprovalDeny}); err != nil {
		return err
	}
	e.recordResolution(approvalID, resolutionRecord{decision: model.ApprovalDeny})
	return nil
}

// Reply resolves a pending approval request with a human-supplied answer
// used directly as the tool result content, bypassing re-execution.
func (e *Engine) Reply(approvalID, content string) error {
	if _, err := e.deps.Approvals.Resolve(approvalID, approvalqueue.Resolution{Decision: model.ApprovalAllow, ReplyContent: content}); err != nil {
		return err
	}
	e.recordResolution(approvalID, resolutionRecord{replyContent: content})
	return nil
}

func (e *Engine) recordResolution(approvalID string, rec resolutionRecord) {
	e.mu.Lock()
	e.resolutions[approvalID] = rec
	e.mu.Unlock()
}

func (e *Engine) consumeResolution(approvalID string) (resolutionRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.resolutions[approvalID]
	if ok {
		delete(e.resolutions, approvalID)
	}
	return rec, ok
}

func (e *Engine) getRuntime(id string) *runtimeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtimes[id]
}

func (e *Engine) setRuntime(id string, rs *runtimeState) {
	e.mu.Lock()
	e.runtimes[id] = rs
	e.mu.Unlock()
}

func (e *Engine) clearRuntime(id string) {
	e.mu.Lock()
	delete(e.runtimes, id)
	e.mu.Unlock()
}

// nextApprovalID mints a non-monotonic, globally unique approval id
// (spec.md's approvals are addressed by id across gateway round trips,
// not ordered against each other the way session/event ids are).
func (e *Engine) nextApprovalID() string {
	return uuid.NewString()
}

func (e *Engine) approvalDeadline() time.Time {
	if e.cfg.ApprovalTTL <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(e.cfg.ApprovalTTL)
}

func (e *Engine) emit(sessionID string, t model.EventType, data map[string]any) {
	if e.deps.Bus == nil {
		return
	}
	e.mu.Lock()
	e.seqs[sessionID]++
	seq := e.seqs[sessionID]
	e.mu.Unlock()
	e.deps.Bus.Publish(model.Event{
		Type:      t,
		SessionID: sessionID,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
