package toolkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// ExecutorConfig tunes the concurrency, timeout, and retry behavior of a
// batch dispatch (§4.3's "concurrency-limited execution via a semaphore
// channel with per-tool timeout and retry/backoff").
type ExecutorConfig struct {
	Concurrency    int
	PerToolTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// DefaultExecutorConfig mirrors the defaults used for a single session's
// tool-call batch: four tools in flight, 30 second timeout, no retries.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
		MaxAttempts:    1,
	}
}

func (c ExecutorConfig) normalized() ExecutorConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PerToolTimeout <= 0 {
		c.PerToolTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	return c
}

// Executor runs one or more tool calls through a Dispatcher, applying
// per-call timeouts, a concurrency-limiting semaphore, and retries.
type Executor struct {
	dispatcher *Dispatcher
	config     ExecutorConfig
}

// NewExecutor builds an Executor bound to dispatcher.
func NewExecutor(dispatcher *Dispatcher, config ExecutorConfig) *Executor {
	return &Executor{dispatcher: dispatcher, config: config.normalized()}
}

// CallOutcome pairs a tool call with its dispatch result and whether it
// needs to be escalated to the approval queue.
type CallOutcome struct {
	Call          model.ToolCall
	Result        model.ToolResult
	NeedsApproval bool
	TimedOut      bool
}

// ExecuteConcurrently dispatches every call in calls under a concurrency
// semaphore, honoring ctx cancellation and per-call timeouts. Results are
// returned in the same order as calls.
func (e *Executor) ExecuteConcurrently(ctx context.Context, sessionID string, calls []model.ToolCall) []CallOutcome {
	outcomes := make([]CallOutcome, len(calls))
	sem := make(chan struct{}, e.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, call model.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[idx] = CallOutcome{Call: call, Result: model.ErrorResult("context canceled", nil)}
				return
			}
			outcomes[idx] = e.executeOne(ctx, sessionID, call)
		}(i, call)
	}

	wg.Wait()
	return outcomes
}

// ExecuteSequentially dispatches calls one at a time, used when tool order
// matters (e.g. a write followed by a read of the same resource).
func (e *Executor) ExecuteSequentially(ctx context.Context, sessionID string, calls []model.ToolCall) []CallOutcome {
	outcomes := make([]CallOutcome, len(calls))
	for i, call := range calls {
		outcomes[i] = e.executeOne(ctx, sessionID, call)
	}
	return outcomes
}

func (e *Executor) executeOne(ctx context.Context, sessionID string, call model.ToolCall) CallOutcome {
	var result model.ToolResult
	var needsApproval bool
	var timedOut bool

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		result, needsApproval, timedOut = e.dispatchWithTimeout(callCtx, sessionID, call)
		cancel()

		if needsApproval || result.Success {
			break
		}
		if attempt < e.config.MaxAttempts && e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				result = model.ErrorResult("tool execution canceled", nil)
				break
			}
		}
	}

	return CallOutcome{Call: call, Result: result, NeedsApproval: needsApproval, TimedOut: timedOut}
}

func (e *Executor) dispatchWithTimeout(ctx context.Context, sessionID string, call model.ToolCall) (model.ToolResult, bool, bool) {
	type outcome struct {
		result model.ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := e.dispatcher.Dispatch(ctx, sessionID, call)
		select {
		case done <- outcome{result: result, err: err}:
		default:
		}
	}()

	select {
	case <-ctx.Done():
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		msg := "tool execution canceled"
		if timedOut {
			msg = "tool execution timed out"
		}
		return model.ErrorResult(msg, map[string]any{"reason": "timeout"}), false, timedOut
	case o := <-done:
		if errors.Is(o.err, ErrNeedsApproval) {
			return model.ToolResult{}, true, false
		}
		return o.result, false, false
	}
}
