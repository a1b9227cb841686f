package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Scripted is a test double that returns a pre-programmed sequence of
// responses, one per call, regardless of the request content. It records
// every request it receives for assertions.
type Scripted struct {
	mu        sync.Mutex
	name      string
	responses []CompletionResponse
	errs      []error
	calls     int
	requests  []CompletionRequest
}

// NewScripted builds a Scripted provider that returns responses (and,
// correspondingly indexed, errs) in order; it reuses the final entry once
// the script is exhausted.
func NewScripted(name string, responses []CompletionResponse, errs []error) *Scripted {
	return &Scripted{name: name, responses: responses, errs: errs}
}

func (p *Scripted) Name() string { return p.name }

// Requests returns every request received so far, for test assertions.
func (p *Scripted) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompletionRequest(nil), p.requests...)
}

func (p *Scripted) CreateChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	idx := p.calls
	p.calls++

	if idx < len(p.errs) && p.errs[idx] != nil {
		return CompletionResponse{}, p.errs[idx]
	}
	if len(p.responses) == 0 {
		return CompletionResponse{}, fmt.Errorf("provider: scripted provider %q has no responses configured", p.name)
	}
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

// StopResponse builds a CompletionResponse that finishes the turn with
// plain assistant text and finish_reason "stop".
func StopResponse(text string) CompletionResponse {
	return CompletionResponse{
		Choices: []CompletionChoice{{
			Message:      model.ProviderMessage{Role: model.RoleAssistant, Content: text},
			FinishReason: "stop",
		}},
	}
}

// ToolCallResponse builds a CompletionResponse requesting one or more tool
// calls, finish_reason "tool_calls".
func ToolCallResponse(text string, calls ...model.ToolCall) CompletionResponse {
	return CompletionResponse{
		Choices: []CompletionChoice{{
			Message: model.ProviderMessage{
				Role:      model.RoleAssistant,
				Content:   text,
				ToolCalls: calls,
			},
			FinishReason: "tool_calls",
		}},
	}
}
