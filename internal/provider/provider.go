// Package provider defines the LLM backend abstraction used by the FSM
// engine (spec §6.5) and a scripted fake implementation for tests.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// CompletionRequest is the normalized request shape §6.5 describes:
// create_chat_completion({model, messages, tools?, max_tokens?}).
type CompletionRequest struct {
	Model     string                  `json:"model"`
	Messages  []model.ProviderMessage `json:"messages"`
	Tools     []model.ToolSchema      `json:"tools,omitempty"`
	MaxTokens int                     `json:"max_tokens,omitempty"`
}

// CompletionChoice is one entry of a CompletionResponse's choices list.
type CompletionChoice struct {
	Index        int             `json:"index"`
	Message      model.ProviderMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// CompletionResponse is the normalized response shape of §4.8/§6.5. The
// engine reads only the first choice's message and finish reason.
type CompletionResponse struct {
	ID      string              `json:"id"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []CompletionChoice  `json:"choices"`
	Usage   map[string]any      `json:"usage,omitempty"`
	Metrics map[string]any      `json:"metrics,omitempty"`
}

// FirstChoice returns the first choice's message and finish reason, which
// is all the FSM engine ever reads (§4.8).
func (r CompletionResponse) FirstChoice() (model.ProviderMessage, string, bool) {
	if len(r.Choices) == 0 {
		return model.ProviderMessage{}, "", false
	}
	return r.Choices[0].Message, r.Choices[0].FinishReason, true
}

// Provider is an LLM backend. Implementations must be safe for concurrent
// use (§6.5, §5: distinct sessions may call a provider concurrently).
type Provider interface {
	Name() string
	CreateChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Registry resolves a model string to the Provider that should serve it,
// by name prefix (e.g. "ollama:qwen3:8b") or by a regex against the bare
// model name (§6.5).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	prefixes  map[string]Provider
	patterns  []patternRoute
	fallback  Provider
}

type patternRoute struct {
	re       *regexp.Regexp
	provider Provider
}

// NewRegistry builds an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		prefixes:  make(map[string]Provider),
	}
}

// Register makes p resolvable by its own Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// RegisterPrefix routes any model string beginning with "prefix:" to p.
func (r *Registry) RegisterPrefix(prefix string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = p
}

// RegisterPattern routes any bare model name matching re to p.
func (r *Registry) RegisterPattern(re *regexp.Regexp, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, patternRoute{re: re, provider: p})
}

// SetFallback configures the provider used when no prefix, pattern, or
// registered name matches.
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Resolve returns the Provider that should serve model.
func (r *Registry) Resolve(modelName string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := strings.Index(modelName, ":"); idx > 0 {
		prefix := modelName[:idx]
		if p, ok := r.prefixes[prefix]; ok {
			return p, nil
		}
	}
	for _, route := range r.patterns {
		if route.re.MatchString(modelName) {
			return route.provider, nil
		}
	}
	if p, ok := r.providers[modelName]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("provider: no provider resolves model %q", modelName)
}

// ArgumentsJSON marshals a Go value into a tool call's Arguments field,
// used by fakes and adapters that construct ToolCalls programmatically.
func ArgumentsJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
