package provider

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var errNotAvailable = errors.New("provider unavailable")

func TestRegistryResolvesByPrefix(t *testing.T) {
	r := NewRegistry()
	ollama := NewScripted("ollama", []CompletionResponse{StopResponse("hi")}, nil)
	r.RegisterPrefix("ollama", ollama)

	p, err := r.Resolve("ollama:qwen3:8b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "ollama" {
		t.Fatalf("expected ollama provider, got %s", p.Name())
	}
}

func TestRegistryResolvesByPattern(t *testing.T) {
	r := NewRegistry()
	claude := NewScripted("anthropic", []CompletionResponse{StopResponse("hi")}, nil)
	r.RegisterPattern(regexp.MustCompile(`^claude-`), claude)

	p, err := r.Resolve("claude-sonnet-4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Fatalf("expected anthropic provider, got %s", p.Name())
	}
}

func TestRegistryResolvesByRegisteredName(t *testing.T) {
	r := NewRegistry()
	p1 := NewScripted("gpt-4o", nil, nil)
	r.Register(p1)

	p, err := r.Resolve("gpt-4o")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != p1 {
		t.Fatal("expected exact-name registration to resolve")
	}
}

func TestRegistryFallback(t *testing.T) {
	r := NewRegistry()
	fallback := NewScripted("default", nil, nil)
	r.SetFallback(fallback)

	p, err := r.Resolve("unknown-model")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p != fallback {
		t.Fatal("expected fallback provider to resolve")
	}
}

func TestRegistryNoMatchErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("unknown"); err == nil {
		t.Fatal("expected error when no provider resolves")
	}
}

func TestScriptedProviderRecordsRequests(t *testing.T) {
	p := NewScripted("fake", []CompletionResponse{StopResponse("one"), StopResponse("two")}, nil)

	resp1, err := p.CreateChatCompletion(context.Background(), CompletionRequest{Model: "fake"})
	if err != nil {
		t.Fatalf("call 1: %v", err)
	}
	msg, reason, ok := resp1.FirstChoice()
	if !ok || msg.Content != "one" || reason != "stop" {
		t.Fatalf("unexpected first response: %+v", resp1)
	}

	resp2, err := p.CreateChatCompletion(context.Background(), CompletionRequest{Model: "fake"})
	if err != nil {
		t.Fatalf("call 2: %v", err)
	}
	msg2, _, _ := resp2.FirstChoice()
	if msg2.Content != "two" {
		t.Fatalf("expected second scripted response, got %q", msg2.Content)
	}

	if len(p.Requests()) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(p.Requests()))
	}
}

func TestScriptedProviderReusesFinalResponseWhenExhausted(t *testing.T) {
	p := NewScripted("fake", []CompletionResponse{StopResponse("only")}, nil)
	for i := 0; i < 3; i++ {
		resp, err := p.CreateChatCompletion(context.Background(), CompletionRequest{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		msg, _, _ := resp.FirstChoice()
		if msg.Content != "only" {
			t.Fatalf("call %d: expected reuse of final response, got %q", i, msg.Content)
		}
	}
}

func TestScriptedProviderReturnsScriptedError(t *testing.T) {
	wantErr := errNotAvailable
	p := NewScripted("fake", []CompletionResponse{{}}, []error{wantErr})
	_, err := p.CreateChatCompletion(context.Background(), CompletionRequest{})
	if err != wantErr {
		t.Fatalf("expected scripted error, got %v", err)
	}
}
