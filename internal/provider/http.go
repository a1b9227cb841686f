package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// HTTPProvider speaks the OpenAI-compatible chat-completions wire format
// against a local or self-hosted endpoint (Ollama, llama.cpp's server,
// vLLM, LM Studio, and similar all implement this shape). It deliberately
// uses only net/http and encoding/json: the cloud-vendor SDKs this pack
// retrieved (sashabaranov/go-openai, anthropic-sdk-go) are bound to a
// specific vendor's auth and endpoint conventions that don't fit a
// "bring your own local model server" daemon, and no generic
// OpenAI-wire-format client ships in this pack's corpus (see DESIGN.md).
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider builds an HTTPProvider named name, posting requests to
// baseURL+"/chat/completions". apiKey, if non-empty, is sent as a Bearer
// token (most local servers ignore it; Ollama's OpenAI-compat endpoint
// does not require one).
func NewHTTPProvider(name, baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewHTTPProviderFromEnv reads the API key from the named environment
// variable (empty if unset or apiKeyEnv is empty).
func NewHTTPProviderFromEnv(name, baseURL, apiKeyEnv string, timeout time.Duration) *HTTPProvider {
	var key string
	if apiKeyEnv != "" {
		key = os.Getenv(apiKeyEnv)
	}
	return NewHTTPProvider(name, baseURL, key, timeout)
}

func (p *HTTPProvider) Name() string { return p.name }

type httpChatRequest struct {
	Model     string                  `json:"model"`
	Messages  []model.ProviderMessage `json:"messages"`
	Tools     []httpToolSchema        `json:"tools,omitempty"`
	MaxTokens int                     `json:"max_tokens,omitempty"`
}

type httpToolSchema struct {
	Type     string           `json:"type"`
	Function model.ToolSchema `json:"function"`
}

func (p *HTTPProvider) CreateChatCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	body := httpChatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	for _, schema := range req.Tools {
		body.Tools = append(body.Tools, httpToolSchema{Type: "function", Function: schema})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: read response: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: status %d: %s", p.name, resp.StatusCode, string(data))
	}

	var out CompletionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return CompletionResponse{}, fmt.Errorf("provider[%s]: decode response: %w", p.name, err)
	}
	return out, nil
}
