package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Client is the provider-agnostic LLM interface.
type Client interface {
	// Complete performs a blocking generation and returns the full response.
	Complete(ctx context.Context, req Request) (Response, error)
	// Stream starts streaming generation; events are sent on the returned channel.
	// The channel is closed when generation completes or an error occurs.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// ProviderFactory creates a Client bound to a default model within a provider.
// An empty model is allowed; requests must then carry their own Model.
type ProviderFactory func(model string) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]ProviderFactory{}
)

// RegisterProvider registers a factory function for a named provider.
// Call this from init() in provider packages.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewClient constructs a Client for the given backend reference.
// References use the form "provider:model" or a bare "provider"; in the
// latter case every request must carry its own Model.
func NewClient(ref string) (Client, error) {
	provider, model, err := ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (ref %q) — did you import the provider package?", provider, ref)
	}
	return factory(model)
}

// ParseRef splits a backend reference into provider and model parts.
// "ollama:llama3.2" → ("ollama", "llama3.2"); "ollama" → ("ollama", "").
func ParseRef(ref string) (provider, model string, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty backend reference")
	}
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		if ref[:i] == "" {
			return "", "", fmt.Errorf("backend reference %q: empty provider name", ref)
		}
		if ref[i+1:] == "" {
			return "", "", fmt.Errorf("backend reference %q: empty model name", ref)
		}
		return ref[:i], ref[i+1:], nil
	}
	return ref, "", nil
}
