package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Well-known Ollama base URLs. The fallback is the Docker host gateway,
// used when the engine runs inside a container and the model server on
// the host.
const (
	DefaultEndpoint  = "http://localhost:11434"
	FallbackEndpoint = "http://host.docker.internal:11434"
)

const probeTimeout = 1500 * time.Millisecond

// Probe reports whether an Ollama-compatible server answers at base.
// It issues a single short-timeout GET against the tags listing, the
// cheapest endpoint the server exposes.
func Probe(ctx context.Context, base string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := strings.TrimRight(base, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", base, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", base, resp.StatusCode)
	}
	return nil
}
