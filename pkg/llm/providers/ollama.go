package providers

import (
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

func init() {
	llm.RegisterProvider("ollama", func(model string) (llm.Client, error) {
		base := os.Getenv("OLLAMA_HOST")
		if base == "" {
			base = llm.DefaultEndpoint
		}
		return NewOllama(base, model), nil
	})
}

// NewOllama returns a Client speaking to an Ollama server through its
// OpenAI-compatible /v1 API. The endpoint is the bare server base URL
// (e.g. http://localhost:11434). Ollama ignores the API key; the SDK
// requires a non-empty one.
func NewOllama(endpoint, model string) llm.Client {
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimRight(endpoint, "/") + "/v1"
	return &openaiClient{
		sdk:      openai.NewClientWithConfig(cfg),
		model:    model,
		provider: "ollama",
	}
}
