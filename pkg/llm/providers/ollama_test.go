package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// fakeOllama stands in for an Ollama server's OpenAI-compatible API.
func fakeOllama(t *testing.T, wantModel, replyText string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if wantModel != "" && body.Model != wantModel {
			t.Errorf("model = %q, want %q", body.Model, wantModel)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   body.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": replyText},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3},
		})
	}))
}

func TestNewOllama_Complete(t *testing.T) {
	srv := fakeOllama(t, "llama3.2", "pong")
	defer srv.Close()

	client := NewOllama(srv.URL, "llama3.2")
	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "ping"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "pong" {
		t.Errorf("text = %q, want pong", resp.Text)
	}
	if resp.Usage.InputTokens != 2 {
		t.Errorf("input tokens = %d, want 2", resp.Usage.InputTokens)
	}
}

func TestNewOllama_RequestModelOverride(t *testing.T) {
	srv := fakeOllama(t, "gemma3", "ok")
	defer srv.Close()

	client := NewOllama(srv.URL, "llama3.2")
	_, err := client.Complete(context.Background(), llm.Request{Model: "gemma3", Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestNewOllama_TrailingSlashEndpoint(t *testing.T) {
	srv := fakeOllama(t, "", "ok")
	defer srv.Close()

	client := NewOllama(srv.URL+"/", "m")
	if _, err := client.Complete(context.Background(), llm.Request{Prompt: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestNewOllama_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"po"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"ng"},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte("data: " + c + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewOllama(srv.URL, "llama3.2")
	ch, err := client.Stream(context.Background(), llm.Request{Prompt: "ping"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	resp := llm.CollectStream(ch)
	if resp.Text != "pong" {
		t.Errorf("streamed text = %q, want pong", resp.Text)
	}
}
