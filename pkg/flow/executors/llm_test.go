package executors_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
	"github.com/ravi-parthasarathy/nodeflow/pkg/flow/executors"
	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// fakeBackend is an llm.Client that replays canned output and captures the
// request it was handed.
type fakeBackend struct {
	req    llm.Request
	text   string
	deltas []string
	err    error
}

func (f *fakeBackend) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	f.req = req
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.text, StopReason: llm.StopReasonEndTurn}, nil
}

func (f *fakeBackend) Stream(_ context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.StreamEvent, len(f.deltas)+1)
	for _, d := range f.deltas {
		ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: d}
	}
	ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &llm.Response{Text: f.text}}
	close(ch)
	return ch, nil
}

func TestLLMPrompt_StreamsAndRecords(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{deltas: []string{"he", "llo"}, text: "hello"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt, Config: map[string]any{"prompt": "greet"}}

	var sunk []any
	sink := func(_ string, out any) { sunk = append(sunk, out) }
	ec := flow.NewExecContext(node, flow.Inputs{}, backend, sink)

	out, err := (&executors.LLMPrompt{}).Execute(t.Context(), ec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %v, want hello", out)
	}
	// Each delta delivers the accumulated text so far.
	if diff := cmp.Diff([]any{"he", "hello"}, sunk); diff != "" {
		t.Errorf("sink calls mismatch (-want +got):\n%s", diff)
	}
	if !ec.Delivered() {
		t.Error("expected the executor to mark itself delivered")
	}
}

func TestLLMPrompt_AppendsInputToPlainPrompt(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "ok"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt, Config: map[string]any{"prompt": "Summarize:"}}

	var in flow.Inputs
	in.Put("doc", "a long document")
	in.Put("default", "a long document")

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, in, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Summarize:\n\na long document"
	if backend.req.Prompt != want {
		t.Errorf("prompt = %q, want %q", backend.req.Prompt, want)
	}
}

func TestLLMPrompt_TemplatePrompt(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "ok"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt, Config: map[string]any{"prompt": "Hello {{.name}}"}}

	var in flow.Inputs
	in.Put("src", "world")
	in.Put("name", "world")

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, in, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if backend.req.Prompt != "Hello world" {
		t.Errorf("prompt = %q, want %q", backend.req.Prompt, "Hello world")
	}
}

func TestLLMPrompt_FirstInputBecomesPrompt(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "ok"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt}

	var in flow.Inputs
	in.Put("src", "just this")

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, in, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if backend.req.Prompt != "just this" {
		t.Errorf("prompt = %q, want %q", backend.req.Prompt, "just this")
	}
}

func TestLLMPrompt_CollectsImages(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "a cat"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt}

	var in flow.Inputs
	in.Put("img", flow.ImagePayload("aGVsbG8="))
	in.Put("image", flow.ImagePayload("aGVsbG8="))
	in.Put("txt", "what is pictured?")

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, in, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The double-keyed payload collapses to one attachment.
	if len(backend.req.Images) != 1 || backend.req.Images[0] != "aGVsbG8=" {
		t.Errorf("images = %v, want [aGVsbG8=]", backend.req.Images)
	}
	if backend.req.Prompt != "what is pictured?" {
		t.Errorf("prompt = %q, want the text input", backend.req.Prompt)
	}
}

func TestLLMPrompt_ImageOnlyGetsDefaultPrompt(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "a cat"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt}

	var in flow.Inputs
	in.Put("img", flow.ImagePayload("aGVsbG8="))

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, in, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if backend.req.Prompt == "" {
		t.Error("expected a default prompt for an image-only call")
	}
}

func TestLLMPrompt_TuningFromConfig(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "ok"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt, Config: map[string]any{
		"prompt":      "hi",
		"model":       "llama3.2",
		"system":      "be brief",
		"temperature": 0.2,
		"maxTokens":   float64(64),
	}}

	if _, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, flow.Inputs{}, backend, nil)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	req := backend.req
	if req.Model != "llama3.2" || req.System != "be brief" {
		t.Errorf("model/system = %q/%q", req.Model, req.System)
	}
	if req.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", req.Temperature)
	}
	if req.MaxTokens != 64 {
		t.Errorf("maxTokens = %d, want 64", req.MaxTokens)
	}
}

func TestLLMPrompt_NoBackend(t *testing.T) {
	t.Parallel()
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt, Config: map[string]any{"prompt": "hi"}}
	_, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, flow.Inputs{}, nil, nil))
	if err == nil || !strings.Contains(err.Error(), "no model backend") {
		t.Errorf("err = %v, want a no-backend error", err)
	}
}

func TestLLMPrompt_NoPromptNoInputs(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{text: "ok"}
	node := &flow.Node{ID: "gen", Kind: flow.KindLLMPrompt}
	_, err := (&executors.LLMPrompt{}).Execute(t.Context(), flow.NewExecContext(node, flow.Inputs{}, backend, nil))
	if err == nil {
		t.Error("expected an error with nothing to prompt")
	}
}
