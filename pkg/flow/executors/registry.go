// Package executors provides the built-in node palette for flows: inputs,
// model calls, conditionals, text plumbing, HTTP, and outputs.
package executors

import (
	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// Registry maps node kinds to Executor implementations. It implements the
// flow.Registry interface.
type Registry struct {
	executors map[string]flow.Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]flow.Executor)}
}

// Register associates an executor with a node kind.
func (r *Registry) Register(kind string, ex flow.Executor) {
	r.executors[kind] = ex
}

// Get returns the executor for a node kind.
func (r *Registry) Get(kind string) (flow.Executor, bool) {
	ex, ok := r.executors[kind]
	return ex, ok
}

// Defaults returns a Registry with the whole built-in palette registered.
func Defaults() *Registry {
	r := NewRegistry()
	r.Register("textInput", &TextInput{})
	r.Register("imageInput", &ImageInput{})
	r.Register(flow.KindLLMPrompt, &LLMPrompt{})
	r.Register(flow.KindStructuredLLM, &StructuredLLM{})
	r.Register(flow.KindConditional, &Conditional{})
	r.Register("concatText", &ConcatText{})
	r.Register("apiRequest", &APIRequest{})
	r.Register("jsonExtract", &JSONExtract{})
	r.Register("textOutput", &TextOutput{})
	r.Register("markdownOutput", &TextOutput{})
	return r
}
