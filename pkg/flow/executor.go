package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// Executor runs one node kind. Implementations receive the node, its
// assembled inputs, and the run's shared services through the ExecContext.
// The returned value is recorded as the node's output; nil records nothing.
// A returned error does not abort the run; the engine records a textual
// error marker in its place.
type Executor interface {
	Execute(ctx context.Context, ec *ExecContext) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, ec *ExecContext) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, ec *ExecContext) (any, error) {
	return f(ctx, ec)
}

// Registry resolves executors by node kind. The engine takes a Registry at
// construction; kinds it cannot resolve fall back to legacy echo handling.
type Registry interface {
	Get(kind string) (Executor, bool)
}

// Sink receives node outputs as they are produced, keyed by the node id the
// output belongs to. Conditional routing delivers pass-through values under
// the target node's id.
type Sink func(nodeID string, output any)

// Status is a node lifecycle state reported to the status callback.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// StatusFunc observes node lifecycle transitions during a run.
type StatusFunc func(nodeID string, status Status)

// ExecContext hands an executor everything a node activation may touch.
type ExecContext struct {
	// Node is the node being executed.
	Node *Node
	// Inputs is the node's input bag, assembled from upstream outputs.
	Inputs Inputs
	// Backend is the run's shared model client; nil when the host
	// configured none.
	Backend llm.Client

	sink      Sink
	delivered bool
}

// NewExecContext builds an activation context for driving an executor
// directly, outside an engine run. sink receives anything the executor
// delivers and may be nil.
func NewExecContext(n *Node, in Inputs, backend llm.Client, sink Sink) *ExecContext {
	return &ExecContext{Node: n, Inputs: in, Backend: backend, sink: sink}
}

// Delivered reports whether the executor pushed its own output to the sink.
func (ec *ExecContext) Delivered() bool {
	return ec.delivered
}

// Deliver pushes output to the host sink under this node's id and marks the
// activation self-delivered, which suppresses the engine's default forward
// after the executor returns. Streaming executors call it once per update.
func (ec *ExecContext) Deliver(output any) {
	ec.delivered = true
	if ec.sink != nil {
		ec.sink(ec.Node.ID, output)
	}
}

// Inputs is a node's input bag. Every contributing upstream value is stored
// under two keys: the source node's id and the consuming edge's target
// handle ("default" when the edge names none). Key order is incoming-edge
// order.
type Inputs struct {
	values map[string]any
	order  []string
}

// Put stores v under key, keeping first-insertion key order. The engine
// fills bags itself; hosts and tests building activations directly use it.
func (in *Inputs) Put(key string, v any) {
	if in.values == nil {
		in.values = make(map[string]any)
	}
	if _, seen := in.values[key]; !seen {
		in.order = append(in.order, key)
	}
	in.values[key] = v
}

// Get returns the value stored under key.
func (in Inputs) Get(key string) (any, bool) {
	v, ok := in.values[key]
	return v, ok
}

// String returns the value under key rendered as text, or "" when absent.
func (in Inputs) String(key string) string {
	v, ok := in.values[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// First returns the earliest input in incoming-edge order.
func (in Inputs) First() (any, bool) {
	if len(in.order) == 0 {
		return nil, false
	}
	return in.values[in.order[0]], true
}

// Len returns the number of distinct keys in the bag.
func (in Inputs) Len() int {
	return len(in.order)
}

// Keys returns the bag's keys in insertion order.
func (in Inputs) Keys() []string {
	return slices.Clone(in.order)
}

// Map returns the bag as a plain map, for template rendering.
func (in Inputs) Map() map[string]any {
	m := make(map[string]any, len(in.values))
	for k, v := range in.values {
		m[k] = v
	}
	return m
}

// Stringify renders a node output as text. Strings pass through; numbers
// drop the trailing zeros float64 decoding introduces; composite values
// render as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case ImagePayload:
		return string(t)
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
