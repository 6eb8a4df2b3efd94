package flow

import "strconv"

// Node kinds the engine itself gives meaning to. Every other kind is an
// opaque discriminator resolved through the executor registry, so new kinds
// need no engine changes.
const (
	// KindConditional marks nodes whose outputs route by verdict.
	KindConditional = "conditionalNode"
	// KindLLMPrompt and KindStructuredLLM are the model-call kinds the plan
	// builder scans for endpoint overrides.
	KindLLMPrompt     = "llmPrompt"
	KindStructuredLLM = "structuredLLM"
)

// DefaultHandle is substituted wherever an edge omits a port name.
const DefaultHandle = "default"

// Node is a single processing step in a flow. Config carries kind-specific
// settings under the keys the editor wrote them with.
type Node struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

// ConfigString returns the config value under key when it is a string.
func (n *Node) ConfigString(key string) string {
	s, _ := n.Config[key].(string)
	return s
}

// ConfigFloat returns the config value under key as a float64. JSON numbers
// decode as float64; numeric strings are accepted too.
func (n *Node) ConfigFloat(key string) (float64, bool) {
	switch v := n.Config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ConfigBool returns the config value under key as a bool; the strings
// "true" and "false" are accepted.
func (n *Node) ConfigBool(key string) bool {
	switch v := n.Config[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Edge is a directed connection from a source node's output to a target
// node's input. Handles name the ports on either end; empty means
// DefaultHandle. Conditional sources use "true"/"false" handle groups.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Flow is a user-authored graph of nodes and edges. Node order is author
// order; the scheduler activates ready nodes in this order within a wave.
type Flow struct {
	Name  string `json:"name,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the first node with the given id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges arriving at nodeID, in definition order.
func (f *Flow) IncomingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Branch is the result shape a conditional node's executor returns. Result
// picks the outgoing handle group; Output is the value passed through to the
// chosen branch's targets.
type Branch struct {
	Result bool `json:"result"`
	Output any  `json:"output"`
}

// ImagePayload marks a node output as image data (base64 or a data: URI) so
// model-call nodes can tell it apart from prompt text.
type ImagePayload string

// branchRecord extracts a Branch from a recorded node output.
func branchRecord(v any) (Branch, bool) {
	switch rec := v.(type) {
	case Branch:
		return rec, true
	case *Branch:
		if rec != nil {
			return *rec, true
		}
	}
	return Branch{}, false
}
