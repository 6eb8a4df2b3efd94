package flow

import (
	"fmt"
	"strings"
)

// LintError describes a structural problem in a flow.
type LintError struct {
	NodeID  string
	Message string
}

func (e LintError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
	}
	return e.Message
}

// kindRequiredConfig maps node kinds to the config keys that must be present
// (non-empty) for the node to do anything useful. The linter reports all
// missing keys across all nodes before aborting.
var kindRequiredConfig = map[string][]string{
	KindConditional: {"operator"},
	"apiRequest":    {"url"},
	"jsonExtract":   {"path"},
	"imageInput":    {"image"},
}

// Validate checks a flow for structural problems. The engine itself is
// tolerant of all of them (it routes around bad edges and reports deadlocks
// in the Result), so this is a lint surface, not a gate. Returns all
// discovered errors, not just the first.
func Validate(f *Flow) []LintError {
	var errs []LintError

	seen := make(map[string]bool, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.ID == "" {
			errs = append(errs, LintError{Message: fmt.Sprintf("node %d has an empty id", i)})
			continue
		}
		if seen[n.ID] {
			errs = append(errs, LintError{NodeID: n.ID, Message: "duplicate node id"})
		}
		seen[n.ID] = true
		if n.Kind == "" {
			errs = append(errs, LintError{NodeID: n.ID, Message: "node has no kind"})
		}
	}

	for _, e := range f.Edges {
		if e.Source == "" || e.Target == "" {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge %q→%q has an empty endpoint", e.Source, e.Target)})
			continue
		}
		if !seen[e.Source] {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown source node %q", e.Source)})
		}
		if !seen[e.Target] {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown target node %q", e.Target)})
		}
		if e.Source == e.Target {
			errs = append(errs, LintError{NodeID: e.Source, Message: "edge forms a self-loop"})
		}
	}

	// Starvation analysis: replay the scheduler's readiness rule until it
	// stabilizes. Whatever is left can never activate at run time.
	for _, id := range starvedNodes(f) {
		errs = append(errs, LintError{NodeID: id, Message: "node can never activate (cycle or missing upstream)"})
	}

	// Conditionals need at least one branch edge to route anywhere.
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Kind != KindConditional {
			continue
		}
		branched := false
		for _, e := range f.OutgoingEdges(n.ID) {
			if branchHandle(e.SourceHandle, true) || branchHandle(e.SourceHandle, false) {
				branched = true
				break
			}
		}
		if !branched {
			errs = append(errs, LintError{NodeID: n.ID, Message: "conditional node has no outgoing branch edges"})
		}
	}

	// Model-call nodes need something to say: a configured prompt or at
	// least one input edge.
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Kind != KindLLMPrompt && n.Kind != KindStructuredLLM {
			continue
		}
		if n.ConfigString("prompt") == "" && len(f.IncomingEdges(n.ID)) == 0 {
			errs = append(errs, LintError{NodeID: n.ID, Message: "model-call node has no prompt and no inputs"})
		}
	}

	// Required config checks for known node kinds.
	for i := range f.Nodes {
		errs = append(errs, ValidateNode(&f.Nodes[i])...)
	}

	return errs
}

// ValidateNode checks a single node's required config keys.
func ValidateNode(n *Node) []LintError {
	required, ok := kindRequiredConfig[n.Kind]
	if !ok {
		return nil
	}
	var errs []LintError
	for _, key := range required {
		if n.ConfigString(key) == "" {
			errs = append(errs, LintError{
				NodeID:  n.ID,
				Message: fmt.Sprintf("missing required config %q for node kind %q", key, n.Kind),
			})
		}
	}
	return errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error message listing all lint errors.
func ValidateErr(f *Flow) error {
	errs := Validate(f)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("flow validation failed:\n  %s", strings.Join(msgs, "\n  "))
}

// starvedNodes returns the ids of nodes that can never become ready, in node
// order. It iterates the same rule the engine uses: a node is satisfiable
// once every source feeding it is satisfiable.
func starvedNodes(f *Flow) []string {
	incoming := make(map[string][]string)
	for _, e := range f.Edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	processed := make(map[string]bool, len(f.Nodes))
	for changed := true; changed; {
		changed = false
		for i := range f.Nodes {
			id := f.Nodes[i].ID
			if processed[id] {
				continue
			}
			ok := true
			for _, src := range incoming[id] {
				if !processed[src] {
					ok = false
					break
				}
			}
			if ok {
				processed[id] = true
				changed = true
			}
		}
	}

	var starved []string
	for i := range f.Nodes {
		if id := f.Nodes[i].ID; !processed[id] {
			starved = append(starved, id)
		}
	}
	return starved
}
