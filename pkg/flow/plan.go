package flow

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// Plan is the execution snapshot built from a flow: the node list in author
// order, the edge list, and the backend endpoint the run will use.
type Plan struct {
	Name     string
	Nodes    []Node
	Edges    []Edge
	Endpoint string
}

// PlanBuilder resolves flows into Plans. The zero value is usable: Probe
// defaults to llm.Probe and the endpoints to the well-known local bases.
type PlanBuilder struct {
	// Probe checks whether a backend base URL is reachable.
	Probe func(ctx context.Context, base string) error
	// Default and Fallback replace the endpoints tried when no node
	// carries an explicit override.
	Default  string
	Fallback string
}

// Build snapshots the flow and resolves the backend endpoint. An explicit
// override on a model-call node wins without probing. Otherwise, when the
// flow contains model-call nodes, the default endpoint is probed once and
// the fallback takes over if it is dead; with neither reachable the default
// is kept so the failure surfaces on the nodes that need it.
func (b *PlanBuilder) Build(ctx context.Context, f *Flow) *Plan {
	return &Plan{
		Name:     f.Name,
		Nodes:    slices.Clone(f.Nodes),
		Edges:    slices.Clone(f.Edges),
		Endpoint: b.resolveEndpoint(ctx, f),
	}
}

func (b *PlanBuilder) resolveEndpoint(ctx context.Context, f *Flow) string {
	def := b.Default
	if def == "" {
		def = llm.DefaultEndpoint
	}

	modelCalls := false
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.Kind != KindLLMPrompt && n.Kind != KindStructuredLLM {
			continue
		}
		modelCalls = true
		for _, key := range []string{"endpoint", "ollamaUrl"} {
			if ep := n.ConfigString(key); ep != "" {
				slog.Debug("endpoint override", "node", n.ID, "endpoint", ep)
				return strings.TrimRight(ep, "/")
			}
		}
	}
	if !modelCalls {
		return def
	}

	probe := b.Probe
	if probe == nil {
		probe = llm.Probe
	}
	if err := probe(ctx, def); err == nil {
		return def
	}
	fb := b.Fallback
	if fb == "" {
		fb = llm.FallbackEndpoint
	}
	if err := probe(ctx, fb); err == nil {
		slog.Info("default endpoint unreachable, using fallback", "endpoint", fb)
		return fb
	}
	slog.Warn("no reachable model endpoint", "endpoint", def)
	return def
}
