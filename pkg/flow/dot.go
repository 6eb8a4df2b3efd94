package flow

import (
	"fmt"
	"sort"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseDOT parses a Graphviz DOT string into a Flow. The "kind" node
// attribute becomes the node kind and every other non-cosmetic attribute
// lands in the node's config as a string. Edge handles come from the
// "sourcehandle"/"targethandle" attributes; an edge "label" doubles as the
// source handle, so conditional branches read naturally as
// `cond -> a [label="true"]`.
func ParseDOT(src string) (*Flow, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// Use a custom permissive graph collector that accepts any attribute
	// name without the strict validation that gographviz.Graph performs.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	f := &Flow{Name: collector.name}

	for _, id := range collector.order {
		attrs := collector.nodes[id]
		n := Node{ID: id, Kind: attrs["kind"]}
		for k, v := range attrs {
			if k == "kind" || cosmeticAttrs[k] {
				continue
			}
			if n.Config == nil {
				n.Config = make(map[string]any)
			}
			n.Config[k] = v
		}
		f.Nodes = append(f.Nodes, n)
	}

	for _, e := range collector.edges {
		sh := e.attrs["sourcehandle"]
		if sh == "" {
			sh = e.attrs["label"]
		}
		f.Edges = append(f.Edges, Edge{
			Source:       e.from,
			Target:       e.to,
			SourceHandle: sh,
			TargetHandle: e.attrs["targethandle"],
		})
	}

	return f, nil
}

// cosmeticAttrs are Graphviz styling attributes that never carry node
// config.
var cosmeticAttrs = map[string]bool{
	"label": true, "shape": true, "style": true, "color": true,
	"fillcolor": true, "fontname": true, "fontsize": true,
	"width": true, "height": true, "pos": true,
}

// DOT renders the flow as Graphviz source, the inverse of ParseDOT.
func (f *Flow) DOT() string {
	var b strings.Builder
	name := f.Name
	if name == "" {
		name = "flow"
	}
	fmt.Fprintf(&b, "digraph %s {\n", quoteDOT(name))
	for _, n := range f.Nodes {
		attrs := []string{fmt.Sprintf("kind=%s", quoteDOT(n.Kind))}
		keys := make([]string, 0, len(n.Config))
		for k := range n.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, fmt.Sprintf("%s=%s", k, quoteDOT(Stringify(n.Config[k]))))
		}
		fmt.Fprintf(&b, "  %s [%s];\n", quoteDOT(n.ID), strings.Join(attrs, ", "))
	}
	for _, e := range f.Edges {
		var attrs []string
		if e.SourceHandle != "" {
			attrs = append(attrs, fmt.Sprintf("sourcehandle=%s", quoteDOT(e.SourceHandle)))
		}
		if e.TargetHandle != "" {
			attrs = append(attrs, fmt.Sprintf("targethandle=%s", quoteDOT(e.TargetHandle)))
		}
		fmt.Fprintf(&b, "  %s -> %s", quoteDOT(e.Source), quoteDOT(e.Target))
		if len(attrs) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(attrs, ", "))
		}
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func quoteDOT(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawDOTEdge struct {
	from, to string
	attrs    map[string]string
}

// dotCollector implements gographviz.Interface without attribute validation.
// Node definition order is preserved; it becomes the flow's node order and
// thus the in-wave activation order.
type dotCollector struct {
	name  string
	order []string
	nodes map[string]map[string]string // id → attrs
	edges []rawDOTEdge
}

func newDOTCollector() *dotCollector {
	return &dotCollector{nodes: make(map[string]map[string]string)}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.order = append(c.order, id)
		c.nodes[id] = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, attrs map[string]string) error {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = unquote(v)
	}
	c.edges = append(c.edges, rawDOTEdge{from: unquote(src), to: unquote(dst), attrs: copied})
	// Edges may reference nodes that never get their own statement.
	for _, id := range []string{unquote(src), unquote(dst)} {
		if _, ok := c.nodes[id]; !ok {
			c.order = append(c.order, id)
			c.nodes[id] = make(map[string]string)
		}
	}
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, _, _ string) error { return nil }

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// unquote strips surrounding double-quotes from a DOT attribute value and
// unescapes embedded ones.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, `\"`, `"`)
	}
	return s
}
