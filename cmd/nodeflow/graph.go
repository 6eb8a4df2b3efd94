package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <flow.json|flow.dot>",
		Short: "Print a human-readable summary of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "dot":
				fmt.Fprint(cmd.OutOrStdout(), f.DOT())
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(f))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen runes, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// renderText produces the human-readable summary: nodes in author order
// (the order the scheduler uses within a wave) with their config, then the
// edge list with any non-default handles.
func renderText(f *flow.Flow) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Flow: %s  (%d nodes, %d edges)\n", f.Name, len(f.Nodes), len(f.Edges))

	maxIDLen := 4 // minimum "node"
	for i := range f.Nodes {
		if len(f.Nodes[i].ID) > maxIDLen {
			maxIDLen = len(f.Nodes[i].ID)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for i := range f.Nodes {
		n := &f.Nodes[i]
		keys := make([]string, 0, len(n.Config))
		for k := range n.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, k+"="+truncate(flow.Stringify(n.Config[k]), 60))
		}
		fmt.Fprintf(&sb, "  %-*s  %-16s  %s\n", maxIDLen, n.ID, n.Kind, strings.Join(parts, " "))
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	maxFromLen := 4
	for _, e := range f.Edges {
		if len(e.Source) > maxFromLen {
			maxFromLen = len(e.Source)
		}
	}
	for _, e := range f.Edges {
		if e.SourceHandle != "" || e.TargetHandle != "" {
			fmt.Fprintf(&sb, "  %-*s  →  %s  [%s → %s]\n", maxFromLen, e.Source, e.Target,
				handleOrDefault(e.SourceHandle), handleOrDefault(e.TargetHandle))
		} else {
			fmt.Fprintf(&sb, "  %-*s  →  %s\n", maxFromLen, e.Source, e.Target)
		}
	}

	return sb.String()
}

func handleOrDefault(handle string) string {
	if handle == "" {
		return flow.DefaultHandle
	}
	return handle
}
