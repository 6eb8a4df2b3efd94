package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// JSONExtract walks a dot-path expression into its first input. String
// inputs are parsed as JSON first; structured inputs (a decoded map or
// slice, as structuredLLM and apiRequest record) are walked directly. The
// "default" config value stands in when the path misses.
type JSONExtract struct{}

func (*JSONExtract) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	node := ec.Node
	pathStr := node.ConfigString("path")
	if pathStr == "" {
		return nil, fmt.Errorf("json extract node %q: missing required %q config", node.ID, "path")
	}

	v, ok := ec.Inputs.First()
	if !ok {
		if def := node.ConfigString("default"); def != "" {
			return def, nil
		}
		return nil, fmt.Errorf("json extract node %q: no input connected", node.ID)
	}

	root := v
	if s, isStr := v.(string); isStr {
		if err := json.Unmarshal([]byte(s), &root); err != nil {
			return nil, fmt.Errorf("json extract node %q: parse input: %w", node.ID, err)
		}
	}

	// Strip optional leading dot and split path into segments.
	clean := strings.TrimPrefix(pathStr, ".")
	val, err := walkPath(root, strings.Split(clean, "."))
	if err != nil {
		if def := node.ConfigString("default"); def != "" {
			return def, nil
		}
		return nil, fmt.Errorf("json extract node %q: path %q: %w", node.ID, pathStr, err)
	}
	return val, nil
}

// walkPath navigates a parsed JSON value following the given path segments.
// Numeric segments are used as array indices; all others as map keys.
func walkPath(v any, segments []string) (any, error) {
	cur := v
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("segment %q is not a valid array index", seg)
			}
			if idx < 0 || idx >= len(c) {
				return nil, fmt.Errorf("index %d out of range (len=%d)", idx, len(c))
			}
			cur = c[idx]
		default:
			return nil, fmt.Errorf("cannot index into %T with segment %q", cur, seg)
		}
	}
	return cur, nil
}
