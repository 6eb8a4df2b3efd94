package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// StructuredLLM performs a model call that must come back as JSON. Providers
// with a JSON response mode are asked for it; the response is parsed
// strictly first and then run through jsonrepair, which straightens out the
// code fences and truncation models are prone to. The recorded output is the
// decoded value, not the raw text.
type StructuredLLM struct{}

func (*StructuredLLM) Execute(ctx context.Context, ec *flow.ExecContext) (any, error) {
	node := ec.Node
	if ec.Backend == nil {
		return nil, fmt.Errorf("structured llm node %q: no model backend configured", node.ID)
	}

	req, err := buildModelRequest(node, ec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("structured llm node %q: %w", node.ID, err)
	}
	req.JSONMode = true
	if schema := node.ConfigString("schema"); schema != "" {
		instr := "Respond only with a JSON value matching this schema:\n" + schema
		if req.System == "" {
			req.System = instr
		} else {
			req.System += "\n\n" + instr
		}
	}

	resp, err := ec.Backend.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("structured llm node %q: %w", node.ID, err)
	}

	parsed, err := parseModelJSON(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("structured llm node %q: %w", node.ID, err)
	}
	return parsed, nil
}

// parseModelJSON decodes model output into a structured value, repairing the
// usual blemishes when strict parsing fails.
func parseModelJSON(text string) (any, error) {
	text = strings.TrimSpace(text)
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, fmt.Errorf("unparseable JSON response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("unparseable JSON response: %w", err)
	}
	return v, nil
}
