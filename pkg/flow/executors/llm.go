package executors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// LLMPrompt performs a single-turn model call. The prompt comes from the
// "prompt" config, rendered as a template against the input bag when it uses
// one, with the first text input appended as context otherwise. Image inputs
// attach to the user turn. Response deltas stream to the host sink as they
// arrive.
type LLMPrompt struct{}

func (*LLMPrompt) Execute(ctx context.Context, ec *flow.ExecContext) (any, error) {
	node := ec.Node
	if ec.Backend == nil {
		return nil, fmt.Errorf("llm node %q: no model backend configured", node.ID)
	}

	req, err := buildModelRequest(node, ec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("llm node %q: %w", node.ID, err)
	}
	slog.Debug("llm prompt", "node", node.ID, "model", req.Model, "images", len(req.Images))

	stream, err := ec.Backend.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm node %q: %w", node.ID, err)
	}

	var text strings.Builder
	var final string
	for ev := range stream {
		switch ev.Type {
		case llm.StreamEventDelta:
			text.WriteString(ev.Text)
			ec.Deliver(text.String())
		case llm.StreamEventComplete:
			if ev.Response != nil {
				final = ev.Response.Text
			}
		}
	}
	if final == "" {
		final = text.String()
	}
	return final, nil
}

// buildModelRequest assembles the shared parts of a model call from node
// config and the input bag.
func buildModelRequest(node *flow.Node, in flow.Inputs) (llm.Request, error) {
	req := llm.Request{
		Model:  node.ConfigString("model"),
		System: node.ConfigString("system"),
		Images: collectImages(in),
	}
	if temp, ok := node.ConfigFloat("temperature"); ok {
		req.Temperature = float32(temp)
	}
	if mt, ok := node.ConfigFloat("maxTokens"); ok && mt > 0 {
		req.MaxTokens = int(mt)
	}

	prompt := node.ConfigString("prompt")
	switch {
	case prompt == "":
		txt, ok := firstText(in)
		if !ok && len(req.Images) == 0 {
			return req, fmt.Errorf("no prompt configured and no inputs connected")
		}
		prompt = txt
		if prompt == "" {
			prompt = "Describe this image."
		}
	case strings.Contains(prompt, "{{"):
		rendered, err := renderTemplate(prompt, in.Map())
		if err != nil {
			return req, fmt.Errorf("prompt template: %w", err)
		}
		prompt = rendered
	default:
		// Plain prompt: append the first text input as context.
		if txt, ok := firstText(in); ok && txt != "" {
			prompt = prompt + "\n\n" + txt
		}
	}
	req.Prompt = prompt
	return req, nil
}
