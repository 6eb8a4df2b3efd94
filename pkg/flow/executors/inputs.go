package executors

import (
	"context"
	"fmt"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// TextInput emits the node's configured text. "inputText" is the legacy
// spelling older editors wrote.
type TextInput struct{}

func (*TextInput) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	txt := ec.Node.ConfigString("text")
	if txt == "" {
		txt = ec.Node.ConfigString("inputText")
	}
	return txt, nil
}

// ImageInput emits the node's configured image payload (base64 or a data:
// URI) for downstream vision prompts.
type ImageInput struct{}

func (*ImageInput) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	img := ec.Node.ConfigString("image")
	if img == "" {
		return nil, fmt.Errorf("image input %q has no image configured", ec.Node.ID)
	}
	return flow.ImagePayload(img), nil
}
