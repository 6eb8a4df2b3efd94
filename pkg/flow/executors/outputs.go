package executors

import (
	"context"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// TextOutput echoes its first input so the surrounding app can read the
// node's recorded value. With an empty bag it records nothing, which is what
// keeps the losing branch of a conditional out of the result map. Registered
// for both textOutput and markdownOutput; rendering is the host's concern.
type TextOutput struct{}

func (*TextOutput) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	v, ok := ec.Inputs.First()
	if !ok {
		return nil, nil
	}
	return v, nil
}
