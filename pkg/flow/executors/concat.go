package executors

import (
	"context"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// ConcatText joins the values arriving on its "left" and "right" target
// handles with the configured "separator". Missing sides join as empty
// strings.
type ConcatText struct{}

func (*ConcatText) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	sep := ec.Node.ConfigString("separator")
	return ec.Inputs.String("left") + sep + ec.Inputs.String("right"), nil
}
