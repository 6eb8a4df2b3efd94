package executors

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// Conditional compares its first input against the configured "value" using
// the configured "operator" and returns a branch record; the engine routes
// the input onward along the chosen branch.
//
// Operators: equals, notEquals, contains, notContains, greaterThan,
// lessThan, isEmpty, isNotEmpty.
type Conditional struct{}

func (*Conditional) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	node := ec.Node
	op := node.ConfigString("operator")
	if op == "" {
		op = "equals"
	}
	operand := node.ConfigString("value")

	v, _ := ec.Inputs.First()
	input := flow.Stringify(v)

	result, err := evaluate(op, input, operand)
	if err != nil {
		return nil, fmt.Errorf("conditional node %q: %w", node.ID, err)
	}
	slog.Debug("conditional evaluated", "node", node.ID, "operator", op, "result", result)
	return flow.Branch{Result: result, Output: v}, nil
}

// evaluate applies one comparison operator. Ordering operators compare
// numerically when both sides parse as numbers, lexicographically otherwise.
func evaluate(op, input, operand string) (bool, error) {
	switch op {
	case "equals":
		return input == operand, nil
	case "notEquals":
		return input != operand, nil
	case "contains":
		return strings.Contains(input, operand), nil
	case "notContains":
		return !strings.Contains(input, operand), nil
	case "greaterThan", "lessThan":
		a, errA := strconv.ParseFloat(strings.TrimSpace(input), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(operand), 64)
		if errA != nil || errB != nil {
			if op == "greaterThan" {
				return input > operand, nil
			}
			return input < operand, nil
		}
		if op == "greaterThan" {
			return a > b, nil
		}
		return a < b, nil
	case "isEmpty":
		return strings.TrimSpace(input) == "", nil
	case "isNotEmpty":
		return strings.TrimSpace(input) != "", nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
