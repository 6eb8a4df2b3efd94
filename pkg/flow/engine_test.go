package flow_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
)

// ─── stub executors ───────────────────────────────────────────────────────────

// stubRegistry resolves executors from a plain map.
type stubRegistry map[string]flow.Executor

func (r stubRegistry) Get(kind string) (flow.Executor, bool) {
	ex, ok := r[kind]
	return ex, ok
}

// emitText returns the node's "text" config value.
var emitText = flow.ExecutorFunc(func(_ context.Context, ec *flow.ExecContext) (any, error) {
	return ec.Node.ConfigString("text"), nil
})

// echoFirst returns the first input, or nothing with an empty bag.
var echoFirst = flow.ExecutorFunc(func(_ context.Context, ec *flow.ExecContext) (any, error) {
	v, ok := ec.Inputs.First()
	if !ok {
		return nil, nil
	}
	return v, nil
})

// recordExec appends activated node ids, safe for concurrent waves.
type recordExec struct {
	mu    sync.Mutex
	order []string
}

func (r *recordExec) Execute(_ context.Context, ec *flow.ExecContext) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, ec.Node.ID)
	return ec.Node.ID, nil
}

func buildPlan(t *testing.T, f *flow.Flow) *flow.Plan {
	t.Helper()
	b := flow.PlanBuilder{Probe: func(context.Context, string) error { return nil }}
	return b.Build(context.Background(), f)
}

func runFlow(t *testing.T, f *flow.Flow, reg flow.Registry, opts ...flow.Option) *flow.Result {
	t.Helper()
	eng, err := flow.NewEngine(buildPlan(t, f), reg, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// ─── Scheduling tests ─────────────────────────────────────────────────────────

func TestEngine_LinearFlow(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "a", Kind: "emit", Config: map[string]any{"text": "hello"}},
			{ID: "b", Kind: "echo"},
			{ID: "c", Kind: "echo"},
		},
		Edges: []flow.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}
	res := runFlow(t, f, stubRegistry{"emit": emitText, "echo": echoFirst})

	want := map[string]any{"a": "hello", "b": "hello", "c": "hello"}
	if diff := cmp.Diff(want, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if res.Deadlocked {
		t.Error("unexpected deadlock")
	}
}

func TestEngine_WaveOrder(t *testing.T) {
	// Diamond: a feeds b and c, which both feed d. The middle wave must
	// activate b before c because that is their node order.
	rec := &recordExec{}
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "a", Kind: "rec"},
			{ID: "b", Kind: "rec"},
			{ID: "c", Kind: "rec"},
			{ID: "d", Kind: "rec"},
		},
		Edges: []flow.Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	}
	runFlow(t, f, stubRegistry{"rec": rec})

	want := []string{"a", "b", "c", "d"}
	if diff := cmp.Diff(want, rec.order); diff != "" {
		t.Errorf("activation order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_InputBagDoubleKeyed(t *testing.T) {
	join := flow.ExecutorFunc(func(_ context.Context, ec *flow.ExecContext) (any, error) {
		// Values are reachable both by target handle and by source id.
		if got := ec.Inputs.String("l"); got != "L" {
			t.Errorf(`Inputs.String("l") = %q, want "L"`, got)
		}
		if got := ec.Inputs.String("right"); got != "R" {
			t.Errorf(`Inputs.String("right") = %q, want "R"`, got)
		}
		return ec.Inputs.String("left") + "|" + ec.Inputs.String("right"), nil
	})
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "l", Kind: "emit", Config: map[string]any{"text": "L"}},
			{ID: "r", Kind: "emit", Config: map[string]any{"text": "R"}},
			{ID: "j", Kind: "join"},
		},
		Edges: []flow.Edge{
			{Source: "l", Target: "j", TargetHandle: "left"},
			{Source: "r", Target: "j", TargetHandle: "right"},
		},
	}
	res := runFlow(t, f, stubRegistry{"emit": emitText, "join": join})

	if got := res.Outputs["j"]; got != "L|R" {
		t.Errorf("j = %v, want L|R", got)
	}
}

// ─── Conditional routing tests ────────────────────────────────────────────────

func condRegistry() stubRegistry {
	return stubRegistry{
		"emit": emitText,
		"out":  echoFirst,
		flow.KindConditional: flow.ExecutorFunc(func(_ context.Context, ec *flow.ExecContext) (any, error) {
			v, _ := ec.Inputs.First()
			return flow.Branch{Result: v == "hello", Output: v}, nil
		}),
	}
}

func branchFlow(input string) *flow.Flow {
	return &flow.Flow{
		Nodes: []flow.Node{
			{ID: "in", Kind: "emit", Config: map[string]any{"text": input}},
			{ID: "cond", Kind: flow.KindConditional},
			{ID: "t", Kind: "out"},
			{ID: "f", Kind: "out"},
		},
		Edges: []flow.Edge{
			{Source: "in", Target: "cond"},
			{Source: "cond", Target: "t", SourceHandle: "true-out"},
			{Source: "cond", Target: "f", SourceHandle: "false-out"},
		},
	}
}

func TestEngine_ConditionalTrueBranch(t *testing.T) {
	var mu sync.Mutex
	sunk := map[string][]any{}
	sink := func(id string, out any) {
		mu.Lock()
		defer mu.Unlock()
		sunk[id] = append(sunk[id], out)
	}

	res := runFlow(t, branchFlow("hello"), condRegistry(), flow.WithSink(sink))

	if got := res.Outputs["in"]; got != "hello" {
		t.Errorf("in = %v, want hello", got)
	}
	rec, ok := res.Outputs["cond"].(flow.Branch)
	if !ok {
		t.Fatalf("cond output = %T, want flow.Branch", res.Outputs["cond"])
	}
	if !rec.Result || rec.Output != "hello" {
		t.Errorf("cond = %+v, want {true hello}", rec)
	}
	if got := res.Outputs["t"]; got != "hello" {
		t.Errorf("t = %v, want hello", got)
	}
	if _, present := res.Outputs["f"]; present {
		t.Errorf("f = %v, want no recorded output", res.Outputs["f"])
	}
	if res.Deadlocked {
		t.Error("unexpected deadlock")
	}

	// t sees two deliveries: the routed pass-through, then its own
	// completion. f and the conditional itself see none.
	if want := []any{"hello", "hello"}; !cmp.Equal(want, sunk["t"]) {
		t.Errorf("sink for t = %v, want %v", sunk["t"], want)
	}
	if len(sunk["f"]) != 0 {
		t.Errorf("sink for f = %v, want none", sunk["f"])
	}
	if len(sunk["cond"]) != 0 {
		t.Errorf("sink for cond = %v, want none", sunk["cond"])
	}
}

func TestEngine_ConditionalFalseBranch(t *testing.T) {
	res := runFlow(t, branchFlow("nope"), condRegistry())

	if _, present := res.Outputs["t"]; present {
		t.Errorf("t = %v, want no recorded output", res.Outputs["t"])
	}
	if got := res.Outputs["f"]; got != "nope" {
		t.Errorf("f = %v, want nope", got)
	}
}

func TestEngine_ConditionalBareHandles(t *testing.T) {
	// Handles spelled "true"/"false" rather than "true-out"/"false-out".
	f := branchFlow("hello")
	f.Edges[1].SourceHandle = "true"
	f.Edges[2].SourceHandle = "false"

	res := runFlow(t, f, condRegistry())

	if got := res.Outputs["t"]; got != "hello" {
		t.Errorf("t = %v, want hello", got)
	}
	if _, present := res.Outputs["f"]; present {
		t.Errorf("f = %v, want no recorded output", res.Outputs["f"])
	}
}

// ─── Failure-mode tests ───────────────────────────────────────────────────────

func TestEngine_DeadlockCycle(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "a", Kind: "emit", Config: map[string]any{"text": "x"}},
			{ID: "b", Kind: "echo"},
			{ID: "c", Kind: "emit", Config: map[string]any{"text": "free"}},
		},
		Edges: []flow.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	res := runFlow(t, f, stubRegistry{"emit": emitText, "echo": echoFirst})

	if !res.Deadlocked {
		t.Fatal("expected deadlock")
	}
	if diff := cmp.Diff([]string{"a", "b"}, res.Unprocessed); diff != "" {
		t.Errorf("unprocessed mismatch (-want +got):\n%s", diff)
	}
	// The free node still ran.
	if got := res.Outputs["c"]; got != "free" {
		t.Errorf("c = %v, want free", got)
	}
}

func TestEngine_GhostSourceParksTarget(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{{ID: "x", Kind: "echo"}},
		Edges: []flow.Edge{{Source: "ghost", Target: "x"}},
	}
	res := runFlow(t, f, stubRegistry{"echo": echoFirst})

	if !res.Deadlocked {
		t.Fatal("expected deadlock")
	}
	if diff := cmp.Diff([]string{"x"}, res.Unprocessed); diff != "" {
		t.Errorf("unprocessed mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ErrorBecomesMarkerAndRunContinues(t *testing.T) {
	boom := flow.ExecutorFunc(func(context.Context, *flow.ExecContext) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "x", Kind: "boom"},
			{ID: "y", Kind: "echo"},
		},
		Edges: []flow.Edge{{Source: "x", Target: "y"}},
	}

	var statuses []flow.Status
	status := func(id string, st flow.Status) {
		if id == "x" {
			statuses = append(statuses, st)
		}
	}
	res := runFlow(t, f, stubRegistry{"boom": boom, "echo": echoFirst}, flow.WithStatus(status))

	marker, _ := res.Outputs["x"].(string)
	if !strings.HasPrefix(marker, "Error:") || !strings.Contains(marker, "boom") {
		t.Errorf("x = %q, want an Error: marker mentioning boom", marker)
	}
	// Downstream still activated and echoed the marker.
	if got := res.Outputs["y"]; got != marker {
		t.Errorf("y = %v, want %q", got, marker)
	}
	if res.Deadlocked {
		t.Error("unexpected deadlock")
	}
	if diff := cmp.Diff([]flow.Status{flow.StatusRunning, flow.StatusError}, statuses); diff != "" {
		t.Errorf("status transitions mismatch (-want +got):\n%s", diff)
	}
}

// ─── Dispatch fallback tests ──────────────────────────────────────────────────

func TestEngine_UnregisteredKindFallbacks(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "static", Kind: "mystery", Config: map[string]any{"text": "fixed"}},
			{ID: "legacy", Kind: "mystery", Config: map[string]any{"inputText": "typed"}},
			{ID: "echoed", Kind: "mystery"},
			{ID: "bare", Kind: "mystery"},
		},
		Edges: []flow.Edge{{Source: "static", Target: "echoed"}},
	}
	res := runFlow(t, f, stubRegistry{})

	if got := res.Outputs["static"]; got != "fixed" {
		t.Errorf("static = %v, want fixed", got)
	}
	if got := res.Outputs["legacy"]; got != "typed" {
		t.Errorf("legacy = %v, want typed", got)
	}
	if got := res.Outputs["echoed"]; got != "fixed" {
		t.Errorf("echoed = %v, want fixed", got)
	}
	if got := res.Outputs["bare"]; got != "Unhandled node type: mystery" {
		t.Errorf("bare = %v, want diagnostic", got)
	}
}

func TestEngine_NilOutputRecordsNothing(t *testing.T) {
	quiet := flow.ExecutorFunc(func(context.Context, *flow.ExecContext) (any, error) {
		return nil, nil
	})
	f := &flow.Flow{
		Nodes: []flow.Node{{ID: "q", Kind: "quiet"}},
	}

	var sunk int
	sink := func(string, any) { sunk++ }
	res := runFlow(t, f, stubRegistry{"quiet": quiet}, flow.WithSink(sink))

	if _, present := res.Outputs["q"]; present {
		t.Errorf("q = %v, want no recorded output", res.Outputs["q"])
	}
	if sunk != 0 {
		t.Errorf("sink calls = %d, want 0", sunk)
	}
}

func TestEngine_SelfDeliveredSkipsDefaultForward(t *testing.T) {
	streamer := flow.ExecutorFunc(func(_ context.Context, ec *flow.ExecContext) (any, error) {
		ec.Deliver("hel")
		ec.Deliver("hello")
		return "hello", nil
	})
	f := &flow.Flow{
		Nodes: []flow.Node{{ID: "s", Kind: "stream"}},
	}

	var got []any
	sink := func(id string, out any) { got = append(got, out) }
	res := runFlow(t, f, stubRegistry{"stream": streamer}, flow.WithSink(sink))

	// Two streamed updates and no third delivery from the engine.
	if diff := cmp.Diff([]any{"hel", "hello"}, got); diff != "" {
		t.Errorf("sink calls mismatch (-want +got):\n%s", diff)
	}
	if res.Outputs["s"] != "hello" {
		t.Errorf("s = %v, want hello", res.Outputs["s"])
	}
}

// ─── Lifecycle tests ──────────────────────────────────────────────────────────

func TestEngine_ContextCancelled(t *testing.T) {
	f := &flow.Flow{
		Nodes: []flow.Node{{ID: "a", Kind: "emit", Config: map[string]any{"text": "x"}}},
	}
	eng, err := flow.NewEngine(buildPlan(t, f), stubRegistry{"emit": emitText})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := eng.Run(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if res == nil {
		t.Fatal("expected partial result alongside the error")
	}
	if diff := cmp.Diff([]string{"a"}, res.Unprocessed); diff != "" {
		t.Errorf("unprocessed mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_ParallelWave(t *testing.T) {
	rec := &recordExec{}
	f := &flow.Flow{
		Nodes: []flow.Node{
			{ID: "a", Kind: "rec"},
			{ID: "b", Kind: "rec"},
			{ID: "c", Kind: "rec"},
			{ID: "d", Kind: "rec"},
		},
	}
	res := runFlow(t, f, stubRegistry{"rec": rec}, flow.WithParallelism(4))

	if len(res.Outputs) != 4 {
		t.Errorf("outputs = %d, want 4", len(res.Outputs))
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if res.Outputs[id] != id {
			t.Errorf("output %s = %v, want %s", id, res.Outputs[id], id)
		}
	}
}

func TestNewEngine_NilArgs(t *testing.T) {
	if _, err := flow.NewEngine(nil, stubRegistry{}); err == nil {
		t.Error("expected error for nil plan")
	}
	if _, err := flow.NewEngine(&flow.Plan{}, nil); err == nil {
		t.Error("expected error for nil registry")
	}
}
