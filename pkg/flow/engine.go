package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

// Engine executes a Plan through an executor Registry, wave by wave. A node
// becomes ready once every node feeding it has been processed; each wave
// activates all ready nodes in plan order, then readiness is recomputed.
type Engine struct {
	plan     *Plan
	registry Registry
	backend  llm.Client
	sink     Sink
	status   StatusFunc
	metrics  *Metrics
	parallel int

	emitMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackend sets the shared model client handed to executors.
func WithBackend(c llm.Client) Option {
	return func(e *Engine) { e.backend = c }
}

// WithSink sets the callback that receives node outputs as they are
// produced. Callbacks are serialized.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithStatus sets the callback that observes node lifecycle transitions.
func WithStatus(f StatusFunc) Option {
	return func(e *Engine) { e.status = f }
}

// WithMetrics attaches engine metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithParallelism lets up to n nodes of a wave run concurrently. n <= 1
// keeps the sequential default, where activation order within a wave is the
// plan's node order.
func WithParallelism(n int) Option {
	return func(e *Engine) { e.parallel = n }
}

// NewEngine creates an Engine for a plan. The engine is deliberately
// tolerant of malformed graphs (Validate reports them; the engine routes
// around them), so no validation happens here.
func NewEngine(plan *Plan, reg Registry, opts ...Option) (*Engine, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("executor registry must not be nil")
	}
	e := &Engine{plan: plan, registry: reg, parallel: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Result is what a run leaves behind: every recorded node output keyed by
// node id, plus the ids that never activated when the run could not finish.
type Result struct {
	Outputs     map[string]any
	Deadlocked  bool
	Unprocessed []string
}

// runState is the mutable per-run bookkeeping, shared across a wave's
// goroutines when the engine runs concurrently.
type runState struct {
	mu        sync.Mutex
	outputs   map[string]any
	processed map[string]bool
}

func (s *runState) record(id string, out any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
	if out != nil {
		s.outputs[id] = out
	}
}

func (s *runState) bag(r *router, id string) Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.inputsFor(id, s.outputs)
}

// Run executes the plan until every node is processed, the graph deadlocks,
// or ctx is cancelled. Node failures never abort the run; they are recorded
// as textual error markers in Outputs and execution continues downstream.
// The returned error is non-nil only for cancellation, and even then the
// partial Result is returned alongside it.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	r := newRouter(e.plan)
	run := &runState{
		outputs:   make(map[string]any),
		processed: make(map[string]bool),
	}

	remaining := make([]*Node, len(e.plan.Nodes))
	for i := range e.plan.Nodes {
		remaining[i] = &e.plan.Nodes[i]
	}

	slog.Info("flow starting", "nodes", len(remaining), "endpoint", e.plan.Endpoint)

	for len(remaining) > 0 {
		var wave, blocked []*Node
		for _, n := range remaining {
			if r.ready(n.ID, run.processed) {
				wave = append(wave, n)
			} else {
				blocked = append(blocked, n)
			}
		}

		// Every remaining node is waiting on something that can no longer
		// arrive: a cycle, or an edge from an id that is not in the plan.
		if len(wave) == 0 {
			ids := nodeIDs(blocked)
			slog.Error("flow deadlocked", "unprocessed", ids)
			e.metrics.runFinished(OutcomeDeadlocked)
			return &Result{Outputs: run.outputs, Deadlocked: true, Unprocessed: ids}, nil
		}

		slog.Debug("wave ready", "size", len(wave))
		e.metrics.waveObserved(len(wave))

		if err := e.runWave(ctx, r, run, wave); err != nil {
			e.metrics.runFinished(OutcomeCancelled)
			res := &Result{Outputs: run.outputs, Unprocessed: unprocessedIDs(e.plan, run)}
			return res, fmt.Errorf("flow cancelled: %w", err)
		}
		remaining = blocked
	}

	slog.Info("flow complete", "outputs", len(run.outputs))
	e.metrics.runFinished(OutcomeCompleted)
	return &Result{Outputs: run.outputs}, nil
}

// runWave activates every node of the wave, sequentially in plan order or
// concurrently when parallelism is enabled. The only error it can return is
// context cancellation.
func (e *Engine) runWave(ctx context.Context, r *router, run *runState, wave []*Node) error {
	if e.parallel > 1 && len(wave) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(e.parallel)
		for _, n := range wave {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				e.activate(ctx, r, run, n)
				return nil
			})
		}
		return g.Wait()
	}
	for _, n := range wave {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.activate(ctx, r, run, n)
	}
	return nil
}

// activate runs a single node: assemble its input bag, dispatch its
// executor, record the output, and route it. Errors become the node's
// recorded output in marker form.
func (e *Engine) activate(ctx context.Context, r *router, run *runState, n *Node) {
	e.emitStatus(n.ID, StatusRunning)
	slog.Info("executing node", "node", n.ID, "kind", n.Kind)
	start := time.Now()

	ec := &ExecContext{
		Node:    n,
		Inputs:  run.bag(r, n.ID),
		Backend: e.backend,
		sink:    e.emit,
	}
	out, err := e.dispatch(ctx, ec)
	if err != nil {
		slog.Error("node failed", "node", n.ID, "kind", n.Kind, "error", err)
		run.record(n.ID, fmt.Sprintf("Error: %v", err))
		e.metrics.nodeObserved(n.Kind, "error", time.Since(start))
		e.emitStatus(n.ID, StatusError)
		return
	}

	run.record(n.ID, out)
	e.routeOutput(r, n, out, ec.delivered)
	e.metrics.nodeObserved(n.Kind, "completed", time.Since(start))
	e.emitStatus(n.ID, StatusCompleted)
}

// dispatch resolves the node's executor and runs it. Kinds absent from the
// registry fall back to the legacy conventions: static text from config,
// then an echo of the first input, then a diagnostic string.
func (e *Engine) dispatch(ctx context.Context, ec *ExecContext) (any, error) {
	if ex, ok := e.registry.Get(ec.Node.Kind); ok {
		return ex.Execute(ctx, ec)
	}
	if txt := ec.Node.ConfigString("text"); txt != "" {
		return txt, nil
	}
	if txt := ec.Node.ConfigString("inputText"); txt != "" {
		return txt, nil
	}
	if v, ok := ec.Inputs.First(); ok {
		return v, nil
	}
	return fmt.Sprintf("Unhandled node type: %s", ec.Node.Kind), nil
}

// routeOutput forwards a node's output to the sink. Conditionals fan out
// their pass-through value to the chosen branch's targets under the target
// ids; everything else forwards under the node's own id unless the executor
// already delivered.
func (e *Engine) routeOutput(r *router, n *Node, out any, delivered bool) {
	if n.Kind == KindConditional {
		if rec, ok := branchRecord(out); ok {
			targets := r.branchTargets(n.ID, rec.Result)
			slog.Debug("conditional routed", "node", n.ID, "result", rec.Result, "targets", targets)
			for _, tgt := range targets {
				e.emit(tgt, rec.Output)
			}
			return
		}
		slog.Warn("conditional produced no branch record, routing as plain output", "node", n.ID)
	}
	if delivered || out == nil {
		return
	}
	e.emit(n.ID, out)
}

// emit forwards one output to the sink. Serialized so concurrent waves do
// not interleave host callbacks.
func (e *Engine) emit(nodeID string, output any) {
	if e.sink == nil {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.sink(nodeID, output)
}

func (e *Engine) emitStatus(nodeID string, st Status) {
	if e.status == nil {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.status(nodeID, st)
}

func nodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func unprocessedIDs(p *Plan, run *runState) []string {
	run.mu.Lock()
	defer run.mu.Unlock()
	var ids []string
	for i := range p.Nodes {
		if !run.processed[p.Nodes[i].ID] {
			ids = append(ids, p.Nodes[i].ID)
		}
	}
	return ids
}
