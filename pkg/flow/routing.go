package flow

import (
	"sort"
	"strings"
)

// connection is one resolved input edge: where the value comes from and
// which port it lands on. Handles are normalized to DefaultHandle.
type connection struct {
	source       string
	sourceHandle string
	targetHandle string
}

// router holds the per-run lookup tables precomputed from the plan's edges.
// Edges whose endpoints are empty are dropped; edges that reference ids
// absent from the node list stay in the tables, so a target fed by a ghost
// source simply never becomes ready and surfaces in deadlock reporting.
type router struct {
	incoming map[string][]connection
	outgoing map[string]map[string][]string
}

func newRouter(p *Plan) *router {
	r := &router{
		incoming: make(map[string][]connection),
		outgoing: make(map[string]map[string][]string),
	}
	for _, e := range p.Edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		sh := e.SourceHandle
		if sh == "" {
			sh = DefaultHandle
		}
		th := e.TargetHandle
		if th == "" {
			th = DefaultHandle
		}
		r.incoming[e.Target] = append(r.incoming[e.Target], connection{
			source:       e.Source,
			sourceHandle: sh,
			targetHandle: th,
		})
		byHandle := r.outgoing[e.Source]
		if byHandle == nil {
			byHandle = make(map[string][]string)
			r.outgoing[e.Source] = byHandle
		}
		byHandle[sh] = append(byHandle[sh], e.Target)
	}
	return r
}

// ready reports whether every source feeding id has been processed.
func (r *router) ready(id string, processed map[string]bool) bool {
	for _, in := range r.incoming[id] {
		if !processed[in.source] {
			return false
		}
	}
	return true
}

// inputsFor assembles the input bag for node id from the outputs recorded so
// far. Each contributing upstream value lands under two keys: the source
// node's id and the consuming edge's target handle. Conditional records
// contribute only through edges on the chosen handle group, unwrapped to the
// pass-through value; edges on the losing group contribute nothing.
func (r *router) inputsFor(id string, outputs map[string]any) Inputs {
	var bag Inputs
	for _, in := range r.incoming[id] {
		out, ok := outputs[in.source]
		if !ok {
			continue
		}
		if rec, isBranch := branchRecord(out); isBranch {
			if !branchHandle(in.sourceHandle, rec.Result) {
				continue
			}
			out = rec.Output
		}
		bag.Put(in.source, out)
		bag.Put(in.targetHandle, out)
	}
	return bag
}

// branchTargets returns the targets of id's outgoing edges on the verdict's
// handle group. Targets keep edge order within a handle; handles are visited
// in sorted order so routing is deterministic when a flow mixes spellings.
func (r *router) branchTargets(id string, verdict bool) []string {
	byHandle := r.outgoing[id]
	if len(byHandle) == 0 {
		return nil
	}
	var handles []string
	for h := range byHandle {
		if branchHandle(h, verdict) {
			handles = append(handles, h)
		}
	}
	sort.Strings(handles)
	var targets []string
	for _, h := range handles {
		targets = append(targets, byHandle[h]...)
	}
	return targets
}

// branchHandle reports whether a source handle belongs to the verdict's
// handle group. Editors spell the handles bare ("true") or with a suffix
// ("true-out").
func branchHandle(handle string, verdict bool) bool {
	want := "false"
	if verdict {
		want = "true"
	}
	return handle == want || strings.HasPrefix(handle, want+"-")
}
