package dataflow

import (
	"container/heap"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
)

// Result holds the per-block IN/OUT abstract values computed by a run
// of the engine, indexed by cfg.BlockID.
type Result[T any] struct {
	In, Out map[cfg.BlockID]T
}

// item is one entry of the ranked work-list priority queue.
type item[T any] struct {
	block cfg.BlockID
	rank  int
}

type workQueue[T any] []item[T]

func (q workQueue[T]) Len() int            { return len(q) }
func (q workQueue[T]) Less(i, j int) bool  { return q[i].rank < q[j].rank }
func (q workQueue[T]) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *workQueue[T]) Push(x any)         { *q = append(*q, x.(item[T])) }
func (q *workQueue[T]) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Run drains the ranked work-list to fix-point over cf (spec.md §4.3).
// Entry is seeded with d.Init(); every other block starts at d.Bot().
// Sentinel end blocks (exit/unknown) pass their IN through unchanged;
// basic and synthetic blocks are transferred through d.Update. A
// block's successors are enqueued the first time it is processed and
// again whenever its OUT changes, so an OUT equal to d.Bot() still
// reaches the rest of the graph.
//
// Interprocedural call linking (propagating into a known callee's entry
// and the callee's exit back to the call site) is left to the domain's
// Update implementation for synthetic blocks: by the time cache/branch
// analyses run, the CFG collection has normally been virtualized
// (spec.md §4.1), so surviving synthetic blocks represent only unknown
// or recursive calls, which a sound domain degrades conservatively
// rather than chasing across CFGs.
func Run[T any](cf *cfg.CFG, rank []int, d Domain[T]) Result[T] {
	out := make(map[cfg.BlockID]T, cf.BlockCount())
	in := make(map[cfg.BlockID]T, cf.BlockCount())
	for _, b := range cf.Blocks() {
		out[b] = d.Bot()
	}

	queued := make(map[cfg.BlockID]bool, cf.BlockCount())
	visited := make(map[cfg.BlockID]bool, cf.BlockCount())
	q := &workQueue[T]{}
	push := func(b cfg.BlockID) {
		if queued[b] {
			return
		}
		queued[b] = true
		heap.Push(q, item[T]{block: b, rank: rank[cf.Block(b).Index]})
	}

	out[cf.Entry] = d.Init()
	for _, s := range cf.Successors(cf.Entry) {
		push(s)
	}

	for q.Len() > 0 {
		it := heap.Pop(q).(item[T])
		b := it.block
		queued[b] = false

		var inVal T
		preds := cf.Predecessors(b)
		first := true
		for _, p := range preds {
			if first {
				inVal = out[p]
				first = false
			} else {
				inVal = d.Join(inVal, out[p])
			}
		}
		in[b] = inVal

		var newOut T
		switch cf.Block(b).Kind {
		case cfg.KindExit, cfg.KindUnknown:
			newOut = inVal
		default:
			newOut = d.Update(b, inVal)
		}

		if !visited[b] || !d.Equals(newOut, out[b]) {
			visited[b] = true
			out[b] = newOut
			for _, s := range cf.Successors(b) {
				push(s)
			}
		}
	}

	return Result[T]{In: in, Out: out}
}

// Rank is a re-export convenience so callers of this package don't need
// to import internal/dom just to rank a CFG before calling Run.
func Rank(cf *cfg.CFG) []int { return dom.Rank(cf) }

// UnrollResult extends Result with the two abstract values a
// pseudo-unrolling run keeps at every loop header: First holds the
// value reached by entry edges alone (first iteration), Other the
// value reached by back edges (steady state). Non-header blocks carry
// the same value in both maps as in Out.
type UnrollResult[T any] struct {
	Result[T]
	First, Other map[cfg.BlockID]T
}

// RunPseudoUnroll implements the alternative fix-point driver of
// spec.md §4.3: rather than merging every predecessor's OUT into a
// single IN at a loop header, it keeps one value for the header's
// first-iteration (non-back-edge) predecessors and a second for its
// back-edge predecessors, as if the header's first iteration had been
// unrolled into its own copy. The value fed to successors (and stored
// in Result.Out) is the join of both, so a caller uninterested in the
// split still sees an ordinary fix-point; a domain that wants the
// split (e.g. PERS first-miss classification) reads First/Other
// directly.
func RunPseudoUnroll[T any](cf *cfg.CFG, rank []int, d Domain[T]) UnrollResult[T] {
	out := make(map[cfg.BlockID]T, cf.BlockCount())
	in := make(map[cfg.BlockID]T, cf.BlockCount())
	first := make(map[cfg.BlockID]T, cf.BlockCount())
	other := make(map[cfg.BlockID]T, cf.BlockCount())
	for _, b := range cf.Blocks() {
		out[b] = d.Bot()
		first[b] = d.Bot()
		other[b] = d.Bot()
	}

	visited := make(map[cfg.BlockID]bool, cf.BlockCount())
	queued := make(map[cfg.BlockID]bool, cf.BlockCount())
	q := &workQueue[T]{}
	push := func(b cfg.BlockID) {
		if queued[b] {
			return
		}
		queued[b] = true
		heap.Push(q, item[T]{block: b, rank: rank[cf.Block(b).Index]})
	}

	out[cf.Entry] = d.Init()
	for _, s := range cf.Successors(cf.Entry) {
		push(s)
	}

	for q.Len() > 0 {
		it := heap.Pop(q).(item[T])
		b := it.block
		queued[b] = false

		header := dom.IsLoopHeader(cf, b)

		var inVal, inFirst, inOther T
		var haveIn, haveFirst, haveOther bool
		for _, e := range cf.Block(b).In {
			p := cf.Edge(e).Source
			v := out[p]
			if !haveIn {
				inVal = v
				haveIn = true
			} else {
				inVal = d.Join(inVal, v)
			}
			if header && dom.IsBackEdge(cf, e) {
				if !haveOther {
					inOther = v
					haveOther = true
				} else {
					inOther = d.Join(inOther, v)
				}
			} else {
				if !haveFirst {
					inFirst = v
					haveFirst = true
				} else {
					inFirst = d.Join(inFirst, v)
				}
			}
		}
		in[b] = inVal

		var newOut, newFirst, newOther T
		switch cf.Block(b).Kind {
		case cfg.KindExit, cfg.KindUnknown:
			newOut = inVal
			newFirst = inFirst
			if haveOther {
				newOther = inOther
			} else {
				newOther = newFirst
			}
		default:
			if header {
				newFirst = d.Update(b, inFirst)
				if haveOther {
					newOther = d.Update(b, inOther)
				} else {
					newOther = newFirst
				}
				newOut = d.Join(newFirst, newOther)
			} else {
				newOut = d.Update(b, inVal)
				newFirst = newOut
				newOther = newOut
			}
		}

		changed := !visited[b] || !d.Equals(newOut, out[b])
		visited[b] = true
		out[b] = newOut
		first[b] = newFirst
		other[b] = newOther
		if changed {
			for _, s := range cf.Successors(b) {
				push(s)
			}
		}
	}

	return UnrollResult[T]{Result: Result[T]{In: in, Out: out}, First: first, Other: other}
}

// RunSelect dispatches between the two fix-point drivers on the
// PSEUDO_UNROLLING configuration knob (spec.md §6), returning just the
// merged Result either way so call sites that don't need the
// first/other split can stay agnostic to which driver ran.
func RunSelect[T any](cf *cfg.CFG, rank []int, d Domain[T], pseudoUnroll bool) Result[T] {
	if pseudoUnroll {
		return RunPseudoUnroll(cf, rank, d).Result
	}
	return Run(cf, rank, d)
}
