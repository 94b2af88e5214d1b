// Package dom computes reverse-dominator bit-vectors, flags back edges
// and loop headers, derives the enclosing-loop relation, and ranks
// blocks for the monotone fix-point engine's work-list order.
package dom

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

var domID = prop.NewIdentifier[*bitset]("otawa.dom.reverse")
var backEdgeID = prop.NewIdentifier[bool]("otawa.dom.backedge")
var loopHeaderID = prop.NewIdentifier[bool]("otawa.dom.loopheader")
var enclosingID = prop.NewIdentifier[cfg.BlockID]("otawa.dom.enclosing")

// Info holds the computed dominance relation for one CFG. Once built it
// is never mutated (spec.md §3 "stored once after computation").
type Info struct {
	cf *cfg.CFG
}

// Compute runs the classical iterative bit-vector dominance fix-point
// (spec.md §4.2): dom(v) = {v} ∪ ⋂ dom(pred(v)), dom(entry) = {entry}.
// After convergence it flags back edges (sink dominates source) and
// loop headers (sinks of back edges).
func Compute(cf *cfg.CFG) *Info {
	n := cf.BlockCount()
	blocks := cf.Blocks()

	sets := make(map[cfg.BlockID]*bitset, n)
	for _, id := range blocks {
		bs := newBitset(n)
		if id == cf.Entry {
			bs.set(cf.Block(cf.Entry).Index)
		} else {
			bs.fill()
		}
		sets[id] = bs
	}

	changed := true
	for changed {
		changed = false
		for _, id := range blocks {
			if id == cf.Entry {
				continue
			}
			preds := cf.Predecessors(id)
			var result *bitset
			for _, p := range preds {
				if result == nil {
					result = sets[p].clone()
				} else {
					result.intersect(sets[p])
				}
			}
			if result == nil {
				result = newBitset(n)
			}
			result.set(cf.Block(id).Index)

			if !result.equals(sets[id]) {
				sets[id] = result
				changed = true
			}
		}
	}

	for _, id := range blocks {
		prop.Set(&cf.Block(id).Props, domID, sets[id])
	}

	for _, id := range blocks {
		blk := cf.Block(id)
		for _, eid := range blk.Out {
			e := cf.Edge(eid)
			if sets[e.Source].has(cf.Block(e.Sink).Index) {
				prop.Set(&e.Props, backEdgeID, true)
				prop.Set(&cf.Block(e.Sink).Props, loopHeaderID, true)
			}
		}
	}

	computeEnclosing(cf)

	return &Info{cf: cf}
}

// Dominates reports whether u dominates v (u ∈ dom(v)); every block
// dominates itself.
func (inf *Info) Dominates(u, v cfg.BlockID) bool {
	bs, ok := prop.Get(&inf.cf.Block(v).Props, domID)
	if !ok {
		return u == v
	}
	return bs.has(inf.cf.Block(u).Index)
}

// IsBackEdge reports whether e is a back edge (its sink dominates its
// source).
func IsBackEdge(cf *cfg.CFG, e cfg.EdgeID) bool {
	return prop.GetOr(&cf.Edge(e).Props, backEdgeID, false)
}

// IsLoopHeader reports whether b is the target of some back edge.
func IsLoopHeader(cf *cfg.CFG, b cfg.BlockID) bool {
	return prop.GetOr(&cf.Block(b).Props, loopHeaderID, false)
}

// computeEnclosing assigns each block the nearest loop header h such
// that h dominates the block and the block can reach h via a back edge
// (spec.md §4.2 ENCLOSING_LOOP_HEADER pass).
func computeEnclosing(cf *cfg.CFG) {
	headers := map[cfg.BlockID]bool{}
	for _, id := range cf.Blocks() {
		if IsLoopHeader(cf, id) {
			headers[id] = true
		}
	}

	for _, id := range cf.Blocks() {
		best := cfg.BlockID(-1)
		bestDepthDom := -1
		for h := range headers {
			if !dominatesIdx(cf, h, id) {
				continue
			}
			if !reachesViaBackEdge(cf, id, h) && id != h {
				continue
			}
			// Prefer the header with the largest dominator set (the
			// innermost, since it dominates the fewest other headers).
			size := domSetSize(cf, h)
			if size > bestDepthDom {
				bestDepthDom = size
				best = h
			}
		}
		if best != -1 {
			prop.Set(&cf.Block(id).Props, enclosingID, best)
		}
	}
}

func dominatesIdx(cf *cfg.CFG, u, v cfg.BlockID) bool {
	bs, ok := prop.Get(&cf.Block(v).Props, domID)
	if !ok {
		return u == v
	}
	return bs.has(cf.Block(u).Index)
}

func domSetSize(cf *cfg.CFG, b cfg.BlockID) int {
	bs, ok := prop.Get(&cf.Block(b).Props, domID)
	if !ok {
		return 0
	}
	n := 0
	for i := 0; i < bs.n; i++ {
		if bs.has(i) {
			n++
		}
	}
	return n
}

// reachesViaBackEdge reports whether some path from id reaches h using
// at least one back edge targeting h (a simple reverse BFS from h's
// back-edge sources).
func reachesViaBackEdge(cf *cfg.CFG, id, h cfg.BlockID) bool {
	var sources []cfg.BlockID
	for _, eid := range cf.Block(h).In {
		e := cf.Edge(eid)
		if IsBackEdge(cf, eid) {
			sources = append(sources, e.Source)
		}
	}
	if len(sources) == 0 {
		return false
	}
	seen := map[cfg.BlockID]bool{}
	queue := append([]cfg.BlockID{}, sources...)
	for _, s := range sources {
		seen[s] = true
	}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if b == id {
			return true
		}
		for _, p := range cf.Predecessors(b) {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// EnclosingLoopHeader returns the nearest enclosing loop header of b, or
// false if b is not inside any loop.
func EnclosingLoopHeader(cf *cfg.CFG, b cfg.BlockID) (cfg.BlockID, bool) {
	return prop.Get(&cf.Block(b).Props, enclosingID)
}
