// Package pers implements the PERS abstract domain (spec.md §4.4 step 4):
// per loop-nesting level, a MUST-like item tracks whether a block stays
// persistently cached across every iteration of that level. Once an
// entry's age saturates within a level it is permanently evicted for
// that level (spec.md: "once ages reach A in a level they never
// recover"), since a second eviction means a second miss and the
// persistence guarantee (at most one miss, charged at loop entry) no
// longer holds.
package pers

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
)

// Item is one level's MUST-like abstract cache state: age[i] present
// means "still guaranteed persistently cached at this level"; absence
// means either never seen or permanently evicted.
type Item map[int]int

func cloneItem(in Item) Item {
	out := make(Item, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Level holds the persistence result for one loop header.
type Level struct {
	Header   cfg.BlockID
	Depth    int
	Accesses map[cfg.BlockID][]int
	A        int
	in       map[cfg.BlockID]Item
	out      map[cfg.BlockID]Item
}

// Persistent reports whether L-block id is proven to stay cached
// through every iteration of this level, as observed at the IN of
// block b (i.e. before b's own accesses run).
func (l *Level) Persistent(b cfg.BlockID, id int) bool {
	item, ok := l.in[b]
	if !ok {
		return false
	}
	_, present := item[id]
	return present
}

// InDomain reports whether b belongs to this level's loop (header or
// nested), i.e. whether Persistent's answer for b means anything at
// all rather than just "never visited".
func (l *Level) InDomain(b cfg.BlockID) bool {
	_, ok := l.in[b]
	return ok
}

// Build computes one Level per loop header of cf, innermost-first is
// not required by callers (they walk by Depth). accesses maps a basic
// block to the ordered L-block ids it accesses in that cache's sets;
// -1 entries are ANY accesses that age every entry.
func Build(cf *cfg.CFG, loops []*dom.Loop, a int, accesses map[cfg.BlockID][]int) []*Level {
	var levels []*Level
	for _, lp := range loops {
		if lp.IsTop {
			continue
		}
		levels = append(levels, buildLevel(cf, lp, a, accesses))
	}
	return levels
}

func buildLevel(cf *cfg.CFG, lp *dom.Loop, a int, accesses map[cfg.BlockID][]int) *Level {
	inLoop := map[cfg.BlockID]bool{}
	for _, b := range loopAndNestedBlocks(lp) {
		inLoop[b] = true
	}
	inLoop[lp.Header] = true

	entryEdges := map[cfg.EdgeID]bool{}
	backEdges := map[cfg.EdgeID]bool{}
	for _, eid := range cf.Block(lp.Header).In {
		if dom.IsBackEdge(cf, eid) {
			backEdges[eid] = true
		} else {
			entryEdges[eid] = true
		}
	}

	out := map[cfg.BlockID]Item{}
	in := map[cfg.BlockID]Item{}
	blocks := make([]cfg.BlockID, 0, len(inLoop))
	for b := range inLoop {
		blocks = append(blocks, b)
		out[b] = Item{}
		in[b] = Item{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			merged := mergeIn(cf, b, lp.Header, entryEdges, backEdges, out)
			next := update(accesses[b], merged, a)
			if !equalItem(merged, in[b]) || !equalItem(next, out[b]) {
				in[b] = merged
				out[b] = next
				changed = true
			}
		}
	}

	return &Level{Header: lp.Header, Depth: lp.Depth, Accesses: accesses, A: a, in: in, out: out}
}

// mergeIn computes the state reaching b before its own accesses run.
// enterContext(LOOP) pushes a fresh item at the header: the entry edges
// into the header are excluded from the merge entirely, so the header's
// IN is seeded purely from the back edges (bottom, {}, on the first
// local work-list pass) and evolves only from iteration to iteration.
// This is what distinguishes persistence ("stays cached across the
// remaining iterations") from the entry miss already charged by
// FIRST_MISS itself.
func mergeIn(cf *cfg.CFG, b, header cfg.BlockID, entryEdges, backEdges map[cfg.EdgeID]bool, out map[cfg.BlockID]Item) Item {
	var result Item
	first := true
	for _, eid := range cf.Block(b).In {
		if b == header && entryEdges[eid] {
			continue
		}
		var contrib Item
		switch {
		case b == header && backEdges[eid]:
			contrib = out[cf.Edge(eid).Source]
		default:
			src := cf.Edge(eid).Source
			v, ok := out[src]
			if !ok {
				continue
			}
			contrib = v
		}
		if first {
			result = cloneItem(contrib)
			first = false
		} else {
			result = joinItem(result, contrib)
		}
	}
	if first {
		return Item{}
	}
	return result
}

// joinItem is leaveContext's merge: pop each branch's item and join,
// i.e. the sound (if potentially imprecise, per spec.md §9 Open
// Questions) pointwise maximum with absence dominating, same shape as
// the MUST join.
func joinItem(x, y Item) Item { return Join(x, y) }

// Join is the package-level PERS item join, exported for the data-cache
// RANGE transfer (spec.md §4.5: "join the block-accessed transfer over
// every cache block in the range").
func Join(x, y Item) Item {
	out := Item{}
	for i, ax := range x {
		if ay, ok := y[i]; ok {
			age := ax
			if ay > age {
				age = ay
			}
			out[i] = age
		}
	}
	return out
}

func update(idxs []int, in Item, a int) Item {
	cur := cloneItem(in)
	for _, i := range idxs {
		if i < 0 {
			cur = AgeAll(cur, a)
			continue
		}
		cur = AccessOne(cur, i, a)
	}
	return cur
}

// AccessOne applies the single-block PERS transfer to id i, exported for
// the data-cache BLOCK/RANGE accesses (spec.md §4.5).
func AccessOne(cur Item, i, a int) Item {
	old, present := cur[i]
	if !present {
		old = a
	}
	next := Item{}
	for j, age := range cur {
		if j == i {
			continue
		}
		if age < old {
			age++
		}
		if age < a {
			next[j] = age
		}
	}
	next[i] = 0
	return next
}

// AgeAll ages every present entry by one, dropping those that saturate.
func AgeAll(cur Item, a int) Item {
	next := Item{}
	for j, age := range cur {
		age++
		if age < a {
			next[j] = age
		}
	}
	return next
}

func equalItem(x, y Item) bool {
	if len(x) != len(y) {
		return false
	}
	for i, a := range x {
		if b, ok := y[i]; !ok || a != b {
			return false
		}
	}
	return true
}

func loopAndNestedBlocks(lp *dom.Loop) []cfg.BlockID {
	var out []cfg.BlockID
	out = append(out, lp.Blocks()...)
	for _, c := range lp.Children {
		out = append(out, loopAndNestedBlocks(c)...)
	}
	return out
}
