package dcache

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cache/pers"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
)

// Level is the data-cache PERS result for one loop header, mirroring
// internal/cache/pers.Level but driven by resolved Ops instead of a
// flat per-block id list, since a RANGE access joins several ids in one
// step (spec.md §4.5).
type Level struct {
	Header cfg.BlockID
	Depth  int
	in     map[cfg.BlockID]pers.Item
}

// Persistent reports whether block id stays cached through every
// iteration of this level, as observed before b's own accesses run.
func (l *Level) Persistent(b cfg.BlockID, id uint64) bool {
	item, ok := l.in[b]
	if !ok {
		return false
	}
	_, present := item[int(id)]
	return present
}

// InDomain reports whether b belongs to this level's loop.
func (l *Level) InDomain(b cfg.BlockID) bool {
	_, ok := l.in[b]
	return ok
}

// BuildLevels computes one Level per loop header (spec.md §4.4 step 4,
// applied to data accesses). See internal/cache/pers for the entry/back
// edge merge rationale: entry edges are excluded from the header's
// merge entirely so persistence measures behavior across the remaining
// iterations, not the already-charged first-entry miss.
func BuildLevels(cf *cfg.CFG, loops []*dom.Loop, a int, accesses Accesses) []*Level {
	var levels []*Level
	for _, lp := range loops {
		if lp.IsTop {
			continue
		}
		levels = append(levels, buildLevel(cf, lp, a, accesses))
	}
	return levels
}

func buildLevel(cf *cfg.CFG, lp *dom.Loop, a int, accesses Accesses) *Level {
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

	out := map[cfg.BlockID]pers.Item{}
	in := map[cfg.BlockID]pers.Item{}
	blocks := make([]cfg.BlockID, 0, len(inLoop))
	for b := range inLoop {
		blocks = append(blocks, b)
		out[b] = pers.Item{}
		in[b] = pers.Item{}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			merged := mergeIn(cf, b, lp.Header, entryEdges, backEdges, out)
			next := merged
			for _, op := range accesses[b] {
				next = applyPers(next, op, a)
			}
			if !equalItem(merged, in[b]) || !equalItem(next, out[b]) {
				in[b] = merged
				out[b] = next
				changed = true
			}
		}
	}

	return &Level{Header: lp.Header, Depth: lp.Depth, in: in}
}

func mergeIn(cf *cfg.CFG, b, header cfg.BlockID, entryEdges, backEdges map[cfg.EdgeID]bool, out map[cfg.BlockID]pers.Item) pers.Item {
	var result pers.Item
	first := true
	for _, eid := range cf.Block(b).In {
		if b == header && entryEdges[eid] {
			continue
		}
		var contrib pers.Item
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
			result = pers.Join(result, contrib)
		}
	}
	if first {
		return pers.Item{}
	}
	return result
}

func applyPers(cur pers.Item, op Op, a int) pers.Item {
	if op.AgeAll || len(op.IDs) == 0 {
		return pers.AgeAll(cur, a)
	}
	var result pers.Item
	for i, id := range op.IDs {
		next := pers.AccessOne(cur, int(id), a)
		if i == 0 {
			result = next
		} else {
			result = pers.Join(result, next)
		}
	}
	return result
}

func cloneItem(in pers.Item) pers.Item {
	out := make(pers.Item, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func equalItem(x, y pers.Item) bool {
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
