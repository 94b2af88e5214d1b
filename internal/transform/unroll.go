package transform

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

// LoopUnroller peels the first iteration off loops that carry a
// MAX_ITERATION bound, splitting each into a "first iteration" copy and
// a "remaining iterations" copy (spec.md §4.1). Grounded on
// original_source/src/prog/cfg_Unroller.cpp's two-copy peeling scheme;
// a loop with bound 0 is left untouched.
type LoopUnroller struct {
	Coll *cfg.Collection
}

// Unroll peels every loop in cf whose header's address has a bound >= 1
// in bounds. Loops are discovered and peeled one at a time, recomputing
// dominance after each peel, until a full scan finds nothing left to
// peel (a peeled outer loop duplicates any inner loop wholesale, so an
// inner loop's own bound is applied separately on the next scan).
func (u *LoopUnroller) Unroll(cf *cfg.CFG, bounds map[uint64]int64) (*cfg.CFG, error) {
	cur := cf
	for {
		dom.Compute(cur)
		loops := dom.Loops(cur)

		var target *dom.Loop
		for _, lp := range loops {
			if lp.IsTop {
				continue
			}
			if prop.GetOr(&cur.Block(lp.Header).Props, Peeled, false) {
				continue
			}
			addr := cur.Block(lp.Header).Address()
			if n, ok := bounds[addr]; ok && n >= 1 {
				target = lp
				break
			}
		}
		if target == nil {
			return cur, nil
		}

		next, err := u.peelOnce(cur, target)
		if err != nil {
			return nil, err
		}
		cur = next
	}
}

func loopAndNestedBlocks(lp *dom.Loop) []cfg.BlockID {
	var out []cfg.BlockID
	var walk func(l *dom.Loop)
	walk = func(l *dom.Loop) {
		out = append(out, l.Blocks()...)
		for _, c := range l.Children {
			walk(c)
		}
	}
	walk(lp)
	return out
}

// peelOnce builds a new CFG where lp's blocks (and any nested loop's
// blocks) are duplicated exactly once: a "first iteration" copy that
// entry edges are redirected into and whose back edge targets the
// second copy, and a "remaining iterations" copy whose back edge
// targets itself. Blocks outside lp are cloned once, unchanged.
func (u *LoopUnroller) peelOnce(cf *cfg.CFG, lp *dom.Loop) (*cfg.CFG, error) {
	out := u.Coll.NewCFG(cf.Label, cf.Address)

	inLoop := map[cfg.BlockID]bool{lp.Header: true}
	for _, b := range loopAndNestedBlocks(lp) {
		inLoop[b] = true
	}

	blockMap := map[cfg.BlockID]cfg.BlockID{}
	firstMap := map[cfg.BlockID]cfg.BlockID{}
	secondMap := map[cfg.BlockID]cfg.BlockID{}

	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		switch blk.Kind {
		case cfg.KindBasic, cfg.KindSynthetic:
			if inLoop[id] {
				firstMap[id] = cloneBlock(u.Coll, out, blk)
				secondMap[id] = cloneBlock(u.Coll, out, blk)
			} else {
				blockMap[id] = cloneBlock(u.Coll, out, blk)
			}
		}
	}
	prop.Set(&out.Block(secondMap[lp.Header]).Props, Peeled, true)

	resolve := func(id cfg.BlockID, copy int) cfg.BlockID {
		switch id {
		case cf.Entry:
			return out.Entry
		case cf.Exit:
			return out.Exit
		case cf.Unknown:
			return out.Unknown
		}
		if inLoop[id] {
			if copy == 1 {
				return firstMap[id]
			}
			return secondMap[id]
		}
		return blockMap[id]
	}

	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		for _, eid := range blk.Out {
			e := cf.Edge(eid)
			switch {
			case !inLoop[id] && !inLoop[e.Sink]:
				u.Coll.AddEdge(e.Kind, resolve(id, 0), resolve(e.Sink, 0))
			case !inLoop[id] && inLoop[e.Sink]:
				u.Coll.AddEdge(e.Kind, resolve(id, 0), resolve(e.Sink, 1))
			case inLoop[id] && !inLoop[e.Sink]:
				u.Coll.AddEdge(e.Kind, resolve(id, 1), resolve(e.Sink, 0))
				u.Coll.AddEdge(e.Kind, resolve(id, 2), resolve(e.Sink, 0))
			default:
				if dom.IsBackEdge(cf, eid) && e.Sink == lp.Header {
					u.Coll.AddEdge(e.Kind, resolve(id, 1), resolve(e.Sink, 2))
					u.Coll.AddEdge(e.Kind, resolve(id, 2), resolve(e.Sink, 2))
				} else {
					u.Coll.AddEdge(e.Kind, resolve(id, 1), resolve(e.Sink, 1))
					u.Coll.AddEdge(e.Kind, resolve(id, 2), resolve(e.Sink, 2))
				}
			}
		}
	}

	return out, nil
}

func cloneBlock(coll *cfg.Collection, out *cfg.CFG, blk *cfg.Block) cfg.BlockID {
	if blk.Kind == cfg.KindSynthetic {
		return coll.AddSyntheticBlock(out, blk.Callee, blk.CallSite)
	}
	return coll.AddBasicBlock(out, blk.Insts)
}
