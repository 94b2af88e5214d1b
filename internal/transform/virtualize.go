package transform

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

// Virtualizer inlines called CFGs at their call sites, producing one
// flattened CFG for a whole task (spec.md §4.1). Grounded on
// original_source/src/prog/cfg_Virtualizer.cpp's recursion-frontier
// check: a callee already on the current inlining stack is left as a
// synthetic block instead of being expanded again.
type Virtualizer struct {
	Coll *cfg.Collection

	// Default is the inlining decision used when neither a call site's
	// NoInline flag nor the callee's InliningPolicy property says
	// otherwise (VIRTUAL_DEFAULT).
	Default bool
}

// Virtualize builds a new CFG containing entry with every inlinable
// call expanded in place. entry itself is never mutated.
func (vz *Virtualizer) Virtualize(entry *cfg.CFG) (*cfg.CFG, error) {
	out := vz.Coll.NewCFG("virtual_"+entry.Label, entry.Address)
	entrySucc, err := vz.clone(out, entry, []*cfg.CFG{entry}, out.Exit)
	if err != nil {
		return nil, err
	}
	vz.Coll.AddEdge(cfg.EdgeVirtual, out.Entry, entrySucc)
	return out, nil
}

// clone copies src's basic and non-inlined synthetic blocks into out,
// recursively inlining callees that should be expanded, and wires every
// edge accordingly. Edges that would target src's own Exit are
// redirected to exitTarget (the caller's return-site block, or out.Exit
// at the top level); edges to src's Unknown are redirected to out's
// shared Unknown sink. It returns the out-block a predecessor of src
// should connect to in place of src's entry.
func (vz *Virtualizer) clone(out *cfg.CFG, src *cfg.CFG, stack []*cfg.CFG, exitTarget cfg.BlockID) (cfg.BlockID, error) {
	blockMap := map[cfg.BlockID]cfg.BlockID{}
	redirectEntry := map[cfg.BlockID]cfg.BlockID{}
	inlined := map[cfg.BlockID]bool{}

	// Pass A: clone every basic block first, so synthetic return-site
	// lookups in pass B always find an already-mapped target.
	for _, id := range src.Blocks() {
		blk := src.Block(id)
		if blk.Kind == cfg.KindBasic {
			blockMap[id] = vz.Coll.AddBasicBlock(out, blk.Insts)
		}
	}

	// Pass B: resolve each synthetic (call) block.
	for _, id := range src.Blocks() {
		blk := src.Block(id)
		if blk.Kind != cfg.KindSynthetic {
			continue
		}
		inline, recursive := vz.shouldInline(blk, stack)
		if !inline {
			nb := vz.Coll.AddSyntheticBlock(out, blk.Callee, blk.CallSite)
			if recursive {
				prop.Set(&out.Block(nb).Props, RecursiveLoop, true)
			}
			blockMap[id] = nb
			continue
		}

		var retTarget cfg.BlockID = -1
		for _, eid := range blk.Out {
			retTarget = src.Edge(eid).Sink
		}
		var retOut cfg.BlockID
		if retTarget == src.Exit {
			retOut = exitTarget
		} else {
			retOut = blockMap[retTarget]
		}

		entrySucc, err := vz.clone(out, blk.Callee, append(append([]*cfg.CFG{}, stack...), blk.Callee), retOut)
		if err != nil {
			return -1, err
		}
		redirectEntry[id] = entrySucc
		inlined[id] = true
	}

	resolveSink := func(id cfg.BlockID) cfg.BlockID {
		switch id {
		case src.Exit:
			return exitTarget
		case src.Unknown:
			return out.Unknown
		}
		if r, ok := redirectEntry[id]; ok {
			return r
		}
		return blockMap[id]
	}

	// Pass C: wire every edge whose source is not an Entry sentinel and
	// not an inlined synthetic (whose own edges are handled inside the
	// recursive clone call above).
	for _, id := range src.Blocks() {
		if id == src.Entry {
			continue
		}
		blk := src.Block(id)
		if blk.Kind == cfg.KindSynthetic && inlined[id] {
			continue
		}
		srcOut := blockMap[id]
		for _, eid := range blk.Out {
			e := src.Edge(eid)
			vz.Coll.AddEdge(e.Kind, srcOut, resolveSink(e.Sink))
		}
	}

	entrySuccs := src.Successors(src.Entry)
	if len(entrySuccs) == 0 {
		return exitTarget, nil
	}
	return resolveSink(entrySuccs[0]), nil
}

func (vz *Virtualizer) shouldInline(blk *cfg.Block, stack []*cfg.CFG) (inline bool, recursive bool) {
	if prop.GetOr(&blk.Props, NoInline, false) {
		return false, false
	}
	if blk.Callee == nil {
		return false, false
	}
	for _, s := range stack {
		if s == blk.Callee {
			return false, true
		}
	}
	if policy, ok := prop.Get(&blk.Callee.Props, InliningPolicy); ok {
		return policy, false
	}
	return vz.Default, false
}
