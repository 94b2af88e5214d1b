package wcetdrv

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/ilp"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// InstCost returns one basic block's static execution time model: the
// per-instruction cost function supplied by the caller, summed over the
// block's instructions. A nil cost function falls back to a flat one
// cycle per instruction, the simplest time model the IPET objective
// (spec.md §4.7 step 4) can be driven with in the absence of a
// processor-pipeline model (out of scope per spec.md's non-goals).
type InstCost func(in *prog.Instruction) int64

func defaultInstCost(*prog.Instruction) int64 { return 1 }

// blockTimes computes ilp.BlockTimes over every basic block of cf using
// cost, summing each instruction's static cost.
func blockTimes(cf *cfg.CFG, cost InstCost) ilp.BlockTimes {
	if cost == nil {
		cost = defaultInstCost
	}
	out := make(ilp.BlockTimes)
	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		if blk.Kind != cfg.KindBasic {
			continue
		}
		var t int64
		for _, in := range blk.Insts {
			t += cost(in)
		}
		out[id] = t
	}
	return out
}

// instAt returns the instruction of blk starting at or covering addr,
// falling back to the block's first instruction — L-block boundaries
// split on cache-block lines, not necessarily on instruction
// boundaries, so an exact address match is not guaranteed.
func instAt(blk *cfg.Block, addr uint64) *prog.Instruction {
	for _, in := range blk.Insts {
		if addr >= in.Address && addr < in.End() {
			return in
		}
	}
	if len(blk.Insts) > 0 {
		return blk.Insts[0]
	}
	return nil
}
