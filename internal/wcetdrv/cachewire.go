package wcetdrv

import (
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/icache"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/dcache"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
	"github.com/statinf-otawa/otawa-sub004/internal/hw"
	"github.com/statinf-otawa/otawa-sub004/internal/ilp"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// cacheDescriptionFor converts the first hardware cache level matching
// kind ("inst", "data", or "unified" serves either) into the abstract
// cache.Description the classification packages consume, following
// spec.md §6's "missing subsystem elements are absent" rule: a missing
// level of the requested kind reports ok=false rather than a zero-value
// description that would misclassify every access as a one-line cache.
func cacheDescriptionFor(h *hw.Description, kind string) (*cache.Description, bool) {
	for _, lvl := range h.Caches {
		if lvl.Kind != kind && lvl.Kind != "unified" {
			continue
		}
		write := cache.WriteThrough
		if lvl.Write == "back" {
			write = cache.WriteBack
		}
		return &cache.Description{
			Associativity: lvl.Associativity,
			Sets:          lvl.Sets,
			BlockSize:     lvl.BlockSize,
			Write:         write,
		}, true
	}
	return nil, false
}

// missPenalty approximates a cache level's miss cost as the read
// latency of the first declared memory bank — the only timing figure
// spec.md §6's hardware description carries for backing storage — or a
// conservative constant when no bank is described.
func missPenalty(h *hw.Description) float64 {
	if len(h.MemoryBanks) > 0 {
		return float64(h.MemoryBanks[0].ReadLatency)
	}
	return 10
}

// buildICacheAccesses classifies every instruction fetch of cf against
// desc (spec.md §4.4) and packages the result as the ilp.CacheAccess
// list AssembleCache expects, one access per L-block (shared-fill
// follow-on L-blocks arrive already categorized ALWAYS_HIT by
// icache.Classify, so no further grouping is needed here).
func buildICacheAccesses(cf *cfg.CFG, desc *cache.Description, penalty float64, mode config.FirstMissLevel, pseudoUnroll bool) []ilp.CacheAccess {
	lblocks := cache.Partition(desc, cf)
	res := icache.Classify(cf, desc, mode, pseudoUnroll)

	var out []ilp.CacheAccess
	for b, lbs := range lblocks {
		blk := cf.Block(b)
		cats := res.Categories[b]
		for i, lb := range lbs {
			out = append(out, ilp.CacheAccess{
				GroupID:     fmt.Sprintf("ic_%d_%d", b, lb.ID),
				Block:       b,
				Category:    cats[i],
				MissPenalty: penalty,
				Inst:        instAt(blk, lb.Start),
			})
		}
	}
	return out
}

// buildBranchAccesses classifies every conditional control instruction
// against bht's predictor model. A header of the loop it belongs to
// sees its first-iteration outcome mispredict and is charged once per
// entry (BranchFirstUnknown, the same First-Miss shape as the
// instruction cache); a non-header branch inside a loop is assumed
// already trained by earlier iterations (BranchAlwaysHit); a branch
// outside any loop runs once and so always takes the predictor's
// static default (BranchAlwaysDefault).
func buildBranchAccesses(cf *cfg.CFG, bht hw.BHT) []ilp.BranchAccess {
	var out []ilp.BranchAccess
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind != cfg.KindBasic || len(blk.Insts) == 0 {
			continue
		}
		last := blk.Insts[len(blk.Insts)-1]
		if !last.Kind.Any(prog.IsCond) {
			continue
		}
		var taken, notTaken cfg.EdgeID = -1, -1
		for _, eid := range blk.Out {
			switch cf.Edge(eid).Kind {
			case cfg.EdgeTaken:
				taken = eid
			case cfg.EdgeNotTaken:
				notTaken = eid
			}
		}
		if taken < 0 || notTaken < 0 {
			continue
		}

		cat := ilp.BranchCategory{Kind: ilp.BranchAlwaysDefault}
		if header, ok := dom.EnclosingLoopHeader(cf, b); ok {
			if header == b {
				cat = ilp.BranchCategory{Kind: ilp.BranchFirstUnknown, Header: header}
			} else {
				cat = ilp.BranchCategory{Kind: ilp.BranchAlwaysHit}
			}
		}

		out = append(out, ilp.BranchAccess{
			Block:          b,
			Taken:          taken,
			NotTaken:       notTaken,
			DefaultTaken:   bht.Default == "taken",
			Category:       cat,
			MispredPenalty: float64(bht.CondPenalty),
			Inst:           last,
		})
	}
	return out
}

// buildDataAccesses derives one cache.Access per memory instruction of
// cf, targeting TargetAny: the analyses above never see a resolved
// address (address computation is out of scope per spec.md §1), so
// every load/store is conservatively treated as touching an unknown
// location, aging every set on each access the same way an ANY
// instruction access does (spec.md §4.5).
func buildDataAccesses(cf *cfg.CFG) map[cfg.BlockID][]cache.Access {
	out := make(map[cfg.BlockID][]cache.Access)
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind != cfg.KindBasic {
			continue
		}
		for _, in := range blk.Insts {
			if !in.Kind.Any(prog.IsMem) {
				continue
			}
			action := cache.Load
			if in.Kind.Any(prog.IsStore) {
				action = cache.Store
			}
			out[b] = append(out[b], cache.Access{
				InstAddr: in.Address,
				Action:   action,
				Target:   cache.Target{Kind: cache.TargetAny},
			})
		}
	}
	return out
}

// PurgeAccess is one write-back purge event to assemble a cost
// constraint for: a block whose next eviction in its cache set may
// force a write-back of dirty data (spec.md §4.5).
type PurgeAccess struct {
	Block    cfg.BlockID
	Category dcache.PurgeCategory
	Penalty  float64
}

// assemblePurgeAccesses classifies every data access of perBlock against
// desc's write-back discipline (internal/dcache, grounded on
// original_source/src/dcache/Purge.cpp) and returns one PurgeAccess per
// classified access.
func assemblePurgeAccesses(cf *cfg.CFG, rank []int, loops []*dom.Loop, desc *cache.Description, set int, perBlock map[cfg.BlockID][]cache.Access, penalty float64, mode config.FirstMissLevel, pseudoUnroll bool) []PurgeAccess {
	cats := dcache.Purge(cf, rank, loops, desc, set, perBlock, mode, pseudoUnroll)
	var out []PurgeAccess
	for b, bcats := range cats {
		for _, c := range bcats {
			out = append(out, PurgeAccess{Block: b, Category: c, Penalty: penalty})
		}
	}
	return out
}

// AssemblePurge implements the ILP cost of a write-back purge, mirroring
// ilp.AssembleCache's constraint shapes (spec.md §4.7 step 5) but keyed
// on dcache.PurgeCategory instead of cache.Category: NO_PURGE never
// contributes, MUST_PURGE contributes the penalty every time the block
// runs, and MAY_PURGE/PERS_PURGE get a bounded miss variable the solver
// is free to set anywhere between 0 and the block's execution count.
func AssemblePurge(sys *ilp.System, v *ilp.Vars, accesses []PurgeAccess) {
	for i, a := range accesses {
		xb := v.Block[a.Block]
		switch a.Category {
		case dcache.NoPurge:
			continue
		case dcache.MustPurge:
			sys.AddObjective(a.Penalty, xb)
		default: // MayPurge, PersPurge
			idx := sys.NewVar(fmt.Sprintf("purge_%d_%d", a.Block, i), ilp.Integer)
			c := sys.AddConstraint(fmt.Sprintf("purge_bound_%d_%d", a.Block, i), ilp.LE, 0)
			c.AddLeft(1, idx)
			c.AddLeft(-1, xb)
			sys.AddObjective(a.Penalty, idx)
		}
	}
}
