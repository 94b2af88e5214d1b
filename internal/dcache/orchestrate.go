package dcache

import (
	"sort"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/may"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/must"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/dataflow"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
)

// Purge runs the full data-cache pipeline for one write-back cache set:
// MUST/MAY/PERS classification of every access, then the purge analysis
// over the resulting categories and dirtiness (spec.md §4.5). mode and
// pseudoUnroll mirror Classify's FIRSTMISS_LEVEL/PSEUDO_UNROLLING knobs.
func Purge(cf *cfg.CFG, rank []int, loops []*dom.Loop, d *cache.Description, set int, perBlock map[cfg.BlockID][]cache.Access, mode config.FirstMissLevel, pseudoUnroll bool) map[cfg.BlockID][]PurgeCategory {
	dirtyOps := BuildDirtyOps(d, set, perBlock)
	accesses := make(Accesses, len(dirtyOps))
	for b, dos := range dirtyOps {
		for _, do := range dos {
			accesses[b] = append(accesses[b], do.op)
		}
	}

	mustRes := dataflow.RunSelect[must.ACS](cf, rank, MustDomain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
	mayRes := dataflow.RunSelect[may.ACS](cf, rank, MayDomain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
	levels := BuildLevels(cf, loops, d.Associativity, accesses)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })
	dirtyRes := RunDirty(cf, rank, dirtyOps)

	out := make(map[cfg.BlockID][]PurgeCategory)
	for b, dos := range dirtyOps {
		mustCur := mustRes.In[b]
		mayCur := mayRes.In[b]
		dirtyCur := dirtyRes.In[b]
		sel := selectLevels(levels, b, mode)
		for _, do := range dos {
			cat := categorize(mustCur, mayCur, sel, b, do.op)
			out[b] = append(out[b], CategorizePurge(cat, do.op, d.Associativity, toU64Ages(mustCur), toU64Ages(mayCur), dirtyCur))

			mustCur = applyMust(mustCur, do.op, d.Associativity)
			mayCur = applyMay(mayCur, do.op, d.Associativity)
			if do.store && !do.op.AgeAll {
				for _, id := range do.op.IDs {
					dirtyCur = dirtyCur.store(id)
				}
			}
		}
	}
	return out
}

func toU64Ages(acs map[int]int) map[uint64]int {
	out := make(map[uint64]int, len(acs))
	for id, age := range acs {
		out[uint64(id)] = age
	}
	return out
}
