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

// Result holds, per basic block, the category of each of its data
// accesses to one cache set, in program order.
type Result struct {
	Categories map[cfg.BlockID][]cache.Category
}

// Classify runs the MUST/MAY/PERS pipeline for one cache set's resolved
// data accesses (spec.md §4.5). mode and pseudoUnroll mirror
// icache.Classify's FIRSTMISS_LEVEL/PSEUDO_UNROLLING knobs.
func Classify(cf *cfg.CFG, rank []int, loops []*dom.Loop, d *cache.Description, set int, accesses Accesses, mode config.FirstMissLevel, pseudoUnroll bool) Result {
	mustRes := dataflow.RunSelect[must.ACS](cf, rank, MustDomain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
	mayRes := dataflow.RunSelect[may.ACS](cf, rank, MayDomain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
	levels := BuildLevels(cf, loops, d.Associativity, accesses)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })

	out := make(map[cfg.BlockID][]cache.Category)
	for b, ops := range accesses {
		cur := mustRes.In[b]
		mayCur := mayRes.In[b]
		for _, op := range ops {
			out[b] = append(out[b], categorize(cur, mayCur, selectLevels(levels, b, mode), b, op))
			cur = applyMust(cur, op, d.Associativity)
			mayCur = applyMay(mayCur, op, d.Associativity)
		}
	}
	return Result{Categories: out}
}

// selectLevels mirrors internal/cache/icache's level filter, restricted
// to the Level type this package's PERS levels use.
func selectLevels(levels []*Level, b cfg.BlockID, mode config.FirstMissLevel) []*Level {
	if mode == config.FirstMissNone {
		return nil
	}
	var containing []*Level
	for _, lvl := range levels {
		if lvl.InDomain(b) {
			containing = append(containing, lvl)
		}
	}
	switch mode {
	case config.FirstMissOuter:
		if len(containing) == 0 {
			return nil
		}
		return containing[:1]
	case config.FirstMissInner:
		if len(containing) == 0 {
			return nil
		}
		return containing[len(containing)-1:]
	default: // FirstMissMulti
		return containing
	}
}

func categorize(mustIn must.ACS, mayIn may.ACS, levels []*Level, b cfg.BlockID, op Op) cache.Category {
	if op.AgeAll {
		return cache.Category{Kind: cache.NotClassified}
	}
	allMust := true
	anyMay := false
	for _, id := range op.IDs {
		if _, ok := must.Contains(mustIn, int(id)); !ok {
			allMust = false
		}
		if may.Contains(mayIn, int(id)) {
			anyMay = true
		}
	}
	if allMust {
		return cache.Category{Kind: cache.AlwaysHit}
	}
	if !anyMay {
		return cache.Category{Kind: cache.AlwaysMiss}
	}
	for _, lvl := range levels {
		persistent := true
		for _, id := range op.IDs {
			if !lvl.Persistent(b, id) {
				persistent = false
				break
			}
		}
		if persistent {
			return cache.Category{Kind: cache.FirstMiss, Header: lvl.Header}
		}
	}
	return cache.Category{Kind: cache.NotClassified}
}
