// Package icache orchestrates instruction-cache classification
// (spec.md §4.4): per cache set, it runs the MUST, MAY and PERS
// analyses and assigns a Category to each L-block access.
package icache

import (
	"sort"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/may"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/must"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/pers"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/dataflow"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
)

// Result holds, per basic block, the category of each of its L-block
// accesses, in the same order as cache.Partition's L-block slice for
// that block.
type Result struct {
	Categories map[cfg.BlockID][]cache.Category
}

// Classify runs the MUST/MAY/PERS pipeline over cf for one cache
// description and returns the category of every L-block access. mode
// restricts which PERS level a FIRST_MISS is allowed to come from
// (spec.md §6 FIRSTMISS_LEVEL); pseudoUnroll switches the underlying
// fix-point driver to the loop-header-unrolling alternative of
// spec.md §4.3.
func Classify(cf *cfg.CFG, d *cache.Description, mode config.FirstMissLevel, pseudoUnroll bool) Result {
	lblocks := cache.Partition(d, cf)

	bySet := map[int]map[cfg.BlockID][]int{} // per set: block -> ordered L-block ids accessed
	for b, lbs := range lblocks {
		for i, lb := range lbs {
			// The second and subsequent L-blocks sharing a cache block
			// with their predecessor share the fill: only the first is
			// an actual access to classify independently.
			if i > 0 && lb.SamePrevious(lbs[i-1]) {
				continue
			}
			if bySet[lb.Set] == nil {
				bySet[lb.Set] = map[cfg.BlockID][]int{}
			}
			bySet[lb.Set][b] = append(bySet[lb.Set][b], lb.ID)
		}
	}

	rank := dom.Rank(cf)
	loops := dom.Loops(cf)

	out := make(map[cfg.BlockID][]cache.Category)
	for set, accesses := range bySet {
		mustRes := dataflow.RunSelect[must.ACS](cf, rank, must.Domain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
		mayRes := dataflow.RunSelect[may.ACS](cf, rank, may.Domain{A: d.Associativity, Accesses: accesses}, pseudoUnroll)
		levels := pers.Build(cf, loops, d.Associativity, accesses)
		sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })

		for b, idxs := range accesses {
			in := mustRes.In[b]
			mayIn := mayRes.In[b]
			for _, id := range idxs {
				cat := categorize(in, mayIn, selectLevels(levels, b, mode), b, id)
				out[b] = append(out[b], cat)
			}
		}
		_ = set
	}

	// Fill in ALWAYS_HIT for the shared-fill follow-on L-blocks, one
	// category per L-block (not per distinct access) so callers can
	// zip categories back against cache.Partition's L-block slices.
	final := make(map[cfg.BlockID][]cache.Category, len(lblocks))
	for b, lbs := range lblocks {
		cats := out[b]
		var expanded []cache.Category
		ci := 0
		for i, lb := range lbs {
			if i > 0 && lb.SamePrevious(lbs[i-1]) {
				expanded = append(expanded, cache.Category{Kind: cache.AlwaysHit})
				continue
			}
			expanded = append(expanded, cats[ci])
			ci++
		}
		final[b] = expanded
	}

	return Result{Categories: final}
}

// selectLevels restricts levels (already sorted outermost-to-innermost
// by Depth) to the ones mode allows a FIRST_MISS to be charged at for
// block b: NONE disables persistence entirely, OUTER/INNER pick the
// single outermost/innermost level whose loop actually contains b, and
// MULTI keeps every containing level so categorize can walk outermost
// to innermost per spec.md §4.4 step 4.
func selectLevels(levels []*pers.Level, b cfg.BlockID, mode config.FirstMissLevel) []*pers.Level {
	if mode == config.FirstMissNone {
		return nil
	}
	var containing []*pers.Level
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

func categorize(mustIn must.ACS, mayIn may.ACS, levels []*pers.Level, b cfg.BlockID, id int) cache.Category {
	if age, ok := must.Contains(mustIn, id); ok {
		_ = age
		return cache.Category{Kind: cache.AlwaysHit}
	}
	if !may.Contains(mayIn, id) {
		return cache.Category{Kind: cache.AlwaysMiss}
	}
	for _, lvl := range levels {
		if lvl.Persistent(b, id) {
			return cache.Category{Kind: cache.FirstMiss, Header: lvl.Header}
		}
	}
	return cache.Category{Kind: cache.NotClassified}
}
