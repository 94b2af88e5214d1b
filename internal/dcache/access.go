// Package dcache implements the data-cache analyses (spec.md §4.5):
// BLOCK/RANGE/ANY accesses reusing the must/may/pers abstract domains
// built for instruction-cache classification, plus a write-back purge
// analysis.
package dcache

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
)

// Op is one resolved, per-set access step against a cache description:
// either a handful of block ids (BLOCK, or a RANGE that fits within the
// cache's associativity) or an age-everything step (ANY, or a RANGE
// spanning more blocks than the cache has ways).
type Op struct {
	IDs    []uint64
	AgeAll bool
}

// Resolve turns a cache.Access into the Op needed to update set s's
// abstract state, or ok=false if the access doesn't touch set s at all
// (spec.md §4.5). RANGE wraparound is enumerated as an unordered set of
// block ids (DESIGN.md Open Question 3).
func Resolve(d *cache.Description, s int, a cache.Access) (op Op, ok bool) {
	switch a.Target.Kind {
	case cache.TargetAny:
		return Op{AgeAll: true}, true

	case cache.TargetBlock:
		blk := d.BlockAt(a.Target.Block)
		if blk.Set != s {
			return Op{}, false
		}
		return Op{IDs: []uint64{d.BlockIndexOf(a.Target.Block)}}, true

	case cache.TargetRange:
		ids := blocksInSet(d, s, a.Target.First, a.Target.Last)
		if len(ids) == 0 {
			return Op{}, false
		}
		if len(ids) > d.Associativity {
			return Op{AgeAll: true}, true
		}
		return Op{IDs: ids}, true
	}
	return Op{}, false
}

// blocksInSet enumerates the distinct cache-block ids of set s touched by
// [first, last]. A range with last < first wraps the address space.
func blocksInSet(d *cache.Description, s int, first, last uint64) []uint64 {
	seen := map[uint64]struct{}{}
	add := func(lo, hi uint64) {
		for addr := d.BlockStart(lo); addr <= hi; addr += uint64(d.BlockSize) {
			if d.SetOf(addr) == s {
				seen[d.BlockIndexOf(addr)] = struct{}{}
			}
			if addr+uint64(d.BlockSize) < addr {
				break // overflowed the address space
			}
		}
	}
	if last >= first {
		add(first, last)
	} else {
		add(first, ^uint64(0))
		add(0, last)
	}
	out := make([]uint64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Accesses maps each basic block to the ordered Ops it performs against
// one cache set, built once per set by resolving every cache.Access that
// touches it.
type Accesses map[cfg.BlockID][]Op

// Build resolves every access against set s, in program order per block,
// dropping accesses that don't touch s.
func Build(d *cache.Description, s int, perBlock map[cfg.BlockID][]cache.Access) Accesses {
	out := make(Accesses)
	for b, accs := range perBlock {
		for _, a := range accs {
			if op, ok := Resolve(d, s, a); ok {
				out[b] = append(out[b], op)
			}
		}
	}
	return out
}
