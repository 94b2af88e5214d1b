// Purge analysis (spec.md §4.5, grounded on original_source/src/dcache/
// Purge.cpp): for a write-back cache, classifies whether the eviction an
// access may cause forces a write-back, combining the access's own
// cache.Category with the dirtiness of whatever else occupies the set at
// maximum age (next in line for eviction).
package dcache

import "github.com/statinf-otawa/otawa-sub004/internal/cache"

// PurgeCategory classifies the write-back cost of an access's eviction.
type PurgeCategory int

const (
	NoPurge PurgeCategory = iota
	MayPurge
	MustPurge
	PersPurge
)

func (c PurgeCategory) String() string {
	switch c {
	case NoPurge:
		return "NO_PURGE"
	case MayPurge:
		return "MAY_PURGE"
	case MustPurge:
		return "MUST_PURGE"
	default:
		return "PERS_PURGE"
	}
}

// CategorizePurge mirrors Purge.cpp's processAccess: mustAges/mayAges
// are the per-id ages observed just before this access (ages equal to
// assoc-1 are next to be evicted); dirty is the dirtiness state reaching
// this point. cat is the access's own cache.Category from Classify.
func CategorizePurge(cat cache.Category, op Op, assoc int, mustAges, mayAges map[uint64]int, dirty DirtyState) PurgeCategory {
	touches := func(id uint64) bool {
		for _, t := range op.IDs {
			if t == id {
				return true
			}
		}
		return false
	}

	mustPurge := func() bool {
		for id, age := range mustAges {
			if age == assoc-1 && dirty.Must[id] && (op.AgeAll || !touches(id)) {
				return true
			}
		}
		return false
	}
	mayPurge := func() bool {
		if op.AgeAll {
			return true
		}
		for id, age := range mayAges {
			if age == assoc-1 && dirty.May[id] && !touches(id) {
				return true
			}
		}
		return false
	}

	switch cat.Kind {
	case cache.AlwaysHit:
		return NoPurge
	case cache.FirstMiss:
		if mayPurge() {
			return PersPurge
		}
		return NoPurge
	case cache.AlwaysMiss:
		if !mayPurge() {
			return NoPurge
		}
		if !mustPurge() {
			return MayPurge
		}
		return MustPurge
	default: // NotClassified
		if mayPurge() {
			return MayPurge
		}
		return NoPurge
	}
}
