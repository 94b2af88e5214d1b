// Package may implements the MAY abstract domain (spec.md §4.4 step 3):
// a block absent from MAY is proven evicted on every path (ALWAYS_MISS);
// a block present may be in the cache on at least one path.
package may

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// ACS is one cache set's MAY abstract cache state: age[i] in
// {0,...,A-1}, absent meaning "never present on any path reaching
// here". Higher age means "at most this old".
type ACS map[int]int

// Domain is the MAY abstract-interpretation problem for one cache set.
type Domain struct {
	A        int
	Accesses map[cfg.BlockID][]int
}

func (d Domain) Bot() ACS { return ACS{} }

func (d Domain) Init() ACS { return ACS{} }

// Join is pointwise minimum, with absence as the identity: a block
// present on only one incoming path stays present (spec.md §4.4:
// "join is pointwise minimum (⊥ = identity)").
func (d Domain) Join(x, y ACS) ACS { return Join(x, y) }

// Join is the package-level MAY join, usable by composing analyses
// (spec.md §4.5 RANGE accesses) without constructing a Domain.
func Join(x, y ACS) ACS {
	out := make(ACS, len(x)+len(y))
	for i, ax := range x {
		out[i] = ax
	}
	for i, ay := range y {
		if ax, ok := out[i]; !ok || ay < ax {
			out[i] = ay
		}
	}
	return out
}

func (d Domain) Equals(x, y ACS) bool {
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

// Update mirrors MUST's transfer structurally (spec.md §4.4 step 3:
// "dual ... transfer ages up"): an access sets age[i]=0 and ages every
// other present entry, capping at A (dropped from the set once aged
// out, since a block that may no longer be present contributes nothing
// further).
func (d Domain) Update(b cfg.BlockID, in ACS) ACS {
	cur := cloneACS(in)
	for _, i := range d.Accesses[b] {
		if i < 0 {
			cur = AgeAll(cur, d.A)
			continue
		}
		cur = AccessOne(cur, i, d.A)
	}
	return cur
}

// AccessOne applies the single-block MAY transfer to id i, exported for
// the data-cache BLOCK/RANGE accesses (spec.md §4.5).
func AccessOne(cur ACS, i, a int) ACS {
	next := ACS{}
	for j, age := range cur {
		if j == i {
			continue
		}
		age++
		if age < a {
			next[j] = age
		}
	}
	next[i] = 0
	return next
}

// AgeAll ages every present entry by one, dropping those that saturate.
func AgeAll(cur ACS, a int) ACS {
	next := ACS{}
	for j, age := range cur {
		age++
		if age < a {
			next[j] = age
		}
	}
	return next
}

func cloneACS(in ACS) ACS {
	out := make(ACS, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Contains reports whether i may be present in acs.
func Contains(acs ACS, i int) bool {
	_, ok := acs[i]
	return ok
}
