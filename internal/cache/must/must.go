// Package must implements the MUST abstract domain (spec.md §4.4 step 2):
// a cache access is classified ALWAYS_HIT only if MUST proves it is
// present with a finite age on every path reaching the access.
package must

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// ACS is one cache set's MUST abstract cache state: age[i] in
// {0,...,A-1}, absent meaning ⊥ (evicted on at least one incoming
// path). Lower age means more recently used.
type ACS map[int]int

// Domain is the MUST abstract-interpretation problem for one cache set
// of associativity A. Accesses is keyed by block id; a block with no
// entry performs no access in that basic block.
type Domain struct {
	A        int
	Accesses map[cfg.BlockID][]int // L-block ids accessed, in order; -1 means an ANY access
}

func (d Domain) Bot() ACS { return ACS{} }

func (d Domain) Init() ACS { return ACS{} }

// Join is pointwise maximum, with ⊥ (absence) dominating any finite age
// (spec.md §4.4: a block is MUST-present in the result only if present
// with a finite age on every incoming path).
func (d Domain) Join(x, y ACS) ACS { return Join(x, y) }

// Join is the package-level MUST join, usable by composing analyses
// (spec.md §4.5 RANGE accesses) without constructing a Domain.
func Join(x, y ACS) ACS {
	out := ACS{}
	for i, ax := range x {
		if ay, ok := y[i]; ok {
			age := ax
			if ay > age {
				age = ay
			}
			out[i] = age
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

// Update applies every access of b in order (spec.md §4.4 step 2
// transfer): set age[i] = 0, age every other present entry j with
// age[j] < old age[i] by one, capping at A (eviction). An access with
// id -1 (ANY) ages every present entry by one.
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

// AccessOne applies the single-block transfer of spec.md §4.4 step 2 to
// id i, exported so the data-cache analyses (BLOCK/RANGE accesses, spec.md
// §4.5) can compose it directly instead of duplicating the LRU update.
func AccessOne(cur ACS, i, a int) ACS {
	old, present := cur[i]
	if !present {
		old = a // ⊥ treated as "older than any finite age"
	}
	next := ACS{}
	for j, age := range cur {
		if j == i {
			continue
		}
		if age < old {
			age++
		}
		if age < a {
			next[j] = age
		}
	}
	next[i] = 0
	return next
}

// AgeAll ages every present entry by one, dropping those that saturate at
// A (spec.md §4.5: an ANY or over-associativity RANGE access).
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

// Contains reports whether i is MUST-present in acs, with its age.
func Contains(acs ACS, i int) (age int, ok bool) {
	age, ok = acs[i]
	return
}
