package dcache

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cache/may"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/must"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
)

// MustDomain is the MUST dataflow.Domain for one cache set's resolved
// data accesses (spec.md §4.5): a RANGE op joins the per-block transfer
// over every block it touches; ANY (or an over-associative RANGE) ages
// everything.
type MustDomain struct {
	A        int
	Accesses Accesses
}

func (d MustDomain) Bot() must.ACS  { return must.ACS{} }
func (d MustDomain) Init() must.ACS { return must.ACS{} }
func (d MustDomain) Join(x, y must.ACS) must.ACS { return must.Join(x, y) }

func (d MustDomain) Equals(x, y must.ACS) bool {
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

func (d MustDomain) Update(b cfg.BlockID, in must.ACS) must.ACS {
	cur := in
	for _, op := range d.Accesses[b] {
		cur = applyMust(cur, op, d.A)
	}
	return cur
}

func applyMust(cur must.ACS, op Op, a int) must.ACS {
	if op.AgeAll || len(op.IDs) == 0 {
		return must.AgeAll(cur, a)
	}
	var result must.ACS
	for i, id := range op.IDs {
		next := must.AccessOne(cur, int(id), a)
		if i == 0 {
			result = next
		} else {
			result = must.Join(result, next)
		}
	}
	return result
}

// MayDomain is the MAY dual of MustDomain.
type MayDomain struct {
	A        int
	Accesses Accesses
}

func (d MayDomain) Bot() may.ACS  { return may.ACS{} }
func (d MayDomain) Init() may.ACS { return may.ACS{} }
func (d MayDomain) Join(x, y may.ACS) may.ACS { return may.Join(x, y) }

func (d MayDomain) Equals(x, y may.ACS) bool {
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

func (d MayDomain) Update(b cfg.BlockID, in may.ACS) may.ACS {
	cur := in
	for _, op := range d.Accesses[b] {
		cur = applyMay(cur, op, d.A)
	}
	return cur
}

func applyMay(cur may.ACS, op Op, a int) may.ACS {
	if op.AgeAll || len(op.IDs) == 0 {
		return may.AgeAll(cur, a)
	}
	var result may.ACS
	for i, id := range op.IDs {
		next := may.AccessOne(cur, int(id), a)
		if i == 0 {
			result = next
		} else {
			result = may.Join(result, next)
		}
	}
	return result
}
