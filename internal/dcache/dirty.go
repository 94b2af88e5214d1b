package dcache

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dataflow"
)

// DirtyState tracks, for one cache set, which block ids are proven
// written-to-since-last-known-clean on every path (Must) and on some
// path (May) reached so far. A store marks its id dirty in both; a load
// never clears it, a conservative simplification of the full dirtiness
// analysis (a precise model would reset a block's dirty bit on a proven
// fresh refill; tracking that exactly doubles back into the very
// eviction question the purge analysis exists to answer, so a block
// once proven dirty on a path stays flagged that way on that path).
type DirtyState struct {
	Must map[uint64]bool
	May  map[uint64]bool
}

func newDirtyState() DirtyState { return DirtyState{Must: map[uint64]bool{}, May: map[uint64]bool{}} }

func (s DirtyState) store(id uint64) DirtyState {
	must := cloneDirty(s.Must)
	may := cloneDirty(s.May)
	must[id] = true
	may[id] = true
	return DirtyState{Must: must, May: may}
}

func cloneDirty(m map[uint64]bool) map[uint64]bool {
	out := make(map[uint64]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func joinDirty(x, y DirtyState) DirtyState {
	must := map[uint64]bool{}
	for id := range x.Must {
		if y.Must[id] {
			must[id] = true
		}
	}
	may := map[uint64]bool{}
	for id := range x.May {
		may[id] = true
	}
	for id := range y.May {
		may[id] = true
	}
	return DirtyState{Must: must, May: may}
}

func equalDirty(x, y DirtyState) bool {
	if len(x.Must) != len(y.Must) || len(x.May) != len(y.May) {
		return false
	}
	for id := range x.Must {
		if !y.Must[id] {
			return false
		}
	}
	for id := range x.May {
		if !y.May[id] {
			return false
		}
	}
	return true
}

// DirtyDomain drives the per-set dirtiness fix-point: a store access
// dirties the id(s) it resolves to; loads leave dirtiness unchanged,
// and a store through ANY or an over-associative RANGE (an age-all Op)
// flags no id dirty.
type DirtyDomain struct {
	Ops map[cfg.BlockID][]dirtyOp
}

type dirtyOp struct {
	op    Op
	store bool
}

// BuildDirtyOps pairs each resolved Op with its access's Action.
func BuildDirtyOps(d *cache.Description, s int, perBlock map[cfg.BlockID][]cache.Access) map[cfg.BlockID][]dirtyOp {
	out := make(map[cfg.BlockID][]dirtyOp)
	for b, accs := range perBlock {
		for _, a := range accs {
			op, ok := Resolve(d, s, a)
			if !ok {
				continue
			}
			out[b] = append(out[b], dirtyOp{op: op, store: a.Action == cache.Store})
		}
	}
	return out
}

func (d DirtyDomain) Bot() DirtyState  { return newDirtyState() }
func (d DirtyDomain) Init() DirtyState { return newDirtyState() }
func (d DirtyDomain) Join(x, y DirtyState) DirtyState { return joinDirty(x, y) }
func (d DirtyDomain) Equals(x, y DirtyState) bool     { return equalDirty(x, y) }

func (d DirtyDomain) Update(b cfg.BlockID, in DirtyState) DirtyState {
	cur := in
	for _, do := range d.Ops[b] {
		if !do.store {
			continue
		}
		if do.op.AgeAll {
			continue // an ANY store's id set is unbounded; nothing specific to flag dirty
		}
		for _, id := range do.op.IDs {
			cur = cur.store(id)
		}
	}
	return cur
}

// RunDirty computes the per-block IN dirty state for one cache set.
func RunDirty(cf *cfg.CFG, rank []int, ops map[cfg.BlockID][]dirtyOp) dataflow.Result[DirtyState] {
	return dataflow.Run[DirtyState](cf, rank, DirtyDomain{Ops: ops})
}
