package ilp

import (
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
	"github.com/statinf-otawa/otawa-sub004/internal/event"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// Vars holds the variable indices assembled by AssembleStructural, kept
// together since every later pass (flow facts, objective, cache,
// branch) needs to look blocks and edges up by id.
type Vars struct {
	Block map[cfg.BlockID]int
	Edge  map[cfg.EdgeID]int
}

// AssembleStructural implements spec.md §4.7 steps 1–2: one integer
// counter variable per block and per edge, x_entry = 1, and Kirchhoff's
// law (sum-in = x_v = sum-out) at every block, restricted to whichever
// side actually has edges — entry has no incoming edges and exit/unknown
// typically have no outgoing ones, so each only balances the side it
// owns instead of being exempted from the law altogether.
func AssembleStructural(sys *System, cf *cfg.CFG, explicit bool) *Vars {
	v := &Vars{Block: make(map[cfg.BlockID]int), Edge: make(map[cfg.EdgeID]int)}

	for _, b := range cf.Blocks() {
		v.Block[b] = sys.NewVar(blockVarName(cf, b, explicit), Integer)
	}
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		for _, e := range blk.Out {
			if _, ok := v.Edge[e]; ok {
				continue
			}
			v.Edge[e] = sys.NewVar(edgeVarName(cf, e, explicit), Integer)
		}
	}

	entryC := sys.AddConstraint("entry", EQ, 1)
	entryC.AddLeft(1, v.Block[cf.Entry])

	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if len(blk.In) > 0 {
			c := sys.AddConstraint(fmt.Sprintf("kirchhoff_in_%d", b), EQ, 0)
			c.AddLeft(-1, v.Block[b])
			for _, e := range blk.In {
				c.AddLeft(1, v.Edge[e])
			}
		}
		if len(blk.Out) > 0 {
			c := sys.AddConstraint(fmt.Sprintf("kirchhoff_out_%d", b), EQ, 0)
			c.AddLeft(-1, v.Block[b])
			for _, e := range blk.Out {
				c.AddLeft(1, v.Edge[e])
			}
		}
	}

	return v
}

func blockVarName(cf *cfg.CFG, b cfg.BlockID, explicit bool) string {
	if !explicit {
		return fmt.Sprintf("x%d", b)
	}
	switch cf.Block(b).Kind {
	case cfg.KindEntry:
		return "x_entry"
	case cfg.KindExit:
		return "x_exit"
	case cfg.KindUnknown:
		return "x_unknown"
	default:
		return fmt.Sprintf("x_b%d", b)
	}
}

func edgeVarName(cf *cfg.CFG, e cfg.EdgeID, explicit bool) string {
	if !explicit {
		return fmt.Sprintf("e%d", e)
	}
	edge := cf.Edge(e)
	return fmt.Sprintf("x_e%d_%d", edge.Source, edge.Sink)
}

// LoopBounds maps a loop header to its MAX_ITERATION flow fact.
// Headers absent from the map are treated as unbounded: no back-edge
// constraint is emitted for them, per spec.md §4.7's failure semantics.
type LoopBounds map[cfg.BlockID]int64

// AssembleFlowFacts implements spec.md §4.7 step 3: for every loop
// header with a bound N, the sum of back-edge flow into the header is
// at most N times the sum of entry-edge flow into it.
func AssembleFlowFacts(sys *System, cf *cfg.CFG, v *Vars, loops []*dom.Loop, bounds LoopBounds) {
	for _, lp := range loops {
		if lp.IsTop {
			continue
		}
		h := lp.Header
		n, ok := bounds[h]
		if !ok {
			continue
		}

		var backEdges, entryEdges []cfg.EdgeID
		for _, e := range cf.Block(h).In {
			if dom.IsBackEdge(cf, e) {
				backEdges = append(backEdges, e)
			} else {
				entryEdges = append(entryEdges, e)
			}
		}
		if len(backEdges) == 0 {
			continue
		}

		c := sys.AddConstraint(fmt.Sprintf("bound_%d", h), LE, 0)
		for _, e := range backEdges {
			c.AddLeft(1, v.Edge[e])
		}
		for _, e := range entryEdges {
			c.AddLeft(-float64(n), v.Edge[e])
		}
	}
}

// BlockTimes supplies the static execution time (a trivial default may
// assign a constant per instruction) consumed by AssembleObjective.
type BlockTimes map[cfg.BlockID]int64

// AssembleObjective implements spec.md §4.7 step 4: objective +=
// sum_b t_b * x_b over every basic block.
func AssembleObjective(sys *System, cf *cfg.CFG, v *Vars, times BlockTimes) {
	for _, b := range cf.Blocks() {
		if cf.Block(b).Kind != cfg.KindBasic {
			continue
		}
		t, ok := times[b]
		if !ok || t == 0 {
			continue
		}
		sys.AddObjective(float64(t), v.Block[b])
	}
}

// CacheAccess is one data/instruction-cache access to assemble a miss
// constraint for. GroupID bundles linked L-blocks sharing a cache block
// in the same basic block into a single shared miss variable, per
// spec.md §4.7 step 5's closing sentence.
type CacheAccess struct {
	GroupID     string
	Block       cfg.BlockID
	Category    cache.Category
	MissPenalty float64
	Inst        *prog.Instruction
}

// AssembleCache implements spec.md §4.7 step 5 and registers one MEM
// event per access carrying the same estimator closures (spec.md §4.9),
// so a later time model can recompute the contribution without
// re-deriving the category. The returned map gives every access's
// GroupID the index of its shared miss variable, so a caller wanting
// the solved per-access miss count (spec.md §4.8) doesn't have to
// re-derive the grouping.
func AssembleCache(sys *System, cf *cfg.CFG, v *Vars, accesses []CacheAccess) ([]*event.Event, map[string]int) {
	missVar := make(map[string]int)
	var events []*event.Event

	for _, a := range accesses {
		idx, seen := missVar[a.GroupID]
		if !seen {
			idx = sys.NewVar("miss_"+a.GroupID, Integer)
			missVar[a.GroupID] = idx
			assembleCacheConstraint(sys, cf, v, a, idx)
			sys.AddObjective(a.MissPenalty, idx)
		}
		events = append(events, cacheEvent(a, idx))
	}
	return events, missVar
}

func assembleCacheConstraint(sys *System, cf *cfg.CFG, v *Vars, a CacheAccess, missIdx int) {
	label := "cache_" + a.GroupID
	xb := v.Block[a.Block]

	switch a.Category.Kind {
	case cache.AlwaysHit:
		c := sys.AddConstraint(label, EQ, 0)
		c.AddLeft(1, missIdx)
	case cache.AlwaysMiss:
		c := sys.AddConstraint(label, EQ, 0)
		c.AddLeft(1, missIdx)
		c.AddLeft(-1, xb)
	case cache.FirstMiss:
		entryEdges := nonBackEntryEdges(cf, a.Category.Header)
		c1 := sys.AddConstraint(label+"_entry", LE, 0)
		c1.AddLeft(1, missIdx)
		for _, e := range entryEdges {
			c1.AddLeft(-1, v.Edge[e])
		}
		c2 := sys.AddConstraint(label+"_block", LE, 0)
		c2.AddLeft(1, missIdx)
		c2.AddLeft(-1, xb)
	default: // NotClassified
		c := sys.AddConstraint(label, LE, 0)
		c.AddLeft(1, missIdx)
		c.AddLeft(-1, xb)
	}
}

func nonBackEntryEdges(cf *cfg.CFG, h cfg.BlockID) []cfg.EdgeID {
	var out []cfg.EdgeID
	for _, e := range cf.Block(h).In {
		if !dom.IsBackEdge(cf, e) {
			out = append(out, e)
		}
	}
	return out
}

func cacheEvent(a CacheAccess, missIdx int) *event.Event {
	e := event.New(a.Inst, event.Mem, int64(a.MissPenalty))
	e.WithEstimator(
		func(on bool) bool {
			if on {
				return true
			}
			return a.Category.Kind == cache.AlwaysHit || a.Category.Kind == cache.AlwaysMiss
		},
		func(sink event.ConstraintSink, on bool) {
			sink.AddRight(a.MissPenalty, missIdx)
		},
	)
	return e
}

// BranchKind classifies a conditional's predictor category (spec.md
// §4.7 step 6).
type BranchKind int

const (
	BranchAlwaysDefault BranchKind = iota
	BranchAlwaysHit
	BranchFirstUnknown
	BranchNotClassified
)

func (k BranchKind) String() string {
	switch k {
	case BranchAlwaysDefault:
		return "ALWAYS_DEFAULT"
	case BranchAlwaysHit:
		return "ALWAYS_HIT"
	case BranchFirstUnknown:
		return "FIRST_UNKNOWN"
	default:
		return "NOT_CLASSIFIED"
	}
}

// BranchCategory is a classified conditional-branch predictor outcome.
// Header is meaningful only for BranchFirstUnknown.
type BranchCategory struct {
	Kind   BranchKind
	Header cfg.BlockID
}

// BranchAccess is one conditional control instruction to assemble a
// misprediction constraint for.
type BranchAccess struct {
	Block          cfg.BlockID
	Taken, NotTaken cfg.EdgeID
	DefaultTaken   bool
	Category       BranchCategory
	MispredPenalty float64
	Inst           *prog.Instruction
}

// AssembleBranch implements spec.md §4.7 step 6 and registers one
// BRANCH event per access mirroring §4.9's dual-wiring. The returned
// slice gives accesses[i]'s misprediction-variable index at the same
// position i, for the same per-access solved-value reason AssembleCache
// returns its GroupID map.
func AssembleBranch(sys *System, cf *cfg.CFG, v *Vars, accesses []BranchAccess) ([]*event.Event, []int) {
	var events []*event.Event
	mispredVar := make([]int, len(accesses))
	for i, a := range accesses {
		label := fmt.Sprintf("mispred_%d", i)
		idx := sys.NewVar(fmt.Sprintf("mp_%d", i), Integer)
		xb := v.Block[a.Block]
		xT := v.Edge[a.Taken]
		xNT := v.Edge[a.NotTaken]

		switch a.Category.Kind {
		case BranchAlwaysDefault:
			c := sys.AddConstraint(label, EQ, 0)
			c.AddLeft(1, idx)
			if a.DefaultTaken {
				c.AddLeft(-1, xNT)
			} else {
				c.AddLeft(-1, xT)
			}
		case BranchAlwaysHit:
			addHitLikeConstraints(sys, label, idx, xT, xNT, xb, 2)
		case BranchFirstUnknown:
			entryEdges := nonBackEntryEdges(cf, a.Category.Header)
			c1 := sys.AddConstraint(label+"_T", LE, 0)
			c1.AddLeft(1, idx)
			c1.AddLeft(-2, xT)
			for _, e := range entryEdges {
				c1.AddLeft(-2, v.Edge[e])
			}
			c2 := sys.AddConstraint(label+"_NT", LE, 0)
			c2.AddLeft(1, idx)
			c2.AddLeft(-2, xNT)
			for _, e := range entryEdges {
				c2.AddLeft(-2, v.Edge[e])
			}
			c3 := sys.AddConstraint(label+"_block", LE, 0)
			c3.AddLeft(1, idx)
			c3.AddLeft(-1, xb)
		default: // BranchNotClassified
			c := sys.AddConstraint(label, LE, 0)
			c.AddLeft(1, idx)
			c.AddLeft(-1, xb)
		}

		sys.AddObjective(a.MispredPenalty, idx)
		mispredVar[i] = idx
		events = append(events, branchEvent(a, idx))
	}
	return events, mispredVar
}

func addHitLikeConstraints(sys *System, label string, idx, xT, xNT, xb int, k float64) {
	c1 := sys.AddConstraint(label+"_T", LE, k)
	c1.AddLeft(1, idx)
	c1.AddLeft(-2, xT)
	c2 := sys.AddConstraint(label+"_NT", LE, k)
	c2.AddLeft(1, idx)
	c2.AddLeft(-2, xNT)
	c3 := sys.AddConstraint(label+"_block", LE, 0)
	c3.AddLeft(1, idx)
	c3.AddLeft(-1, xb)
}

func branchEvent(a BranchAccess, mpIdx int) *event.Event {
	e := event.New(a.Inst, event.Branch, int64(a.MispredPenalty))
	e.WithEstimator(
		func(on bool) bool {
			if on {
				return true
			}
			return a.Category.Kind == BranchAlwaysDefault
		},
		func(sink event.ConstraintSink, on bool) {
			sink.AddRight(a.MispredPenalty, mpIdx)
		},
	)
	return e
}
