package transform

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// Predicate is the comparison a predicated instruction's guard tests
// against its condition register.
type Predicate int

const (
	PredAny Predicate = iota
	PredEQ
	PredNE
	PredLT
	PredLE
	PredGT
	PredGE
)

func (p Predicate) negate() Predicate {
	switch p {
	case PredEQ:
		return PredNE
	case PredNE:
		return PredEQ
	case PredLT:
		return PredGE
	case PredGE:
		return PredLT
	case PredLE:
		return PredGT
	case PredGT:
		return PredLE
	default:
		return PredAny
	}
}

// Condition is a predicated instruction's guard: Register compared by
// Pred, Signed selecting a signed or unsigned comparison.
type Condition struct {
	Register int
	Signed   bool
	Pred     Predicate
}

type edgeRestrict int

const (
	restrictNone edgeRestrict = iota
	restrictTakenOnly
	restrictNotTakenOnly
)

// ConditionalRestructurer splits each basic block holding predicated
// instructions into one block per feasible combination of predicate
// outcomes (spec.md §4.1). Grounded on
// original_source/src/prog/cfg_VirtualInliner.cpp's case-split pattern,
// adapted from call-site splitting to predicate-combination splitting.
type ConditionalRestructurer struct {
	Coll *cfg.Collection

	// Conditions maps a predicated instruction to its guard. An
	// instruction absent from the map is treated as unconditional.
	Conditions map[*prog.Instruction]Condition
}

type caseResult struct {
	insts    []*prog.Instruction
	restrict edgeRestrict
}

// Restructure builds a new CFG in which every block with predicated
// instructions is replaced by one block per feasible predicate-outcome
// combination.
func (r *ConditionalRestructurer) Restructure(cf *cfg.CFG) *cfg.CFG {
	out := r.Coll.NewCFG(cf.Label, cf.Address)

	blockMap := map[cfg.BlockID][]cfg.BlockID{}
	restrictOf := map[cfg.BlockID][]edgeRestrict{}

	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		switch blk.Kind {
		case cfg.KindBasic:
			cases := r.splitBlock(blk)
			ids := make([]cfg.BlockID, len(cases))
			restricts := make([]edgeRestrict, len(cases))
			for i, c := range cases {
				ids[i] = r.Coll.AddBasicBlock(out, c.insts)
				restricts[i] = c.restrict
			}
			blockMap[id] = ids
			restrictOf[id] = restricts
		case cfg.KindSynthetic:
			blockMap[id] = []cfg.BlockID{r.Coll.AddSyntheticBlock(out, blk.Callee, blk.CallSite)}
		}
	}

	casesOf := func(id cfg.BlockID) []cfg.BlockID {
		switch id {
		case cf.Entry:
			return []cfg.BlockID{out.Entry}
		case cf.Exit:
			return []cfg.BlockID{out.Exit}
		case cf.Unknown:
			return []cfg.BlockID{out.Unknown}
		}
		return blockMap[id]
	}

	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		srcCases := casesOf(id)
		restricts := restrictOf[id]
		for _, eid := range blk.Out {
			e := cf.Edge(eid)
			sinkCases := casesOf(e.Sink)
			for ci, sc := range srcCases {
				if restricts != nil {
					switch restricts[ci] {
					case restrictTakenOnly:
						if e.Kind == cfg.EdgeNotTaken {
							continue
						}
					case restrictNotTakenOnly:
						if e.Kind == cfg.EdgeTaken {
							continue
						}
					}
				}
				for _, tc := range sinkCases {
					r.Coll.AddEdge(e.Kind, sc, tc)
				}
			}
		}
	}

	return out
}

// condInst pairs a predicated instruction's index in its block with its
// guard condition.
type condInst struct {
	idx  int
	cond Condition
}

func (r *ConditionalRestructurer) splitBlock(blk *cfg.Block) []caseResult {
	var conds []condInst
	for i, in := range blk.Insts {
		c, ok := r.Conditions[in]
		if !ok || c.Pred == PredAny {
			continue
		}
		conds = append(conds, condInst{idx: i, cond: c})
	}
	if len(conds) == 0 {
		return []caseResult{{insts: blk.Insts, restrict: restrictNone}}
	}

	// An instruction whose condition register is written to later in
	// the block is dropped from the combination: the write invalidates
	// any further static reasoning about that guard.
	valid := make([]bool, len(conds))
	for i, c := range conds {
		valid[i] = true
		for j := c.idx + 1; j < len(blk.Insts); j++ {
			if blk.Insts[j].Writes.Contains(c.cond.Register) {
				valid[i] = false
				break
			}
		}
	}

	var active []int
	for i, ok := range valid {
		if ok {
			active = append(active, i)
		}
	}

	lastIdx := len(blk.Insts) - 1
	var out []caseResult
	n := len(active)
	for mask := 0; mask < (1 << uint(n)); mask++ {
		taken := make(map[int]bool, n)
		for k, ai := range active {
			taken[ai] = mask&(1<<uint(k)) != 0
		}
		if !feasible(conds, taken) {
			continue
		}

		insts := append([]*prog.Instruction{}, blk.Insts...)
		restrict := restrictNone
		for ci, c := range conds {
			tv, ok := taken[ci]
			if !ok {
				continue // not part of this combination (overwritten later)
			}
			if !tv {
				insts[c.idx] = &prog.Instruction{Address: insts[c.idx].Address, Size: insts[c.idx].Size, Kind: prog.IsIntern}
			}
			if c.idx == lastIdx {
				if tv {
					restrict = restrictTakenOnly
				} else {
					restrict = restrictNotTakenOnly
				}
			}
		}
		out = append(out, caseResult{insts: insts, restrict: restrict})
	}

	if len(out) == 0 {
		return []caseResult{{insts: blk.Insts, restrict: restrictNone}}
	}
	return out
}

func feasible(conds []condInst, taken map[int]bool) bool {
	for i := range conds {
		vi, oki := taken[i]
		if !oki {
			continue
		}
		for j := i + 1; j < len(conds); j++ {
			vj, okj := taken[j]
			if !okj {
				continue
			}
			if conds[i].cond.Register != conds[j].cond.Register || conds[i].cond.Signed != conds[j].cond.Signed {
				continue
			}
			if conds[i].cond.Pred == conds[j].cond.Pred {
				if vi != vj {
					return false
				}
			} else if conds[i].cond.Pred == conds[j].cond.Pred.negate() {
				if vi == vj {
					return false
				}
			}
		}
	}
	return true
}
