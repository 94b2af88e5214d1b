package wcetdrv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
	"github.com/statinf-otawa/otawa-sub004/internal/event"
	"github.com/statinf-otawa/otawa-sub004/internal/flowfacts"
	"github.com/statinf-otawa/otawa-sub004/internal/ilp"
	"github.com/statinf-otawa/otawa-sub004/internal/procreg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
	"github.com/statinf-otawa/otawa-sub004/internal/transform"
	"github.com/statinf-otawa/otawa-sub004/internal/workspace"
)

// Feature names the stages of the driver's pipeline, run in dependency
// order by internal/procreg (spec.md §4.10/§2 "Control flow") instead of
// a single hand-written call sequence: every stage declares what it
// needs and what it provides, and procreg.Run topologically orders them.
const (
	FeatureCFG       procreg.Feature = "wcetdrv.cfg"
	FeatureDominance procreg.Feature = "wcetdrv.dominance"
	FeatureICache    procreg.Feature = "wcetdrv.icache"
	FeatureBranch    procreg.Feature = "wcetdrv.branch"
	FeatureDCache    procreg.Feature = "wcetdrv.dcache"
	FeatureILPSystem procreg.Feature = "wcetdrv.ilp_system"
	FeatureWCET      procreg.Feature = "wcetdrv.wcet"
)

// Workspace-scoped annotation identifiers threading state between the
// registered processors. These stay unexported: callers interact with
// the driver through Config/Result, not the workspace's property list
// directly.
var (
	identFlow       = prop.NewIdentifier[[]flowfacts.Directive]("wcetdrv.flow_directives")
	identConditions = prop.NewIdentifier[map[*prog.Instruction]transform.Condition]("wcetdrv.conditions")
	identCost       = prop.NewIdentifier[InstCost]("wcetdrv.inst_cost")
	identSolverCfg  = prop.NewIdentifier[ilp.Solver]("wcetdrv.solver")

	identCFG    = prop.NewIdentifier[*cfg.CFG]("wcetdrv.prepared_cfg")
	identBounds = prop.NewIdentifier[map[uint64]int64]("wcetdrv.loop_bounds")
	identLoops  = prop.NewIdentifier[[]*dom.Loop]("wcetdrv.loops")
	identRank   = prop.NewIdentifier[[]int]("wcetdrv.rank")

	identICache = prop.NewIdentifier[[]ilp.CacheAccess]("wcetdrv.icache_accesses")
	identBranch = prop.NewIdentifier[[]ilp.BranchAccess]("wcetdrv.branch_accesses")
	identPurge  = prop.NewIdentifier[[]PurgeAccess]("wcetdrv.purge_accesses")

	identSystem        = prop.NewIdentifier[*ilp.System]("wcetdrv.ilp_system_value")
	identVars          = prop.NewIdentifier[*ilp.Vars]("wcetdrv.ilp_vars")
	identEvents        = prop.NewIdentifier[[]*event.Event]("wcetdrv.events")
	identSolution      = prop.NewIdentifier[*ilp.Solution]("wcetdrv.solution")
	identCacheMissVar  = prop.NewIdentifier[map[string]int]("wcetdrv.cache_miss_var")
	identBranchMPVar   = prop.NewIdentifier[[]int]("wcetdrv.branch_mispred_var")
)

func init() {
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.prepare_cfg",
		Provides: []procreg.Feature{FeatureCFG},
		New:      func() procreg.Processor { return prepareCFGProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.dominance",
		Requires: []procreg.Feature{FeatureCFG},
		Provides: []procreg.Feature{FeatureDominance},
		New:      func() procreg.Processor { return dominanceProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.icache",
		Requires: []procreg.Feature{FeatureDominance},
		Provides: []procreg.Feature{FeatureICache},
		New:      func() procreg.Processor { return icacheProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.branch",
		Requires: []procreg.Feature{FeatureDominance},
		Provides: []procreg.Feature{FeatureBranch},
		New:      func() procreg.Processor { return branchProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.dcache",
		Requires: []procreg.Feature{FeatureDominance},
		Provides: []procreg.Feature{FeatureDCache},
		New:      func() procreg.Processor { return dcacheProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.ilp_system",
		Requires: []procreg.Feature{FeatureICache, FeatureBranch, FeatureDCache},
		Provides: []procreg.Feature{FeatureILPSystem},
		New:      func() procreg.Processor { return ilpProcessor{} },
	})
	procreg.Register(procreg.Registration{
		Name:     "wcetdrv.solve",
		Requires: []procreg.Feature{FeatureILPSystem},
		Provides: []procreg.Feature{FeatureWCET},
		New:      func() procreg.Processor { return solveProcessor{} },
	})
}

// prepareCFGProcessor runs the CFG provider's transformers in sequence
// (spec.md §4.1): virtualize (inline calls), peel loops against the
// flow facts' MAX_ITERATION bounds, then restructure predicated blocks
// if the caller supplied conditions.
type prepareCFGProcessor struct{}

func (prepareCFGProcessor) Run(ws *workspace.Workspace) error {
	log := ws.Log.For("wcetdrv.prepare_cfg")
	entry := ws.Collection.EntryCFG()
	if entry == nil {
		return NewConfigurationError("no entry cfg in the collection", nil)
	}

	vz := &transform.Virtualizer{Coll: ws.Collection, Default: ws.Options.VirtualDefault}
	virtual, err := vz.Virtualize(entry)
	if err != nil {
		return NewUnstructuredCFGError("virtualizing the task", err)
	}

	flow, _ := prop.Get(&ws.Props, identFlow)
	bounds := flowfacts.Bounds(flow)
	prop.Set(&ws.Props, identBounds, bounds)

	unroller := &transform.LoopUnroller{Coll: ws.Collection}
	unrolled, err := unroller.Unroll(virtual, bounds)
	if err != nil {
		return NewUnstructuredCFGError("unrolling loops", err)
	}

	final := unrolled
	if conds, ok := prop.Get(&ws.Props, identConditions); ok && len(conds) > 0 {
		r := &transform.ConditionalRestructurer{Coll: ws.Collection, Conditions: conds}
		final = r.Restructure(unrolled)
	}

	if ws.Options.CFGStart != "" {
		start, stops, err := parseSubCFGBounds(ws.Options.CFGStart, ws.Options.CFGStop)
		if err != nil {
			return NewConfigurationError("parsing cfg_start/cfg_stop", err)
		}
		x := &transform.SubCFGExtractor{Coll: ws.Collection}
		sub, err := x.Extract(final, start, stops)
		if err != nil {
			return NewConfigurationError(fmt.Sprintf("extracting sub-cfg from 0x%x", start), err)
		}
		log.Info().Msg("restricted cfg to the configured sub-cfg bounds")
		final = sub
	}

	if err := final.Validate(); err != nil {
		return NewUnstructuredCFGError("validating the prepared cfg", err)
	}

	prop.Set(&ws.Props, identCFG, final)
	ws.MarkProvided(identCFG.RawID(), "wcetdrv.prepare_cfg")
	ws.MarkProvided(identBounds.RawID(), "wcetdrv.prepare_cfg")
	log.Debug().Msg("cfg prepared")
	return nil
}

// parseSubCFGBounds decodes the CFG_START/CFG_STOP configuration keys
// (spec.md §6): a single start address, and zero or more comma-separated
// stop addresses (a comma-separated list is the only way to express more
// than one STOP under a single string-valued TOML key). Addresses accept
// any base strconv recognizes, so "0x..." and plain decimal both work.
func parseSubCFGBounds(startStr, stopStr string) (uint64, []uint64, error) {
	start, err := strconv.ParseUint(strings.TrimSpace(startStr), 0, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("cfg_start %q: %w", startStr, err)
	}
	var stops []uint64
	for _, f := range strings.Split(stopStr, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		addr, err := strconv.ParseUint(f, 0, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("cfg_stop %q: %w", f, err)
		}
		stops = append(stops, addr)
	}
	if len(stops) == 0 {
		return 0, nil, fmt.Errorf("cfg_start is set but cfg_stop names no address")
	}
	return start, stops, nil
}

// dominanceProcessor computes dominance, loop structure and a
// ranking (spec.md §4.2/§4.3), then enforces that every loop carries a
// MAX_ITERATION bound: an IPET system with an unbounded loop back edge
// is unsolvable (spec.md §4.7's failure semantics), so this is raised
// eagerly as FlowFactMissingError rather than surfacing as a confusing
// solver infeasibility later.
type dominanceProcessor struct{}

func (dominanceProcessor) Run(ws *workspace.Workspace) error {
	cf, ok := prop.Get(&ws.Props, identCFG)
	if !ok {
		return NewConfigurationError("dominance: no prepared cfg", nil)
	}
	dom.Compute(cf)
	loops := dom.Loops(cf)
	bounds, _ := prop.Get(&ws.Props, identBounds)
	for _, lp := range loops {
		if lp.IsTop {
			continue
		}
		addr := cf.Block(lp.Header).Address()
		if _, ok := bounds[addr]; !ok {
			return NewFlowFactMissingError(fmt.Sprintf("loop header at 0x%x has no MAX_ITERATION bound", addr), nil)
		}
	}

	prop.Set(&ws.Props, identLoops, loops)
	prop.Set(&ws.Props, identRank, dom.Rank(cf))
	ws.MarkProvided(identLoops.RawID(), "wcetdrv.dominance")
	ws.MarkProvided(identRank.RawID(), "wcetdrv.dominance")
	ws.Log.For("wcetdrv.dominance").Debug().Msg("dominance and loop structure computed")
	return nil
}

// icacheProcessor classifies every instruction fetch against the first
// instruction (or unified) cache level of the hardware description, if
// any (spec.md §4.4). A hardware description with no such level models
// no instruction cache at all, per spec.md §6's "absent" rule.
type icacheProcessor struct{}

func (icacheProcessor) Run(ws *workspace.Workspace) error {
	log := ws.Log.For("wcetdrv.icache")
	cf, ok := prop.Get(&ws.Props, identCFG)
	if !ok {
		return NewConfigurationError("icache: no prepared cfg", nil)
	}
	if ws.Hardware == nil {
		log.Debug().Msg("no hardware description: skipping instruction cache classification")
		return nil
	}
	desc, ok := cacheDescriptionFor(ws.Hardware, "inst")
	if !ok {
		log.Debug().Msg("no instruction cache level: skipping classification")
		return nil
	}
	accesses := buildICacheAccesses(cf, desc, missPenalty(ws.Hardware), ws.Options.FirstMissLevel, ws.Options.PseudoUnroll)
	prop.Set(&ws.Props, identICache, accesses)
	ws.MarkProvided(identICache.RawID(), "wcetdrv.icache")
	log.Info().Msg("classified instruction cache accesses")
	return nil
}

// branchProcessor classifies every conditional branch against the
// hardware description's branch-history table, if modeled.
type branchProcessor struct{}

func (branchProcessor) Run(ws *workspace.Workspace) error {
	log := ws.Log.For("wcetdrv.branch")
	cf, ok := prop.Get(&ws.Props, identCFG)
	if !ok {
		return NewConfigurationError("branch: no prepared cfg", nil)
	}
	if ws.Hardware == nil || !ws.Hardware.HasBHT() {
		log.Debug().Msg("no branch history table: skipping branch classification")
		return nil
	}
	accesses := buildBranchAccesses(cf, ws.Hardware.BHT)
	prop.Set(&ws.Props, identBranch, accesses)
	ws.MarkProvided(identBranch.RawID(), "wcetdrv.branch")
	log.Info().Msg("classified branch predictor accesses")
	return nil
}

// dcacheProcessor classifies every data access against the hardware
// description's data (or unified) cache level, if write-back, and
// derives the write-back purge category of each access (spec.md §4.5).
// A write-through or absent data cache never forces a write-back, so
// this processor is a no-op in that case: there is nothing for
// internal/dcache's purge analysis to charge.
type dcacheProcessor struct{}

func (dcacheProcessor) Run(ws *workspace.Workspace) error {
	log := ws.Log.For("wcetdrv.dcache")
	cf, ok := prop.Get(&ws.Props, identCFG)
	if !ok {
		return NewConfigurationError("dcache: no prepared cfg", nil)
	}
	if ws.Hardware == nil {
		log.Debug().Msg("no hardware description: skipping data cache purge analysis")
		return nil
	}
	desc, ok := cacheDescriptionFor(ws.Hardware, "data")
	if !ok || desc.Write != cache.WriteBack {
		log.Debug().Msg("no write-back data cache level: skipping purge analysis")
		return nil
	}

	rank, _ := prop.Get(&ws.Props, identRank)
	loops, _ := prop.Get(&ws.Props, identLoops)
	perBlock := buildDataAccesses(cf)

	var accesses []PurgeAccess
	for s := 0; s < desc.Sets; s++ {
		accesses = append(accesses, assemblePurgeAccesses(cf, rank, loops, desc, s, perBlock, missPenalty(ws.Hardware), ws.Options.FirstMissLevel, ws.Options.PseudoUnroll)...)
	}

	prop.Set(&ws.Props, identPurge, accesses)
	ws.MarkProvided(identPurge.RawID(), "wcetdrv.dcache")
	log.Info().Msg("classified data cache purge accesses")
	return nil
}

// ilpProcessor assembles the full IPET system (spec.md §4.7): the
// structural constraints, the flow-fact loop bounds, the static-time
// objective, and whatever cache/branch miss constraints the earlier
// stages classified.
type ilpProcessor struct{}

func (ilpProcessor) Run(ws *workspace.Workspace) error {
	cf, ok := prop.Get(&ws.Props, identCFG)
	if !ok {
		return NewConfigurationError("ilp: no prepared cfg", nil)
	}
	loops, _ := prop.Get(&ws.Props, identLoops)
	bounds, _ := prop.Get(&ws.Props, identBounds)
	cost, _ := prop.Get(&ws.Props, identCost)

	sys := ilp.NewSystem()
	v := ilp.AssembleStructural(sys, cf, ws.Options.Explicit)

	loopBounds := ilp.LoopBounds{}
	for _, lp := range loops {
		if lp.IsTop {
			continue
		}
		if n, ok := bounds[cf.Block(lp.Header).Address()]; ok {
			loopBounds[lp.Header] = n
		}
	}
	ilp.AssembleFlowFacts(sys, cf, v, loops, loopBounds)
	ilp.AssembleObjective(sys, cf, v, blockTimes(cf, cost))

	var events []*event.Event
	if accesses, ok := prop.Get(&ws.Props, identICache); ok && len(accesses) > 0 {
		cacheEvents, missVar := ilp.AssembleCache(sys, cf, v, accesses)
		events = append(events, cacheEvents...)
		prop.Set(&ws.Props, identCacheMissVar, missVar)
	}
	if accesses, ok := prop.Get(&ws.Props, identBranch); ok && len(accesses) > 0 {
		branchEvents, mpVar := ilp.AssembleBranch(sys, cf, v, accesses)
		events = append(events, branchEvents...)
		prop.Set(&ws.Props, identBranchMPVar, mpVar)
	}
	if accesses, ok := prop.Get(&ws.Props, identPurge); ok && len(accesses) > 0 {
		AssemblePurge(sys, v, accesses)
	}

	prop.Set(&ws.Props, identSystem, sys)
	prop.Set(&ws.Props, identVars, v)
	prop.Set(&ws.Props, identEvents, events)
	ws.MarkProvided(identSystem.RawID(), "wcetdrv.ilp_system")
	ws.MarkProvided(identVars.RawID(), "wcetdrv.ilp_system")
	ws.MarkProvided(identEvents.RawID(), "wcetdrv.ilp_system")
	ws.Log.For("wcetdrv.ilp_system").Info().Msg("assembled ilp system")
	return nil
}

// solveProcessor hands the assembled system to the configured solver,
// defaulting to ilp.NaiveSolver so a workspace with no solver configured
// still produces a WCET for small systems (the toy §8 scenarios).
type solveProcessor struct{}

func (solveProcessor) Run(ws *workspace.Workspace) error {
	sys, ok := prop.Get(&ws.Props, identSystem)
	if !ok {
		return NewConfigurationError("solve: no assembled ilp system", nil)
	}
	solver, ok := prop.Get(&ws.Props, identSolverCfg)
	if !ok {
		solver = ilp.NaiveSolver{}
	}
	sol, err := solver.Solve(context.Background(), sys)
	if err != nil {
		return NewSolverError("solving the ilp system", err)
	}
	prop.Set(&ws.Props, identSolution, sol)
	ws.MarkProvided(identSolution.RawID(), "wcetdrv.solve")
	ws.Log.For("wcetdrv.solve").Info().Msg("solved ilp system")
	return nil
}

// Config is the input to Run: the workspace to compute a WCET over plus
// the inputs that have no other natural home in workspace.Workspace.
type Config struct {
	Workspace *workspace.Workspace

	// Flow carries the parsed flow-facts directives (internal/flowfacts);
	// every non-top loop discovered after transformation must have a
	// MAX_ITERATION bound here or Run fails with FlowFactMissingError.
	Flow []flowfacts.Directive

	// Conditions supplies the predicated-instruction guards the
	// conditional restructurer needs; nil skips that transform.
	Conditions map[*prog.Instruction]transform.Condition

	// Cost is the per-instruction static time model; nil defaults to one
	// cycle per instruction.
	Cost InstCost

	// Solver is the ILP backend; nil defaults to ilp.NaiveSolver.
	Solver ilp.Solver
}

// Result is everything a caller of Run might want to inspect or hand to
// internal/stats for a statistics dump.
type Result struct {
	CFG      *cfg.CFG
	System   *ilp.System
	Vars     *ilp.Vars
	Events   []*event.Event
	Solution *ilp.Solution

	// ICache and Branch are the per-access classifications themselves
	// (spec.md §4.8's true per-access granularity, not a per-block
	// summary); CacheMissVar/BranchMispredVar let a caller look up the
	// solved miss/misprediction count for any one of them.
	ICache          []ilp.CacheAccess
	Branch          []ilp.BranchAccess
	CacheMissVar    map[string]int
	BranchMispredVar []int
}

// Run computes a WCET bound for c, driving the pipeline
// through internal/procreg so every stage's declared dependencies are
// honored regardless of call order.
func Run(c Config) (*Result, error) {
	if c.Workspace == nil {
		return nil, NewConfigurationError("Config.Workspace is nil", nil)
	}
	ws := c.Workspace

	prop.Set(&ws.Props, identFlow, c.Flow)
	if c.Conditions != nil {
		prop.Set(&ws.Props, identConditions, c.Conditions)
	}
	if c.Cost != nil {
		prop.Set(&ws.Props, identCost, c.Cost)
	}
	if c.Solver != nil {
		prop.Set(&ws.Props, identSolverCfg, c.Solver)
	}

	if err := procreg.Run(ws, FeatureWCET); err != nil {
		var werr *Error
		if errors.As(err, &werr) {
			return nil, werr
		}
		return nil, NewConfigurationError("driver orchestration failed", err)
	}

	res := &Result{}
	res.CFG, _ = prop.Get(&ws.Props, identCFG)
	res.System, _ = prop.Get(&ws.Props, identSystem)
	res.Vars, _ = prop.Get(&ws.Props, identVars)
	res.Events, _ = prop.Get(&ws.Props, identEvents)
	res.Solution, _ = prop.Get(&ws.Props, identSolution)
	res.ICache, _ = prop.Get(&ws.Props, identICache)
	res.Branch, _ = prop.Get(&ws.Props, identBranch)
	res.CacheMissVar, _ = prop.Get(&ws.Props, identCacheMissVar)
	res.BranchMispredVar, _ = prop.Get(&ws.Props, identBranchMPVar)
	return res, nil
}
