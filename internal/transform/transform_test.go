package transform

import (
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

func buildCallee(coll *cfg.Collection) *cfg.CFG {
	cf := coll.NewCFG("callee", 0x2000)
	body := &prog.Instruction{Address: 0x2000, Size: 4, Kind: prog.IsInt}
	bodyBlk := coll.AddBasicBlock(cf, []*prog.Instruction{body})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, bodyBlk)
	coll.AddEdge(cfg.EdgeTaken, bodyBlk, cf.Exit)
	return cf
}

func buildCaller(coll *cfg.Collection, callee *cfg.CFG) *cfg.CFG {
	cf := coll.NewCFG("caller", 0x1000)
	call := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsControl | prog.IsCall}
	callBlk := coll.AddBasicBlock(cf, []*prog.Instruction{call})
	synth := coll.AddSyntheticBlock(cf, callee, call)
	after := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	afterBlk := coll.AddBasicBlock(cf, []*prog.Instruction{after})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, callBlk)
	coll.AddEdge(cfg.EdgeCall, callBlk, synth)
	coll.AddEdge(cfg.EdgeReturn, synth, afterBlk)
	coll.AddEdge(cfg.EdgeTaken, afterBlk, cf.Exit)
	return cf
}

func TestVirtualizeInlinesSimpleCall(t *testing.T) {
	coll := cfg.NewCollection()
	callee := buildCallee(coll)
	caller := buildCaller(coll, callee)

	vz := &Virtualizer{Coll: coll, Default: true}
	out, err := vz.Virtualize(caller)
	if err != nil {
		t.Fatalf("Virtualize: %v", err)
	}
	for _, id := range out.Blocks() {
		if out.Block(id).Kind == cfg.KindSynthetic {
			t.Fatalf("expected no synthetic blocks after inlining")
		}
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestVirtualizeLeavesRecursiveCallSynthetic(t *testing.T) {
	coll := cfg.NewCollection()
	cf := coll.NewCFG("f", 0x1000)
	call := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsControl | prog.IsCall}
	callBlk := coll.AddBasicBlock(cf, []*prog.Instruction{call})
	synth := coll.AddSyntheticBlock(cf, cf, call)
	after := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	afterBlk := coll.AddBasicBlock(cf, []*prog.Instruction{after})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, callBlk)
	coll.AddEdge(cfg.EdgeCall, callBlk, synth)
	coll.AddEdge(cfg.EdgeReturn, synth, afterBlk)
	coll.AddEdge(cfg.EdgeTaken, afterBlk, cf.Exit)

	vz := &Virtualizer{Coll: coll, Default: true}
	out, err := vz.Virtualize(cf)
	if err != nil {
		t.Fatalf("Virtualize: %v", err)
	}
	var sawRecursive bool
	for _, id := range out.Blocks() {
		blk := out.Block(id)
		if blk.Kind == cfg.KindSynthetic && prop.GetOr(&blk.Props, RecursiveLoop, false) {
			sawRecursive = true
		}
	}
	if !sawRecursive {
		t.Fatalf("expected a synthetic block flagged recursive")
	}
}

func buildSingleBlockLoop(coll *cfg.Collection) *cfg.CFG {
	cf := coll.NewCFG("loop", 0x1000)
	hdr := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsControl | prog.IsCond}
	hdrBlk := coll.AddBasicBlock(cf, []*prog.Instruction{hdr})
	tail := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	tailBlk := coll.AddBasicBlock(cf, []*prog.Instruction{tail})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, hdrBlk)
	coll.AddEdge(cfg.EdgeTaken, hdrBlk, hdrBlk)
	coll.AddEdge(cfg.EdgeNotTaken, hdrBlk, tailBlk)
	coll.AddEdge(cfg.EdgeTaken, tailBlk, cf.Exit)
	return cf
}

func TestUnrollPeelsLoopFirstIteration(t *testing.T) {
	coll := cfg.NewCollection()
	cf := buildSingleBlockLoop(coll)

	u := &LoopUnroller{Coll: coll}
	out, err := u.Unroll(cf, map[uint64]int64{0x1000: 3})
	if err != nil {
		t.Fatalf("Unroll: %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var headers int
	for _, id := range out.Blocks() {
		blk := out.Block(id)
		if blk.Kind == cfg.KindBasic && blk.Address() == 0x1000 {
			headers++
		}
	}
	if headers != 2 {
		t.Fatalf("expected 2 header copies after one peel, got %d", headers)
	}
}

func TestUnrollLeavesZeroBoundLoopUntouched(t *testing.T) {
	coll := cfg.NewCollection()
	cf := buildSingleBlockLoop(coll)

	u := &LoopUnroller{Coll: coll}
	out, err := u.Unroll(cf, map[uint64]int64{0x1000: 0})
	if err != nil {
		t.Fatalf("Unroll: %v", err)
	}
	var headers int
	for _, id := range out.Blocks() {
		blk := out.Block(id)
		if blk.Kind == cfg.KindBasic && blk.Address() == 0x1000 {
			headers++
		}
	}
	if headers != 1 {
		t.Fatalf("expected the loop untouched (1 header), got %d", headers)
	}
}

func TestRestructureSplitsPredicatedBlock(t *testing.T) {
	coll := cfg.NewCollection()
	cf := coll.NewCFG("f", 0x1000)
	i1 := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsInt}
	i2 := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	blk := coll.AddBasicBlock(cf, []*prog.Instruction{i1, i2})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, blk)
	coll.AddEdge(cfg.EdgeTaken, blk, cf.Exit)

	r := &ConditionalRestructurer{
		Coll:       coll,
		Conditions: map[*prog.Instruction]Condition{i1: {Register: 1, Pred: PredEQ}},
	}
	out := r.Restructure(cf)
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var basics int
	for _, id := range out.Blocks() {
		if out.Block(id).Kind == cfg.KindBasic {
			basics++
		}
	}
	if basics != 2 {
		t.Fatalf("expected 2 case blocks, got %d", basics)
	}
}

func TestRestructureEliminatesContradictoryCases(t *testing.T) {
	coll := cfg.NewCollection()
	cf := coll.NewCFG("f", 0x1000)
	i1 := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsInt}
	i2 := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsInt}
	i3 := &prog.Instruction{Address: 0x1008, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	blk := coll.AddBasicBlock(cf, []*prog.Instruction{i1, i2, i3})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, blk)
	coll.AddEdge(cfg.EdgeTaken, blk, cf.Exit)

	r := &ConditionalRestructurer{
		Coll: coll,
		Conditions: map[*prog.Instruction]Condition{
			i1: {Register: 1, Pred: PredEQ},
			i2: {Register: 1, Pred: PredNE},
		},
	}
	out := r.Restructure(cf)

	var basics int
	for _, id := range out.Blocks() {
		if out.Block(id).Kind == cfg.KindBasic {
			basics++
		}
	}
	if basics != 2 {
		t.Fatalf("expected 2 feasible cases (both-true and both-false eliminated), got %d", basics)
	}
}

func buildChain(coll *cfg.Collection) *cfg.CFG {
	cf := coll.NewCFG("f", 0x1000)
	a1 := &prog.Instruction{Address: 0x1000, Size: 8, Kind: prog.IsInt}
	a2 := &prog.Instruction{Address: 0x1008, Size: 8, Kind: prog.IsInt}
	aBlk := coll.AddBasicBlock(cf, []*prog.Instruction{a1, a2})
	b1 := &prog.Instruction{Address: 0x1010, Size: 0x10, Kind: prog.IsInt}
	bBlk := coll.AddBasicBlock(cf, []*prog.Instruction{b1})
	c1 := &prog.Instruction{Address: 0x1020, Size: 0x10, Kind: prog.IsControl | prog.IsReturn}
	cBlk := coll.AddBasicBlock(cf, []*prog.Instruction{c1})
	coll.AddEdge(cfg.EdgeTaken, cf.Entry, aBlk)
	coll.AddEdge(cfg.EdgeTaken, aBlk, bBlk)
	coll.AddEdge(cfg.EdgeTaken, bBlk, cBlk)
	coll.AddEdge(cfg.EdgeTaken, cBlk, cf.Exit)
	return cf
}

func TestExtractSubCFGKeepsOnlyPathBlocks(t *testing.T) {
	coll := cfg.NewCollection()
	cf := buildChain(coll)

	x := &SubCFGExtractor{Coll: coll}
	out, err := x.Extract(cf, 0x1008, []uint64{0x1020})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var basics int
	for _, id := range out.Blocks() {
		if out.Block(id).Kind == cfg.KindBasic {
			basics++
		}
	}
	if basics != 2 {
		t.Fatalf("expected 2 basic blocks (the split tail of A and B), got %d", basics)
	}
}

func TestExtractSubCFGErrorsOnMissingAddress(t *testing.T) {
	coll := cfg.NewCollection()
	cf := buildChain(coll)

	x := &SubCFGExtractor{Coll: coll}
	if _, err := x.Extract(cf, 0x9000, []uint64{0x1020}); err == nil {
		t.Fatalf("expected an error for a start address outside the cfg")
	}
}
