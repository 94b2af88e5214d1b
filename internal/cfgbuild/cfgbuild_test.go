package cfgbuild

import (
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// fakeLoader serves a fixed instruction table, keyed by address, over a
// single executable segment at address 0 of size 0x10000.
type fakeLoader struct {
	start uint64
	insts map[uint64]*prog.Instruction
	segs  []prog.Segment
}

func (f *fakeLoader) FindInstAt(addr uint64) *prog.Instruction { return f.insts[addr] }
func (f *fakeLoader) Start() uint64                            { return f.start }
func (f *fakeLoader) Platform() prog.Platform                  { return prog.Platform{} }
func (f *fakeLoader) Segments() []prog.Segment                 { return f.segs }

func newFakeProgram(start uint64, insts []*prog.Instruction) *prog.Program {
	m := make(map[uint64]*prog.Instruction, len(insts))
	for _, in := range insts {
		m[in.Address] = in
	}
	return prog.NewProgram(&fakeLoader{
		start: start,
		insts: m,
		segs:  []prog.Segment{{Name: ".text", Address: 0, Size: 0x10000, Executable: true}},
	})
}

// buildIfThenElse builds: 0x1000 cond-branch -> {0x1010 taken, 0x1008 not-taken}
// 0x1008 jumps to 0x1018 (join), 0x1010 falls to 0x1018, 0x1018 returns.
func buildIfThenElse() *prog.Program {
	join := &prog.Instruction{Address: 0x1018, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	then := &prog.Instruction{Address: 0x1010, Size: 8, Kind: prog.IsInt}
	els := &prog.Instruction{Address: 0x1008, Size: 4, Kind: prog.IsControl, Target: join}
	cond := &prog.Instruction{Address: 0x1000, Size: 8, Kind: prog.IsControl | prog.IsCond, Target: then}
	return newFakeProgram(0x1000, []*prog.Instruction{cond, els, then, join})
}

func TestBuildSplitsBlocksAtBranchAndJoin(t *testing.T) {
	coll := cfg.NewCollection()
	cf, err := Build(coll, buildIfThenElse())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 3 end blocks + 4 basic blocks (cond, else, then, join).
	if cf.BlockCount() != 7 {
		t.Fatalf("expected 7 blocks, got %d", cf.BlockCount())
	}

	var cond cfg.BlockID = -1
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind == cfg.KindBasic && blk.Address() == 0x1000 {
			cond = b
		}
	}
	if cond < 0 {
		t.Fatalf("no block found starting at the cond branch")
	}
	blk := cf.Block(cond)
	if len(blk.Out) != 2 {
		t.Fatalf("expected 2 outgoing edges from the cond block, got %d", len(blk.Out))
	}
	var sawTaken, sawNotTaken bool
	for _, e := range blk.Out {
		switch cf.Edge(e).Kind {
		case cfg.EdgeTaken:
			sawTaken = true
		case cfg.EdgeNotTaken:
			sawNotTaken = true
		}
	}
	if !sawTaken || !sawNotTaken {
		t.Fatalf("expected one taken and one not-taken edge, got taken=%v notTaken=%v", sawTaken, sawNotTaken)
	}
}

func TestBuildWiresCallToSyntheticWithReturnEdge(t *testing.T) {
	calleeRet := &prog.Instruction{Address: 0x2000, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	callee := calleeRet

	after := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}
	call := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsControl | prog.IsCall, Target: callee}

	coll := cfg.NewCollection()
	cf, err := Build(coll, newFakeProgram(0x1000, []*prog.Instruction{call, after, calleeRet}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var callBlock cfg.BlockID = -1
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind == cfg.KindBasic && blk.Address() == 0x1000 {
			callBlock = b
		}
	}
	if callBlock < 0 {
		t.Fatalf("no block found at the call site")
	}
	blk := cf.Block(callBlock)
	if len(blk.Out) != 1 || cf.Edge(blk.Out[0]).Kind != cfg.EdgeCall {
		t.Fatalf("expected a single call edge out of the call block, got %+v", blk.Out)
	}
	synthetic := cf.Block(cf.Edge(blk.Out[0]).Sink)
	if synthetic.Kind != cfg.KindSynthetic || synthetic.Callee == nil {
		t.Fatalf("expected a synthetic block with a resolved callee")
	}
	if len(synthetic.Out) != 1 || cf.Edge(synthetic.Out[0]).Kind != cfg.EdgeReturn {
		t.Fatalf("expected a single return edge out of the synthetic block")
	}
}

func TestBuildRoutesIndirectCallToUnknown(t *testing.T) {
	call := &prog.Instruction{Address: 0x1000, Size: 4, Kind: prog.IsControl | prog.IsCall | prog.IsIndirect}
	after := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsControl | prog.IsReturn}

	coll := cfg.NewCollection()
	cf, err := Build(coll, newFakeProgram(0x1000, []*prog.Instruction{call, after}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var callBlock cfg.BlockID = -1
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind == cfg.KindBasic && blk.Address() == 0x1000 {
			callBlock = b
		}
	}
	synthetic := cf.Block(cf.Edge(cf.Block(callBlock).Out[0]).Sink)
	if synthetic.Callee != nil {
		t.Fatalf("expected a nil callee for the indirect call's synthetic block")
	}
	if len(synthetic.Out) != 1 || cf.Edge(synthetic.Out[0]).Sink != cf.Unknown {
		t.Fatalf("expected the synthetic block's sole edge to land on the unknown block")
	}
}

func TestBuildOutOfSegmentErrors(t *testing.T) {
	coll := cfg.NewCollection()
	_, err := Build(coll, newFakeProgram(0x20000, nil))
	if err == nil {
		t.Fatalf("expected an out-of-segment error")
	}
}
