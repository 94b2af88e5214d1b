package cfg

import (
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// buildLinear builds entry -> A -> B -> exit, the S2 scenario shape.
func buildLinear(t *testing.T) (*Collection, *CFG, BlockID, BlockID) {
	t.Helper()
	c := NewCollection()
	cf := c.NewCFG("main", 0x2000)

	a := c.AddBasicBlock(cf, []*prog.Instruction{
		{Address: 0x2000, Size: 4}, {Address: 0x2004, Size: 4},
		{Address: 0x2008, Size: 4}, {Address: 0x200c, Size: 4},
	})
	b := c.AddBasicBlock(cf, []*prog.Instruction{
		{Address: 0x2010, Size: 4}, {Address: 0x2014, Size: 4},
		{Address: 0x2018, Size: 4}, {Address: 0x201c, Size: 4},
	})

	c.AddEdge(EdgeTaken, cf.Entry, a)
	c.AddEdge(EdgeTaken, a, b)
	c.AddEdge(EdgeTaken, b, cf.Exit)

	return c, cf, a, b
}

func TestCFGLinearShapeAndValidate(t *testing.T) {
	_, cf, a, b := buildLinear(t)

	if cf.BlockCount() != 5 { // entry, exit, unknown, A, B
		t.Fatalf("BlockCount() = %d, want 5", cf.BlockCount())
	}
	if cf.Block(a).Address() != 0x2000 || cf.Block(a).Size() != 16 {
		t.Fatalf("block A address/size = %#x/%d, want 0x2000/16", cf.Block(a).Address(), cf.Block(a).Size())
	}
	if cf.Block(b).Address() != 0x2010 {
		t.Fatalf("block B address = %#x, want 0x2010", cf.Block(b).Address())
	}

	if err := cf.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestCFGSuccessorsPredecessors(t *testing.T) {
	_, cf, a, b := buildLinear(t)

	succ := cf.Successors(a)
	if len(succ) != 1 || succ[0] != b {
		t.Fatalf("Successors(A) = %v, want [B]", succ)
	}
	pred := cf.Predecessors(b)
	if len(pred) != 1 || pred[0] != a {
		t.Fatalf("Predecessors(B) = %v, want [A]", pred)
	}
}

func TestValidateRejectsUnreachableBlock(t *testing.T) {
	c, cf, _, _ := buildLinear(t)
	// A block with no incoming edge at all (never wired into the graph).
	c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x9000, Size: 4}})

	if err := cf.Validate(); err == nil {
		t.Fatalf("expected Validate() to reject an unreachable block")
	}
}

func TestValidateRejectsTwoNotTakenEdges(t *testing.T) {
	c, cf, a, b := buildLinear(t)
	// a already has a TAKEN edge to b; add two NOT-TAKEN edges on top.
	c.AddEdge(EdgeNotTaken, a, b)
	c.AddEdge(EdgeNotTaken, a, b)

	if err := cf.Validate(); err == nil {
		t.Fatalf("expected Validate() to reject a block with >1 not-taken edges")
	}
}

func TestSyntheticBlockCallee(t *testing.T) {
	c := NewCollection()
	caller := c.NewCFG("caller", 0x1000)
	callee := c.NewCFG("callee", 0x3000)

	callSite := &prog.Instruction{Address: 0x1004, Size: 4, Kind: prog.IsCall}
	syn := c.AddSyntheticBlock(caller, callee, callSite)

	blk := caller.Block(syn)
	if blk.Kind != KindSynthetic || blk.Callee != callee || blk.CallSite != callSite {
		t.Fatalf("synthetic block not wired correctly: %+v", blk)
	}
}
