package dom

import (
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// buildLoop builds entry -> H -> B -> H (back edge) -> exit, the S1
// scenario's single-loop shape.
func buildLoop(t *testing.T) (*cfg.CFG, cfg.BlockID, cfg.BlockID) {
	t.Helper()
	c := cfg.NewCollection()
	cf := c.NewCFG("loop", 0x1000)

	h := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1000, Size: 4}})
	b := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1004, Size: 4}})

	c.AddEdge(cfg.EdgeTaken, cf.Entry, h)
	c.AddEdge(cfg.EdgeTaken, h, b)
	c.AddEdge(cfg.EdgeTaken, b, h)    // back edge
	c.AddEdge(cfg.EdgeNotTaken, b, cf.Exit)

	return cf, h, b
}

func TestComputeDominanceSelfAndEntry(t *testing.T) {
	cf, h, b := buildLoop(t)
	inf := Compute(cf)

	if !inf.Dominates(h, h) || !inf.Dominates(b, b) {
		t.Fatalf("every block must dominate itself")
	}
	if !inf.Dominates(cf.Entry, h) || !inf.Dominates(cf.Entry, b) {
		t.Fatalf("entry must dominate every reachable block")
	}
	if !inf.Dominates(h, b) {
		t.Fatalf("H must dominate B in a single loop")
	}
	if inf.Dominates(b, h) {
		t.Fatalf("B must not dominate H")
	}
}

func TestBackEdgeAndLoopHeaderFlags(t *testing.T) {
	cf, h, b := buildLoop(t)
	Compute(cf)

	var backEdge cfg.EdgeID
	found := false
	for _, eid := range cf.Block(b).Out {
		if cf.Edge(eid).Sink == h {
			backEdge = eid
			found = true
		}
	}
	if !found {
		t.Fatalf("could not find B->H edge")
	}
	if !IsBackEdge(cf, backEdge) {
		t.Fatalf("B->H must be flagged as a back edge")
	}
	if !IsLoopHeader(cf, h) {
		t.Fatalf("H must be flagged as a loop header")
	}
	if IsLoopHeader(cf, b) {
		t.Fatalf("B must not be flagged as a loop header")
	}
}

func TestLoopsNestingAndDepth(t *testing.T) {
	cf, h, _ := buildLoop(t)
	Compute(cf)
	loops := Loops(cf)

	var top, inner *Loop
	for _, l := range loops {
		if l.IsTop {
			top = l
		} else if l.Header == h {
			inner = l
		}
	}
	if top == nil || inner == nil {
		t.Fatalf("expected a top loop and a header loop, got %d loops", len(loops))
	}
	if top.Depth != 0 {
		t.Fatalf("top loop depth = %d, want 0", top.Depth)
	}
	if inner.Depth != top.Depth+1 {
		t.Fatalf("inner loop depth = %d, want %d", inner.Depth, top.Depth+1)
	}
	if inner.Parent != top {
		t.Fatalf("inner loop parent = %v, want top", inner.Parent)
	}
}

func TestRankForwardEdgesIncrease(t *testing.T) {
	cf, h, b := buildLoop(t)
	Compute(cf)
	rank := Rank(cf)

	entryRank := rank[cf.Block(cf.Entry).Index]
	hRank := rank[cf.Block(h).Index]
	bRank := rank[cf.Block(b).Index]

	if !(entryRank < hRank && hRank < bRank) {
		t.Fatalf("expected entry < H < B ranks, got %d, %d, %d", entryRank, hRank, bRank)
	}
}

func TestEnclosingLoopHeaderForLinearCFG(t *testing.T) {
	c := cfg.NewCollection()
	cf := c.NewCFG("linear", 0x2000)
	a := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x2000, Size: 4}})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, a)
	c.AddEdge(cfg.EdgeTaken, a, cf.Exit)

	Compute(cf)
	if _, ok := EnclosingLoopHeader(cf, a); ok {
		t.Fatalf("a block outside any loop must have no enclosing loop header")
	}
}
