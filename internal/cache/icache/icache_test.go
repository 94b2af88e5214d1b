package icache

import (
	"sort"
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/cache"
	"github.com/statinf-otawa/otawa-sub004/internal/cache/pers"
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/dom"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// S1: a two-block loop (H at 0x1000, B at 0x1008), each instruction
// alone in its own 8-byte cache line, associativity 2. Both L-blocks
// should classify FIRST_MISS, charged at the loop header H.
func TestClassifyS1LoopBothFirstMiss(t *testing.T) {
	c := cfg.NewCollection()
	cf := c.NewCFG("s1", 0x1000)
	h := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1000, Size: 4}})
	b := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1008, Size: 4}})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, h)
	c.AddEdge(cfg.EdgeTaken, h, b)
	c.AddEdge(cfg.EdgeTaken, b, h)
	c.AddEdge(cfg.EdgeNotTaken, b, cf.Exit)
	dom.Compute(cf)

	d := &cache.Description{Associativity: 2, Sets: 1, BlockSize: 8}
	res := Classify(cf, d, config.FirstMissMulti, false)

	if got := res.Categories[h][0].Kind; got != cache.FirstMiss {
		t.Fatalf("expected H's L-block to be FIRST_MISS, got %v", got)
	}
	if got := res.Categories[h][0].Header; got != h {
		t.Fatalf("expected the FIRST_MISS to be charged at the loop header")
	}
	if got := res.Categories[b][0].Kind; got != cache.FirstMiss {
		t.Fatalf("expected B's L-block to be FIRST_MISS, got %v", got)
	}
}

// buildNestedLoopCFG builds an outer loop (header h1) wrapping an inner
// loop (header h2, body b2): entry->h1->h2->b2->h2(back)->h1(outer
// back)->exit, so a block inside the inner loop is InDomain for both
// the outer and the inner pers.Level.
func buildNestedLoopCFG(t *testing.T) (cf *cfg.CFG, h1, h2, b2 cfg.BlockID) {
	t.Helper()
	c := cfg.NewCollection()
	cf = c.NewCFG("nested", 0x1000)
	h1 = c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1000, Size: 4}})
	h2 = c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1004, Size: 4}})
	b2 = c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1008, Size: 4}})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, h1)
	c.AddEdge(cfg.EdgeTaken, h1, h2)
	c.AddEdge(cfg.EdgeNotTaken, h1, cf.Exit)
	c.AddEdge(cfg.EdgeTaken, h2, b2)
	c.AddEdge(cfg.EdgeNotTaken, h2, h1)
	c.AddEdge(cfg.EdgeTaken, b2, h2)
	dom.Compute(cf)
	return cf, h1, h2, b2
}

func TestSelectLevelsOuterAndInnerPickDifferentHeaders(t *testing.T) {
	cf, h1, h2, b2 := buildNestedLoopCFG(t)
	loops := dom.Loops(cf)

	accesses := map[cfg.BlockID][]int{b2: {0}}
	levels := pers.Build(cf, loops, 2, accesses)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Depth < levels[j].Depth })

	outer := selectLevels(levels, b2, config.FirstMissOuter)
	if len(outer) != 1 || outer[0].Header != h1 {
		t.Fatalf("OUTER: expected exactly the h1 level for b2, got %v", outer)
	}
	inner := selectLevels(levels, b2, config.FirstMissInner)
	if len(inner) != 1 || inner[0].Header != h2 {
		t.Fatalf("INNER: expected exactly the h2 level for b2, got %v", inner)
	}
	multi := selectLevels(levels, b2, config.FirstMissMulti)
	if len(multi) != 2 {
		t.Fatalf("MULTI: expected both levels for b2, got %d", len(multi))
	}
	none := selectLevels(levels, b2, config.FirstMissNone)
	if len(none) != 0 {
		t.Fatalf("NONE: expected no levels, got %d", len(none))
	}
}

func TestClassifyStraightLineColdAccessAlwaysMiss(t *testing.T) {
	c := cfg.NewCollection()
	cf := c.NewCFG("linear", 0x2000)
	a := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x2000, Size: 4}, {Address: 0x2004, Size: 4}})
	b := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x2008, Size: 4}})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, a)
	c.AddEdge(cfg.EdgeTaken, a, b)
	c.AddEdge(cfg.EdgeTaken, b, cf.Exit)
	dom.Compute(cf)

	d := &cache.Description{Associativity: 2, Sets: 1, BlockSize: 8}
	res := Classify(cf, d, config.FirstMissMulti, false)

	for _, cat := range res.Categories[a] {
		if cat.Kind != cache.AlwaysMiss {
			t.Fatalf("a's cold first (and only) access should be ALWAYS_MISS, got %v", cat.Kind)
		}
	}
}
