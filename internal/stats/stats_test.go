package stats

import (
	"strings"
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

func buildCFG(t *testing.T) (*cfg.CFG, cfg.BlockID) {
	t.Helper()
	c := cfg.NewCollection()
	cf := c.NewCFG("f", 0x1000)
	b := c.AddBasicBlock(cf, []*prog.Instruction{{Address: 0x1000, Size: 4}})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, b)
	c.AddEdge(cfg.EdgeTaken, b, cf.Exit)
	return cf, b
}

func TestBlockCountCollector(t *testing.T) {
	cf, b := buildCFG(t)
	col := BlockCountCollector{Values: map[cfg.BlockID]float64{b: 5}}
	tuples := col.Collect(cf)
	if len(tuples) != 1 || tuples[0].Value != "5" {
		t.Fatalf("unexpected tuples: %+v", tuples)
	}
}

func TestAccessCollectorReportsOneTuplePerAccess(t *testing.T) {
	col := AccessCollector{
		CollectorName: "cache-access",
		Accesses: []Access{
			{Address: 0x1000, Size: 4, Value: "ALWAYS_HIT"},
			{Address: 0x1004, Size: 4, Value: "ALWAYS_MISS"},
		},
	}
	if col.Name() != "cache-access" {
		t.Fatalf("unexpected collector name: %s", col.Name())
	}
	tuples := col.Collect(nil)
	if len(tuples) != 2 || tuples[0].Value != "ALWAYS_HIT" || tuples[1].Value != "ALWAYS_MISS" {
		t.Fatalf("unexpected tuples: %+v", tuples)
	}
}

func TestDumpXMLAttachesPerAccessPropertyToItsOwnInstruction(t *testing.T) {
	c := cfg.NewCollection()
	cf := c.NewCFG("f", 0x1000)
	b := c.AddBasicBlock(cf, []*prog.Instruction{
		{Address: 0x1000, Size: 4},
		{Address: 0x1004, Size: 4},
	})
	c.AddEdge(cfg.EdgeTaken, cf.Entry, b)
	c.AddEdge(cfg.EdgeTaken, b, cf.Exit)

	access := AccessCollector{
		CollectorName: "cache-access",
		Accesses: []Access{
			{Address: 0x1000, Size: 4, Value: "ALWAYS_HIT"},
			{Address: 0x1004, Size: 4, Value: "FIRST_MISS"},
		},
	}
	block := BlockCountCollector{Values: map[cfg.BlockID]float64{b: 1}}

	var buf strings.Builder
	if err := DumpXML(&buf, cf.Collection(), []Collector{access, block}); err != nil {
		t.Fatalf("DumpXML: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `name="block-count" value="1"`) {
		t.Fatalf("expected the block-level property to still attach to the bb, got %s", out)
	}
	if !strings.Contains(out, `address="4096" size="4"`) {
		t.Fatalf("expected the first instruction in the dump, got %s", out)
	}
	if !strings.Contains(out, `name="cache-access" value="ALWAYS_HIT"`) || !strings.Contains(out, `name="cache-access" value="FIRST_MISS"`) {
		t.Fatalf("expected one cache-access property per instruction, got %s", out)
	}
}

func TestDumpXMLIncludesBlockAndInstruction(t *testing.T) {
	cf, b := buildCFG(t)
	col := BlockCountCollector{Values: map[cfg.BlockID]float64{b: 3}}

	var buf strings.Builder
	if err := DumpXML(&buf, cf.Collection(), []Collector{col}); err != nil {
		t.Fatalf("DumpXML: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `address="4096"`) {
		t.Fatalf("expected the block's address (4096) in the dump, got %s", out)
	}
	if !strings.Contains(out, `name="block-count" value="3"`) {
		t.Fatalf("expected the block-count property in the dump, got %s", out)
	}
}
