// Package stats implements spec.md §4.8: collectors that walk a CFG
// collection and emit one (address, size, value) tuple per block or
// access, used by the WCET driver to write a machine-readable
// statistics file (grounded on original_source/include/otawa/stats/
// StatCollector.h and BBStatCollector.h).
package stats

import (
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
)

// Tuple is one collected (address, size, value) datum.
type Tuple struct {
	Address uint64
	Size    uint64
	Value   string
}

// Collector is a named visitor producing one Tuple per block it has an
// opinion about.
type Collector interface {
	Name() string
	Collect(cf *cfg.CFG) []Tuple
}

// BlockCountCollector reports each block's solved IPET execution count.
type BlockCountCollector struct {
	Values map[cfg.BlockID]float64
}

func (c BlockCountCollector) Name() string { return "block-count" }

func (c BlockCountCollector) Collect(cf *cfg.CFG) []Tuple {
	return collectBasicBlocks(cf, func(b cfg.BlockID) (string, bool) {
		v, ok := c.Values[b]
		return fmt.Sprintf("%g", v), ok
	})
}

// BlockTimeCollector reports each block's total contribution to the
// objective: execution count times static time.
type BlockTimeCollector struct {
	Count map[cfg.BlockID]float64
	Time  map[cfg.BlockID]int64
}

func (c BlockTimeCollector) Name() string { return "block-time" }

func (c BlockTimeCollector) Collect(cf *cfg.CFG) []Tuple {
	return collectBasicBlocks(cf, func(b cfg.BlockID) (string, bool) {
		n, ok := c.Count[b]
		if !ok {
			return "", false
		}
		t := c.Time[b]
		return fmt.Sprintf("%g", n*float64(t)), true
	})
}

// CacheCategoryCollector reports one cache category string per block,
// exactly as given in Category — a cheap block-level summary; the
// collector itself does not look at the block's accesses.
// AccessCollector below reports per-access data instead, one tuple per
// concrete access.
type CacheCategoryCollector struct {
	Category map[cfg.BlockID]string
}

func (c CacheCategoryCollector) Name() string { return "cache-category" }

func (c CacheCategoryCollector) Collect(cf *cfg.CFG) []Tuple {
	return collectBasicBlocks(cf, func(b cfg.BlockID) (string, bool) {
		v, ok := c.Category[b]
		return v, ok
	})
}

// MissCountCollector reports each block's miss count exactly as given
// in Values; the collector itself does not sum accesses or merge
// accesses that share a GroupID.
type MissCountCollector struct {
	Values map[cfg.BlockID]float64
}

func (c MissCountCollector) Name() string { return "miss-count" }

func (c MissCountCollector) Collect(cf *cfg.CFG) []Tuple {
	return collectBasicBlocks(cf, func(b cfg.BlockID) (string, bool) {
		v, ok := c.Values[b]
		return fmt.Sprintf("%g", v), ok
	})
}

// Access is one concrete instruction-level access: a cache reference or
// a branch, addressed at the instruction itself rather than its block.
type Access struct {
	Address uint64
	Size    uint64
	Value   string
}

// AccessCollector reports true per-access granularity: one Tuple per
// Access, instead of the single per-block value CacheCategoryCollector
// and MissCountCollector report.
// DumpXML recognizes an AccessCollector by its type and attaches each
// of its tuples to the <inst> element at the tuple's address, so the
// distinction survives into the XML dump.
type AccessCollector struct {
	CollectorName string
	Accesses      []Access
}

func (c AccessCollector) Name() string { return c.CollectorName }

func (c AccessCollector) Collect(cf *cfg.CFG) []Tuple {
	out := make([]Tuple, len(c.Accesses))
	for i, a := range c.Accesses {
		out[i] = Tuple{Address: a.Address, Size: a.Size, Value: a.Value}
	}
	return out
}

func collectBasicBlocks(cf *cfg.CFG, value func(cfg.BlockID) (string, bool)) []Tuple {
	var out []Tuple
	for _, b := range cf.Blocks() {
		blk := cf.Block(b)
		if blk.Kind != cfg.KindBasic {
			continue
		}
		v, ok := value(b)
		if !ok {
			continue
		}
		out = append(out, Tuple{Address: blk.Address(), Size: blk.Size(), Value: v})
	}
	return out
}
