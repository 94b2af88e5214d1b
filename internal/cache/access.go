package cache

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// Action distinguishes a data-cache access's direction.
type Action int

const (
	Load Action = iota
	Store
)

// TargetKind classifies the address range a data access touches.
type TargetKind int

const (
	TargetAny TargetKind = iota
	TargetBlock
	TargetRange
)

// Target describes the address(es) a data block access touches
// (spec.md §3 Data block access).
type Target struct {
	Kind  TargetKind
	Block uint64 // valid when Kind == TargetBlock: a cache-block-aligned address
	First uint64 // valid when Kind == TargetRange
	Last  uint64 // valid when Kind == TargetRange; may wrap modulo the address space
}

// Access is one data block access: an instruction, its action, and the
// address(es) it touches.
type Access struct {
	InstAddr uint64
	Action   Action
	Target   Target
}

// Partition builds the L-blocks of every basic block of cf against d,
// grouped by owning block, with per-set ids dense and stable across the
// whole CFG (spec.md §4.4 step 1: "Compute L-blocks of the task").
func Partition(d *Description, cf *cfg.CFG) map[cfg.BlockID][]LBlock {
	counters := map[int]int{}
	out := make(map[cfg.BlockID][]LBlock)
	for _, id := range cf.Blocks() {
		b := cf.Block(id)
		if b.Kind != cfg.KindBasic || b.Size() == 0 {
			continue
		}
		out[id] = BuildLBlocks(d, id, b.Address(), b.Size(), counters)
	}
	return out
}
