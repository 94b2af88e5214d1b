package cache

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// LBlock is the portion of one basic block lying in exactly one cache
// block (spec.md §3). CFG blocks are partitioned into L-blocks per
// cache set.
type LBlock struct {
	Set        int
	ID         int // linear id within its set
	Block      cfg.BlockID
	Start      uint64
	Size       uint64
	CacheBlock Block
}

// End returns the address one past the L-block's last byte.
func (l LBlock) End() uint64 { return l.Start + l.Size }

// BuildLBlocks partitions b into L-blocks, one per cache block that b's
// address range intersects (spec.md §4.4 step 1). The returned slice is
// ordered by increasing address; IDs are assigned by perSetCounter,
// which the caller shares across every block of the task so each set's
// L-block ids are dense and stable.
func BuildLBlocks(d *Description, b cfg.BlockID, start, size uint64, perSetCounter map[int]int) []LBlock {
	if size == 0 {
		return nil
	}
	var out []LBlock
	addr := start
	end := start + size
	for addr < end {
		cb := d.BlockAt(addr)
		blockEnd := cb.Address + uint64(d.BlockSize)
		chunkEnd := blockEnd
		if chunkEnd > end {
			chunkEnd = end
		}
		id := perSetCounter[cb.Set]
		perSetCounter[cb.Set] = id + 1
		out = append(out, LBlock{
			Set:        cb.Set,
			ID:         id,
			Block:      b,
			Start:      addr,
			Size:       chunkEnd - addr,
			CacheBlock: cb,
		})
		addr = chunkEnd
	}
	return out
}

// SamePrevious reports whether l shares its cache block with prev (the
// L-block immediately preceding it in the same basic block): such
// L-blocks share a single cache fill (spec.md §4.4: "the second and
// subsequent L-blocks of the same basic block that share a cache block
// with their predecessor").
func (l LBlock) SamePrevious(prev LBlock) bool {
	return l.Block == prev.Block && l.CacheBlock == prev.CacheBlock
}
