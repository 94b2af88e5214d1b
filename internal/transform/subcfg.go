package transform

import (
	"errors"
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
)

// ErrAddressNotFound is returned when a sub-CFG's requested start or
// stop address does not fall within any basic block of the source CFG
// (spec.md §7: a fatal condition for the WCET driver).
var ErrAddressNotFound = errors.New("transform: address not found in cfg")

// SubCFGExtractor builds a sub-CFG containing only the blocks on a path
// from a single start address to any of a set of stop addresses
// (spec.md §4.1 CFG_START/CFG_STOP). Grounded on
// original_source/src/prog/cfg_CFGProvider.cpp's block-splitting code,
// reused here to split at arbitrary mid-block addresses instead of at
// decoded branch targets.
type SubCFGExtractor struct {
	Coll *cfg.Collection
}

// Extract splits cf's blocks at start and each stop address as needed,
// then keeps the intersection of blocks forward-reachable from start
// and backward-reachable from a stop, wiring a synthetic entry->start
// edge and one stop->exit edge per stop.
func (x *SubCFGExtractor) Extract(cf *cfg.CFG, start uint64, stops []uint64) (*cfg.CFG, error) {
	work, _ := cloneFull(x.Coll, cf)

	startBlock, err := splitAt(x.Coll, work, start)
	if err != nil {
		return nil, fmt.Errorf("sub-cfg start: %w", err)
	}

	stopPre := make(map[cfg.BlockID]bool, len(stops))
	for _, addr := range stops {
		pre, err := splitAt(x.Coll, work, addr)
		if err != nil {
			return nil, fmt.Errorf("sub-cfg stop: %w", err)
		}
		// splitAt returns the block that *begins* at addr; the block
		// feeding into it is the one whose exit becomes the stop point.
		for _, p := range work.Predecessors(pre) {
			stopPre[p] = true
		}
		// A stop address landing exactly on an existing block boundary
		// with no predecessor split still counts via its own id.
		if len(work.Predecessors(pre)) == 0 {
			stopPre[pre] = true
		}
	}

	fwd := floodForward(work, startBlock)
	bwd := map[cfg.BlockID]bool{}
	for s := range stopPre {
		floodBackwardInto(work, s, bwd)
	}

	keep := map[cfg.BlockID]bool{}
	for b := range fwd {
		if bwd[b] {
			keep[b] = true
		}
	}
	keep[startBlock] = true

	out := x.Coll.NewCFG(cf.Label+"_sub", start)
	outMap := map[cfg.BlockID]cfg.BlockID{}
	for _, id := range work.Blocks() {
		if !keep[id] {
			continue
		}
		blk := work.Block(id)
		outMap[id] = cloneBlock(x.Coll, out, blk)
	}

	for _, id := range work.Blocks() {
		if !keep[id] {
			continue
		}
		blk := work.Block(id)
		for _, eid := range blk.Out {
			e := work.Edge(eid)
			if keep[e.Sink] {
				x.Coll.AddEdge(e.Kind, outMap[id], outMap[e.Sink])
				continue
			}
			if stopPre[id] {
				x.Coll.AddEdge(e.Kind, outMap[id], out.Exit)
			}
		}
	}
	for b := range stopPre {
		if keep[b] && len(work.Block(b).Out) == 0 {
			x.Coll.AddEdge(cfg.EdgeVirtual, outMap[b], out.Exit)
		}
	}

	x.Coll.AddEdge(cfg.EdgeVirtual, out.Entry, outMap[startBlock])
	return out, nil
}

// cloneFull copies every block and edge of src into a fresh CFG on
// coll, returning the new CFG and the src-id -> new-id block map.
func cloneFull(coll *cfg.Collection, src *cfg.CFG) (*cfg.CFG, map[cfg.BlockID]cfg.BlockID) {
	out := coll.NewCFG(src.Label, src.Address)
	blockMap := map[cfg.BlockID]cfg.BlockID{
		src.Entry:   out.Entry,
		src.Exit:    out.Exit,
		src.Unknown: out.Unknown,
	}
	for _, id := range src.Blocks() {
		blk := src.Block(id)
		switch blk.Kind {
		case cfg.KindBasic, cfg.KindSynthetic:
			blockMap[id] = cloneBlock(coll, out, blk)
		}
	}
	for _, id := range src.Blocks() {
		blk := src.Block(id)
		for _, eid := range blk.Out {
			e := src.Edge(eid)
			coll.AddEdge(e.Kind, blockMap[id], blockMap[e.Sink])
		}
	}
	return out, blockMap
}

// splitAt returns the id of the basic block beginning exactly at addr,
// splitting the block that contains it in two if addr falls strictly
// inside it. It mutates cf in place.
func splitAt(coll *cfg.Collection, cf *cfg.CFG, addr uint64) (cfg.BlockID, error) {
	for _, id := range cf.Blocks() {
		blk := cf.Block(id)
		if blk.Kind != cfg.KindBasic {
			continue
		}
		start := blk.Address()
		end := start + blk.Size()
		if addr < start || addr >= end {
			continue
		}
		if addr == start {
			return id, nil
		}

		splitIdx := 0
		for i, in := range blk.Insts {
			if in.Address == addr {
				splitIdx = i
				break
			}
		}
		head := blk.Insts[:splitIdx]
		tail := blk.Insts[splitIdx:]

		tailID := coll.AddBasicBlock(cf, tail)
		tailBlk := cf.Block(tailID)
		tailBlk.Out = blk.Out
		for _, eid := range tailBlk.Out {
			cf.Edge(eid).Source = tailID
		}
		blk.Out = nil
		blk.Insts = head
		coll.AddEdge(cfg.EdgeTaken, id, tailID)
		return tailID, nil
	}
	return -1, ErrAddressNotFound
}

func floodForward(cf *cfg.CFG, start cfg.BlockID) map[cfg.BlockID]bool {
	seen := map[cfg.BlockID]bool{start: true}
	queue := []cfg.BlockID{start}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range cf.Successors(b) {
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return seen
}

func floodBackwardInto(cf *cfg.CFG, start cfg.BlockID, seen map[cfg.BlockID]bool) {
	if seen[start] {
		return
	}
	queue := []cfg.BlockID{start}
	seen[start] = true
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, p := range cf.Predecessors(b) {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
}
