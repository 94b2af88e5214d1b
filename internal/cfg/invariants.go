package cfg

import "fmt"

// Validate checks the structural invariants spec.md §3 requires of a
// CFG: dense stable block indices, every non-end block reachable from
// entry, no edge into entry or out of exit, every out-edge recorded on
// the block it leaves, and at most one NOT-TAKEN edge per block.
func (cf *CFG) Validate() error {
	for i, id := range cf.blocks {
		if cf.Block(id).Index != i {
			return fmt.Errorf("cfg %q: block %d has stale index %d", cf.Label, i, cf.Block(id).Index)
		}
	}

	seen := map[BlockID]bool{cf.Entry: true}
	queue := []BlockID{cf.Entry}
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
	for _, id := range cf.blocks {
		blk := cf.Block(id)
		if blk.Kind == KindEntry || blk.Kind == KindExit || blk.Kind == KindUnknown {
			continue
		}
		if !seen[id] {
			return fmt.Errorf("cfg %q: block %d not reachable from entry", cf.Label, blk.Index)
		}
	}

	if len(cf.Block(cf.Entry).In) != 0 {
		return fmt.Errorf("cfg %q: entry block has incoming edges", cf.Label)
	}
	if len(cf.Block(cf.Exit).Out) != 0 {
		return fmt.Errorf("cfg %q: exit block has outgoing edges", cf.Label)
	}

	notTaken := map[BlockID]int{}
	for _, id := range cf.blocks {
		blk := cf.Block(id)
		for _, eid := range blk.Out {
			e := cf.Edge(eid)
			if e.Source != id {
				return fmt.Errorf("cfg %q: edge %d recorded on wrong source", cf.Label, eid)
			}
			if e.Kind == EdgeNotTaken {
				notTaken[id]++
			}
		}
	}
	for id, n := range notTaken {
		if n > 1 {
			return fmt.Errorf("cfg %q: block %d has %d not-taken edges, want at most 1", cf.Label, cf.Block(id).Index, n)
		}
	}

	return nil
}
