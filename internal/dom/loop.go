package dom

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// Loop is materialized once per loop header, plus one "top" loop per
// CFG that has no header and contains every block not enclosed by a
// real loop (spec.md §3 Loop, §4.2).
type Loop struct {
	Header   cfg.BlockID // noBlock (-1) for the top loop
	IsTop    bool
	Parent   *Loop
	Children []*Loop
	Depth    int
	blocks   []cfg.BlockID
	exits    []cfg.EdgeID
}

// Blocks returns the blocks directly contained in the loop (not
// including nested loops' blocks, which belong to the nested Loop).
func (l *Loop) Blocks() []cfg.BlockID { return l.blocks }

// ExitEdges returns edges leaving the loop to a block outside it.
func (l *Loop) ExitEdges() []cfg.EdgeID { return l.exits }

// Loops builds the nested Loop objects for cf. Compute must have been
// run on cf first.
func Loops(cf *cfg.CFG) []*Loop {
	top := &Loop{Header: -1, IsTop: true, Depth: 0}
	byHeader := map[cfg.BlockID]*Loop{}

	headers := map[cfg.BlockID]bool{}
	for _, id := range cf.Blocks() {
		if IsLoopHeader(cf, id) {
			headers[id] = true
		}
	}

	all := []*Loop{top}
	for h := range headers {
		l := &Loop{Header: h}
		byHeader[h] = l
		all = append(all, l)
	}

	// A loop's parent is the innermost other loop enclosing its header:
	// the header h' != h that dominates h and that h reaches through a
	// back edge of h', preferring the largest dominator set.
	for h, l := range byHeader {
		l.Parent = top
		best := -1
		for ph, cand := range byHeader {
			if ph == h || !dominatesIdx(cf, ph, h) || !reachesViaBackEdge(cf, h, ph) {
				continue
			}
			if size := domSetSize(cf, ph); size > best {
				best = size
				l.Parent = cand
			}
		}
		l.Parent.Children = append(l.Parent.Children, l)
	}

	var setDepth func(l *Loop)
	setDepth = func(l *Loop) {
		for _, c := range l.Children {
			c.Depth = l.Depth + 1
			setDepth(c)
		}
	}
	setDepth(top)

	for _, id := range cf.Blocks() {
		var owner *Loop = top
		if h, ok := EnclosingLoopHeader(cf, id); ok {
			owner = byHeader[h]
		}
		owner.blocks = append(owner.blocks, id)
	}

	for _, l := range all {
		if l.IsTop {
			continue
		}
		inLoop := map[cfg.BlockID]bool{}
		markLoopBlocks(l, inLoop)
		for b := range inLoop {
			for _, s := range cf.Successors(b) {
				if !inLoop[s] {
					for _, eid := range cf.Block(b).Out {
						if cf.Edge(eid).Sink == s {
							l.exits = append(l.exits, eid)
						}
					}
				}
			}
		}
	}

	return all
}

func markLoopBlocks(l *Loop, out map[cfg.BlockID]bool) {
	for _, b := range l.blocks {
		out[b] = true
	}
	for _, c := range l.Children {
		markLoopBlocks(c, out)
	}
}
