package dom

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// Rank computes a reverse post-order over cf's acyclic skeleton (back
// edges removed), assigning each block an integer such that every
// forward edge goes to a strictly greater rank (spec.md §4.2). Compute
// must have been run on cf first so back edges are flagged. The result
// is indexed by Block.Index.
func Rank(cf *cfg.CFG) []int {
	n := cf.BlockCount()
	rank := make([]int, n)
	visited := make([]bool, n)
	var order []cfg.BlockID

	var visit func(b cfg.BlockID)
	visit = func(b cfg.BlockID) {
		idx := cf.Block(b).Index
		if visited[idx] {
			return
		}
		visited[idx] = true
		for _, eid := range cf.Block(b).Out {
			e := cf.Edge(eid)
			if IsBackEdge(cf, eid) {
				continue
			}
			visit(e.Sink)
		}
		order = append(order, b)
	}
	visit(cf.Entry)

	// order is a post-order; reverse it for reverse-post-order.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	for i, b := range order {
		rank[cf.Block(b).Index] = i
	}
	// Blocks unreachable on the acyclic skeleton (shouldn't happen for a
	// validated CFG) get a rank past every reachable block so the
	// work-list still terminates if they're ever pushed.
	next := len(order)
	for _, id := range cf.Blocks() {
		if !visited[cf.Block(id).Index] {
			rank[cf.Block(id).Index] = next
			next++
		}
	}
	return rank
}
