// Package dataflow implements the generic monotone fix-point engine
// (spec.md §4.3): a work-list driver over a CFG, parameterized by an
// abstract domain, used to run the cache analyses.
package dataflow

import "github.com/statinf-otawa/otawa-sub004/internal/cfg"

// Domain is the abstract-interpretation problem an Engine solves. T is
// the abstract value type (e.g. a per-cache-set ACS).
type Domain[T any] interface {
	// Bot returns the domain's bottom element.
	Bot() T
	// Init returns the initial value seeded at the entry block.
	Init() T
	// Join computes the least upper bound of x and y.
	Join(x, y T) T
	// Equals reports pointwise equality.
	Equals(x, y T) bool
	// Update is the transfer function for a basic block: it consumes
	// the block's instructions/accesses and returns the updated value.
	Update(b cfg.BlockID, in T) T
}
