// Package transform implements the CFG-to-CFG passes applied before
// dominance/loop analysis: virtualization (call inlining), loop
// unrolling (iteration peeling), conditional restructuring (splitting a
// block on predicated-instruction outcomes) and sub-CFG extraction.
//
// Every pass here follows the same shape: clone the blocks it needs
// into a fresh CFG on the same Collection, rewiring edges as it goes,
// and leaves the source CFG untouched (spec.md §9's arena redesign
// makes a CFG just a slice of dense ids, so cloning is cheap and the
// untouched original stays available to other consumers).
package transform

import (
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

// NoInline, when set true on a synthetic (call) block's property list,
// overrides the callee's INLINING_POLICY and the Virtualizer's default
// and forces the call to remain a synthetic block.
var NoInline = prop.NewIdentifier[bool]("otawa.transform.no_inline")

// InliningPolicy, when set on a callee CFG's property list, decides
// whether calls to that CFG are inlined; absent, the Virtualizer's
// configured default applies.
var InliningPolicy = prop.NewIdentifier[bool]("otawa.transform.inlining_policy")

// RecursiveLoop is set true on a synthetic block the Virtualizer left
// unexpanded because its callee was already on the current inlining
// stack (spec.md §4.1 recursion frontier).
var RecursiveLoop = prop.NewIdentifier[bool]("otawa.transform.recursive_loop")

// Peeled is set true on a loop header block that the LoopUnroller has
// already produced as the "remaining iterations" copy of some loop, so
// a later unrolling pass does not re-peel it.
var Peeled = prop.NewIdentifier[bool]("otawa.transform.peeled")
