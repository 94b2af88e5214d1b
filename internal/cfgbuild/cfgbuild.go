// Package cfgbuild constructs the CFG model (internal/cfg) from a
// decoded instruction stream (internal/prog) by applying the block
// boundary rule: a block starts at a function's entry, at any
// statically-known branch target, or at the instruction following a
// control transfer; it ends at the control instruction that closes it.
//
// Calls become synthetic blocks with an outgoing call edge and, when
// the callee is statically known, a matching return edge back to the
// call's fallthrough block. Unresolved indirect control transfers
// (branches or calls) are wired to the owning CFG's unknown sink block
// instead of being left dangling.
package cfgbuild

import (
	"errors"
	"fmt"
	"sort"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// ErrOutOfSegment marks an address that falls outside every segment the
// program reports.
var ErrOutOfSegment = errors.New("cfgbuild: address out of segment")

// ErrDecoding marks an address inside a segment the loader could not
// decode an instruction at.
var ErrDecoding = errors.New("cfgbuild: no instruction decoded at address")

// builder holds the state threaded through one Build call: the
// collection being populated, the program being read, and the set of
// function CFGs already built (or in the process of being built, to
// break recursive-call cycles).
type builder struct {
	coll  *cfg.Collection
	prog  *prog.Program
	funcs map[uint64]*cfg.CFG
}

// Build decodes every function reachable from p's entry point (directly
// or through static calls) into coll and returns the task's entry CFG.
func Build(coll *cfg.Collection, p *prog.Program) (*cfg.CFG, error) {
	b := &builder{coll: coll, prog: p, funcs: make(map[uint64]*cfg.CFG)}
	return b.function(p.Start())
}

// function returns the CFG for the function starting at addr, building
// it on first reference and reusing it (even across recursive call
// cycles) afterward.
func (b *builder) function(addr uint64) (*cfg.CFG, error) {
	if cf, ok := b.funcs[addr]; ok {
		return cf, nil
	}
	if _, ok := b.prog.SegmentAt(addr); !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrOutOfSegment, addr)
	}
	cf := b.coll.NewCFG(fmt.Sprintf("f_%x", addr), addr)
	b.funcs[addr] = cf // registered before recursing, breaks call cycles

	insts, err := b.discover(addr)
	if err != nil {
		return nil, err
	}
	starts := blockStarts(addr, insts)
	blocks, order := b.partition(cf, insts, starts)

	entryBlock, ok := blocks[addr]
	if !ok {
		return nil, fmt.Errorf("cfgbuild: no block at entry address 0x%x", addr)
	}
	b.coll.AddEdge(cfg.EdgeTaken, cf.Entry, entryBlock)

	for _, start := range order {
		if err := b.wire(cf, blocks, start, insts); err != nil {
			return nil, err
		}
	}
	return cf, nil
}

// discover walks every instruction reachable from addr by intra-function
// control flow (branch targets and fallthrough; calls continue at their
// fallthrough, their callees are built separately) and returns them
// keyed by address.
func (b *builder) discover(entry uint64) (map[uint64]*prog.Instruction, error) {
	insts := make(map[uint64]*prog.Instruction)
	work := []uint64{entry}
	for len(work) > 0 {
		addr := work[len(work)-1]
		work = work[:len(work)-1]
		if _, done := insts[addr]; done {
			continue
		}
		if _, ok := b.prog.SegmentAt(addr); !ok {
			return nil, fmt.Errorf("%w: 0x%x", ErrOutOfSegment, addr)
		}
		in := b.prog.InstAt(addr)
		if in == nil {
			return nil, fmt.Errorf("%w: 0x%x", ErrDecoding, addr)
		}
		insts[addr] = in

		switch {
		case in.Kind.Any(prog.IsReturn):
			// no intra-function successor
		case in.Kind.Any(prog.IsCall):
			work = append(work, in.End())
		case in.Kind.Any(prog.IsCond):
			work = append(work, in.End())
			if in.Target != nil {
				work = append(work, in.Target.Address)
			}
		case in.Kind.Any(prog.IsControl):
			if in.Target != nil {
				work = append(work, in.Target.Address)
			}
		default:
			work = append(work, in.End())
		}
	}
	return insts, nil
}

// blockStarts computes the boundary address set: the function entry,
// every statically-known non-call branch target, and the instruction
// following every control transfer.
func blockStarts(entry uint64, insts map[uint64]*prog.Instruction) map[uint64]bool {
	starts := map[uint64]bool{entry: true}
	for _, in := range insts {
		if !in.Kind.Any(prog.IsControl) {
			continue
		}
		if _, ok := insts[in.End()]; ok {
			starts[in.End()] = true
		}
		if in.Target != nil && !in.Kind.Any(prog.IsCall) {
			if _, ok := insts[in.Target.Address]; ok {
				starts[in.Target.Address] = true
			}
		}
	}
	return starts
}

// partition groups insts into basic blocks along starts boundaries,
// closing a block at the instruction that ends it (a control transfer)
// or at the next boundary, whichever comes first. It returns the block
// id for each block's start address and the start addresses in
// ascending order.
func (b *builder) partition(cf *cfg.CFG, insts map[uint64]*prog.Instruction, starts map[uint64]bool) (map[uint64]cfg.BlockID, []uint64) {
	addrs := make([]uint64, 0, len(insts))
	for a := range insts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	blocks := make(map[uint64]cfg.BlockID)
	var order []uint64
	var cur []*prog.Instruction
	var curStart uint64

	flush := func() {
		if len(cur) == 0 {
			return
		}
		blocks[curStart] = b.coll.AddBasicBlock(cf, cur)
		order = append(order, curStart)
		cur = nil
	}

	for _, a := range addrs {
		in := insts[a]
		if starts[a] && len(cur) > 0 {
			flush()
		}
		if len(cur) == 0 {
			curStart = a
		}
		cur = append(cur, in)
		if in.Kind.Any(prog.IsControl) {
			flush()
		}
	}
	flush()
	return blocks, order
}

// wire attaches the outgoing edges of the block starting at start,
// following its last instruction's control kind.
func (b *builder) wire(cf *cfg.CFG, blocks map[uint64]cfg.BlockID, start uint64, insts map[uint64]*prog.Instruction) error {
	blk := cf.Block(blocks[start])
	last := blk.Insts[len(blk.Insts)-1]

	blockAt := func(addr uint64) cfg.BlockID {
		if id, ok := blocks[addr]; ok {
			return id
		}
		return cf.Unknown
	}

	switch {
	case last.Kind.Any(prog.IsReturn):
		b.coll.AddEdge(cfg.EdgeTaken, blocks[start], cf.Exit)

	case last.Kind.Any(prog.IsCall):
		var callee *cfg.CFG
		if last.Target != nil {
			var err error
			callee, err = b.function(last.Target.Address)
			if err != nil {
				return err
			}
		}
		synthetic := b.coll.AddSyntheticBlock(cf, callee, last)
		b.coll.AddEdge(cfg.EdgeCall, blocks[start], synthetic)
		if callee == nil {
			b.coll.AddEdge(cfg.EdgeCall, synthetic, cf.Unknown)
			return nil
		}
		b.coll.AddEdge(cfg.EdgeReturn, synthetic, blockAt(last.End()))

	case last.Kind.Any(prog.IsCond):
		taken := cf.Unknown
		if last.Target != nil {
			taken = blockAt(last.Target.Address)
		}
		b.coll.AddEdge(cfg.EdgeTaken, blocks[start], taken)
		b.coll.AddEdge(cfg.EdgeNotTaken, blocks[start], blockAt(last.End()))

	case last.Kind.Any(prog.IsControl):
		target := cf.Unknown
		if last.Target != nil {
			target = blockAt(last.Target.Address)
		}
		b.coll.AddEdge(cfg.EdgeTaken, blocks[start], target)

	default:
		b.coll.AddEdge(cfg.EdgeTaken, blocks[start], blockAt(last.End()))
	}
	return nil
}

