// Package cfg implements the control-flow-graph model: basic, synthetic
// and end blocks, directed edges between them, and the CFG collection
// that owns every block and edge in the task under analysis.
//
// Following the arena redesign note in spec.md §9, a CFG never stores
// pointers to its own blocks or edges: everything is a dense integer
// index into the owning Collection's two arenas. This makes CFG cloning
// (needed by the transformers) a plain slice copy instead of a deep
// pointer-graph walk.
package cfg

import (
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

// BlockKind distinguishes the five block shapes a CFG can contain.
type BlockKind int

const (
	KindBasic BlockKind = iota
	KindSynthetic
	KindEntry
	KindExit
	KindUnknown
)

// EdgeKind classifies an edge by the control transfer it represents.
type EdgeKind int

const (
	EdgeTaken EdgeKind = iota
	EdgeNotTaken
	EdgeCall
	EdgeReturn
	EdgeVirtual
)

// BlockID indexes a block within a CFG's owning Collection-local arena.
type BlockID int

// EdgeID indexes an edge the same way.
type EdgeID int

const noBlock BlockID = -1

// Block is one node of a CFG. BasicBlock fields are meaningful only
// when Kind == KindBasic; Callee/CallSite only when Kind == KindSynthetic.
type Block struct {
	Kind  BlockKind
	Index int // dense 0-based index within the owning CFG

	// Basic block fields.
	Insts []*prog.Instruction

	// Synthetic block fields.
	Callee   *CFG // nil if the callee is statically unknown
	CallSite *prog.Instruction

	In, Out []EdgeID

	Props prop.List
}

// Address returns the address of a basic block (its first instruction)
// or zero for non-basic blocks.
func (b *Block) Address() uint64 {
	if len(b.Insts) == 0 {
		return 0
	}
	return b.Insts[0].Address
}

// Size returns the total byte size of a basic block's instructions.
func (b *Block) Size() uint64 {
	var n uint64
	for _, in := range b.Insts {
		n += uint64(in.Size)
	}
	return n
}

// Edge is a directed source -> sink control-flow transfer.
type Edge struct {
	Kind   EdgeKind
	Source BlockID
	Sink   BlockID
	Props  prop.List
}

// CFG is one function's (or, after virtualization, the whole task's)
// control-flow graph: a dense vector of blocks plus the three mandatory
// end blocks.
type CFG struct {
	coll *Collection

	Label   string
	Address uint64

	blocks  []BlockID // dense, index == Block.Index
	Entry   BlockID
	Exit    BlockID
	Unknown BlockID

	Props prop.List
}

// Collection owns every CFG, block, and edge produced for one analysis
// run. The first CFG appended is the task entry.
type Collection struct {
	cfgs  []*CFG
	block []Block
	edge  []Edge
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{}
}

// CFGs returns every CFG in the collection, task entry first.
func (c *Collection) CFGs() []*CFG { return c.cfgs }

// EntryCFG returns the task entry CFG, or nil if the collection is empty.
func (c *Collection) EntryCFG() *CFG {
	if len(c.cfgs) == 0 {
		return nil
	}
	return c.cfgs[0]
}

// Block dereferences a BlockID against the collection's arena.
func (c *Collection) Block(id BlockID) *Block {
	if id == noBlock {
		return nil
	}
	return &c.block[id]
}

// Edge dereferences an EdgeID against the collection's arena.
func (c *Collection) Edge(id EdgeID) *Edge {
	return &c.edge[id]
}

// NewCFG allocates a fresh CFG with its three end blocks and registers
// it in the collection.
func (c *Collection) NewCFG(label string, address uint64) *CFG {
	cf := &CFG{coll: c, Label: label, Address: address}
	cf.Entry = c.addBlock(cf, Block{Kind: KindEntry})
	cf.Exit = c.addBlock(cf, Block{Kind: KindExit})
	cf.Unknown = c.addBlock(cf, Block{Kind: KindUnknown})
	c.cfgs = append(c.cfgs, cf)
	return cf
}

func (c *Collection) addBlock(cf *CFG, b Block) BlockID {
	b.Index = len(cf.blocks)
	id := BlockID(len(c.block))
	c.block = append(c.block, b)
	cf.blocks = append(cf.blocks, id)
	return id
}

// AddBasicBlock appends a new basic block holding insts to cf and
// returns its id.
func (c *Collection) AddBasicBlock(cf *CFG, insts []*prog.Instruction) BlockID {
	return c.addBlock(cf, Block{Kind: KindBasic, Insts: insts})
}

// AddSyntheticBlock appends a new synthetic (call) block to cf.
func (c *Collection) AddSyntheticBlock(cf *CFG, callee *CFG, callSite *prog.Instruction) BlockID {
	return c.addBlock(cf, Block{Kind: KindSynthetic, Callee: callee, CallSite: callSite})
}

// AddEdge links source -> sink with the given kind and records it on
// both endpoints' in/out lists.
func (c *Collection) AddEdge(kind EdgeKind, source, sink BlockID) EdgeID {
	id := EdgeID(len(c.edge))
	c.edge = append(c.edge, Edge{Kind: kind, Source: source, Sink: sink})
	c.block[source].Out = append(c.block[source].Out, id)
	c.block[sink].In = append(c.block[sink].In, id)
	return id
}

// Blocks returns every block id of cf, in dense index order.
func (cf *CFG) Blocks() []BlockID { return cf.blocks }

// BlockCount returns the number of blocks in cf (including the three end
// blocks).
func (cf *CFG) BlockCount() int { return len(cf.blocks) }

// Block is a convenience accessor equivalent to cf's collection's Block.
func (cf *CFG) Block(id BlockID) *Block { return cf.coll.Block(id) }

// Edge is a convenience accessor equivalent to cf's collection's Edge.
func (cf *CFG) Edge(id EdgeID) *Edge { return cf.coll.Edge(id) }

// Collection returns the owning collection.
func (cf *CFG) Collection() *Collection { return cf.coll }

// Successors returns the sink block ids of every outgoing edge of b.
func (cf *CFG) Successors(b BlockID) []BlockID {
	blk := cf.Block(b)
	out := make([]BlockID, len(blk.Out))
	for i, e := range blk.Out {
		out[i] = cf.Edge(e).Sink
	}
	return out
}

// Predecessors returns the source block ids of every incoming edge of b.
func (cf *CFG) Predecessors(b BlockID) []BlockID {
	blk := cf.Block(b)
	in := make([]BlockID, len(blk.In))
	for i, e := range blk.In {
		in[i] = cf.Edge(e).Source
	}
	return in
}
