// Package workspace implements the process-wide container of spec.md
// §5: the program model, the CFG collection, and the configuration that
// every processor reads from and writes annotations into. There is no
// locking, since the analysis core is single-threaded and fully
// sequential by design.
package workspace

import (
	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/hw"
	"github.com/statinf-otawa/otawa-sub004/internal/logx"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
)

// Workspace owns every resource one WCET computation needs: the decoded
// program, the CFG collection the provider builds from it, the
// hardware description, the configuration property list, and a
// workspace-scoped annotation list for results that belong to the run
// as a whole (e.g. the final WCET) rather than to one block or edge.
type Workspace struct {
	Program    *prog.Program
	Collection *cfg.Collection
	Hardware   *hw.Description
	Options    config.Options

	// Log is the per-processor logger every registered processor reads
	// through Log.For(name) (spec.md §6 LOG_LEVEL/VERBOSE/LOG_FOR). New
	// defaults it to a discarding logger so a caller building a
	// workspace by hand (tests, library use) gets a safe no-op instead
	// of a nil pointer; cmd/wcet replaces it with logx.New(os.Stderr,
	// opts) once a real sink is wanted.
	Log *logx.Logger

	Props prop.List

	providedBy map[int]string // raw annotation id -> providing processor name, for invalidation
}

// New builds an empty workspace around an already-decoded program.
func New(p *prog.Program, opts config.Options) *Workspace {
	return &Workspace{
		Program:    p,
		Collection: cfg.NewCollection(),
		Options:    opts,
		Log:        logx.Discard(),
		providedBy: make(map[int]string),
	}
}

// MarkProvided records that rawID is produced by the processor named
// feature (its registered processor name), so procreg.Run can find and
// drop it on invalidation.
func (w *Workspace) MarkProvided(rawID int, feature string) {
	w.providedBy[rawID] = feature
}

// ProvidedBy returns every raw annotation id attributed to the
// processor named feature.
func (w *Workspace) ProvidedBy(feature string) []int {
	var out []int
	for id, f := range w.providedBy {
		if f == feature {
			out = append(out, id)
		}
	}
	return out
}

// InvalidateRaw drops rawID from every block, edge, and CFG property
// list in the collection, plus the workspace's own list — the
// "invalidations drop the annotations produced by the invalidated
// feature" rule of spec.md §5.
func (w *Workspace) InvalidateRaw(rawID int) {
	prop.RemoveRaw(&w.Props, rawID)
	if w.Collection == nil {
		return
	}
	for _, cf := range w.Collection.CFGs() {
		prop.RemoveRaw(&cf.Props, rawID)
		for _, b := range cf.Blocks() {
			prop.RemoveRaw(&w.Collection.Block(b).Props, rawID)
			blk := w.Collection.Block(b)
			for _, e := range blk.Out {
				prop.RemoveRaw(&w.Collection.Edge(e).Props, rawID)
			}
		}
	}
}
