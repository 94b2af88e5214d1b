package procreg

import (
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/workspace"
)

// Run ensures feature holds on ws, running the chain of default
// processors needed to satisfy it. Processors run in dependency order,
// found by depth-first resolution of each processor's requirements: a
// processor runs once the default processors of every feature it
// requires have run in this call, and running a processor that
// invalidates a feature makes that feature's default processor run
// again the next time a later processor requires it.
func Run(ws *workspace.Workspace, feature Feature) error {
	name, ok := provider(feature)
	if !ok {
		return fmt.Errorf("procreg: no processor provides feature %q", feature)
	}
	return runProcessor(ws, name, make(map[string]bool))
}

// runProcessor recursively satisfies reg's requirements (depth-first
// dependency resolution, since the registry is small and this avoids
// building an explicit edge list) then
// runs reg itself, invalidating whatever it declares before returning.
func runProcessor(ws *workspace.Workspace, name string, done map[string]bool) error {
	if done[name] {
		return nil
	}
	reg, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("procreg: processor %q is not registered", name)
	}

	for _, req := range reg.Requires {
		provName, ok := provider(req)
		if !ok {
			return fmt.Errorf("procreg: processor %q requires feature %q, which no processor provides", name, req)
		}
		if err := runProcessor(ws, provName, done); err != nil {
			return err
		}
	}

	if reg.New == nil {
		return fmt.Errorf("procreg: processor %q has no constructor", name)
	}
	proc := reg.New()
	log := ws.Log.For(name)
	log.Trace().Msg("running processor")
	if err := proc.Run(ws); err != nil {
		log.Error().Err(err).Msg("processor failed")
		return fmt.Errorf("procreg: processor %q failed: %w", name, err)
	}
	done[name] = true

	for _, f := range reg.Invalidates {
		invName, ok := provider(f)
		if !ok {
			continue
		}
		ids := ws.ProvidedBy(invName)
		for _, rawID := range ids {
			ws.InvalidateRaw(rawID)
		}
		if len(ids) > 0 {
			log.Debug().Str("invalidated", invName).Msg("dropped annotations from an invalidated feature")
		}
		delete(done, invName)
	}

	return nil
}
