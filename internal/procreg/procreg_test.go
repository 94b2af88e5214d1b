package procreg

import (
	"testing"

	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/prop"
	"github.com/statinf-otawa/otawa-sub004/internal/workspace"
)

type recordingProc struct {
	name  string
	order *[]string
	id    prop.Identifier[bool]
}

func (p *recordingProc) Run(ws *workspace.Workspace) error {
	*p.order = append(*p.order, p.name)
	prop.Set(&ws.Props, p.id, true)
	ws.MarkProvided(p.id.RawID(), p.name)
	return nil
}

func TestRunOrdersByDependency(t *testing.T) {
	Reset()
	var order []string

	domID := prop.NewIdentifier[bool]("procreg.test.dom")
	cacheID := prop.NewIdentifier[bool]("procreg.test.cache")

	Register(Registration{
		Name:     "dom",
		Provides: []Feature{"DOMINANCE"},
		New:      func() Processor { return &recordingProc{name: "dom", order: &order, id: domID} },
	})
	Register(Registration{
		Name:     "cache",
		Requires: []Feature{"DOMINANCE"},
		Provides: []Feature{"CACHE_CATEGORY"},
		New:      func() Processor { return &recordingProc{name: "cache", order: &order, id: cacheID} },
	})

	ws := workspace.New(nil, config.Default())
	if err := Run(ws, "CACHE_CATEGORY"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(order) != 2 || order[0] != "dom" || order[1] != "cache" {
		t.Fatalf("expected dom before cache, got %v", order)
	}
	if !prop.Has(&ws.Props, cacheID) {
		t.Fatalf("expected CACHE_CATEGORY's annotation to be set")
	}
}

func TestRunMissingProviderErrors(t *testing.T) {
	Reset()
	ws := workspace.New(nil, config.Default())
	if err := Run(ws, "NO_SUCH_FEATURE"); err == nil {
		t.Fatalf("expected an error for an unregistered feature")
	}
}
