// Package procreg implements the processor registry of spec.md §2
// "Control flow" (grounded on original_source/src/prog/proc_Registry.cpp
// and proc_Feature.cpp): a process-wide table from processor name to its
// registration (required/provided/invalidated features), and a Feature
// handle that knows its own default processor.
package procreg

import (
	"fmt"

	"github.com/statinf-otawa/otawa-sub004/internal/workspace"
)

// Feature names a capability a processor can require or provide.
type Feature string

// Processor is anything procreg can schedule and run over a workspace.
type Processor interface {
	Run(ws *workspace.Workspace) error
}

// Registration is one processor's entry in the registry: its name, the
// features it requires before it can run, the features it provides once
// it has run, and the features it invalidates (drops the annotations
// of) when it runs.
type Registration struct {
	Name        string
	Requires    []Feature
	Provides    []Feature
	Invalidates []Feature
	New         func() Processor
}

var (
	registry        = map[string]Registration{}
	defaultProvider = map[Feature]string{} // feature -> processor name
)

// Register adds reg to the process-wide registry and records it as the
// default provider of every feature it provides. Register panics on a
// duplicate processor name or a feature claimed by two processors,
// since registrations are meant to run once via each package's init().
func Register(reg Registration) {
	if _, dup := registry[reg.Name]; dup {
		panic(fmt.Sprintf("procreg: duplicate processor name %q", reg.Name))
	}
	registry[reg.Name] = reg
	for _, f := range reg.Provides {
		if owner, dup := defaultProvider[f]; dup {
			panic(fmt.Sprintf("procreg: feature %q already provided by %q, cannot also register %q", f, owner, reg.Name))
		}
		defaultProvider[f] = reg.Name
	}
}

// Lookup returns the registration for name.
func Lookup(name string) (Registration, bool) {
	reg, ok := registry[name]
	return reg, ok
}

// provider returns the processor name that provides f by default.
func provider(f Feature) (string, bool) {
	name, ok := defaultProvider[f]
	return name, ok
}

// Reset clears the process-wide registry; it exists for tests, which
// otherwise leak registrations across the package's test binary.
func Reset() {
	registry = map[string]Registration{}
	defaultProvider = map[Feature]string{}
}
