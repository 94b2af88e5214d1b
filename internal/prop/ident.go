// Package prop implements the annotation store: typed named properties
// attached to any program entity, plus context-qualified lookups for
// per-call-path refinement.
package prop

import "fmt"

// Identifier is a process-global, uniquely-named typed tag. Identifiers
// are allocated once, at package init time, through NewIdentifier; the
// returned value is comparable and can be used as a map key.
type Identifier[T any] struct {
	id   int
	name string
}

// Name returns the identifier's registered name.
func (i Identifier[T]) Name() string { return i.name }

// RawID returns the identifier's untyped slot key, for callers (such as
// procreg's feature invalidation) that must erase identifiers down to a
// plain comparable key before they can be stored in a Registration.
func (i Identifier[T]) RawID() int { return i.id }

var (
	names = map[string]int{}
	next  = 0
)

// NewIdentifier allocates a fresh identifier with the given name. It
// panics on a duplicate name, since identifiers are meant to be declared
// once as package-level variables (mirroring the teacher's package-level
// constant tables, e.g. emu/region.go's NTSCTiming/PALTiming).
func NewIdentifier[T any](name string) Identifier[T] {
	if _, dup := names[name]; dup {
		panic(fmt.Sprintf("prop: duplicate identifier name %q", name))
	}
	id := next
	next++
	names[name] = id
	return Identifier[T]{id: id, name: name}
}
