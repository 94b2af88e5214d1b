// Package event implements the event model (spec.md §4.6, grounded on
// original_source/src/prog/events.cpp): a hardware-caused timing effect
// attached to an instruction, carrying enough information for a
// downstream time model to bound its contribution to the ILP objective
// without re-running the analysis that produced it.
package event

import "github.com/statinf-otawa/otawa-sub004/internal/prog"

// Kind classifies which pipeline stage an event arises on.
type Kind int

const (
	Fetch Kind = iota
	Mem
	Branch
	Custom
)

// Occurrence classes how often an event happens.
type Occurrence int

const (
	NoOccurrence Occurrence = iota
	Never
	Sometimes
	Always
)

// Combine merges two occurrences per the partial order NO_OCCURRENCE <=
// x <= SOMETIMES (events.cpp operator|): the combination of NEVER and
// ALWAYS, observed on different paths, is SOMETIMES.
func Combine(x, y Occurrence) Occurrence {
	if x == y {
		return x
	}
	if x == NoOccurrence {
		return y
	}
	if y == NoOccurrence {
		return x
	}
	return Sometimes
}

// Type defines how an event's cost applies relative to other pipeline
// stages.
type Type int

const (
	Local Type = iota
	After
	NotBefore
)

// ConstraintSink is the minimal surface Estimate needs from an ILP
// constraint, defined here (not in internal/ilp) so this package never
// imports the ILP layer: internal/ilp builds Events and satisfies this
// interface with its own Constraint type.
type ConstraintSink interface {
	AddRight(coeff float64, varID int)
}

// Event is one hardware-caused timing effect attached to an instruction.
type Event struct {
	Inst       *prog.Instruction
	Name       string
	Kind       Kind
	Cost       int64
	Occurrence Occurrence
	Type       Type
	Weight     int

	// Related names the (instruction, unit) this event is relative to,
	// meaningful only for After/NotBefore.
	RelatedInst *prog.Instruction
	RelatedUnit string

	// Unit names the pipeline unit this event applies to when Kind ==
	// Custom.
	Unit string

	// estimating reports, per activation side, whether this event
	// supports an overestimation bound; estimate writes the event's
	// contribution to the right-hand side of an ILP constraint.
	estimating func(on bool) bool
	estimate   func(sink ConstraintSink, on bool)
}

// New builds an event with the defaults from events.cpp: SOMETIMES
// occurrence, weight 1, no ILP contribution.
func New(inst *prog.Instruction, kind Kind, cost int64) *Event {
	return &Event{Inst: inst, Kind: kind, Cost: cost, Occurrence: Sometimes, Weight: 1}
}

// WithEstimator attaches the closures an ILP assembly pass reads instead
// of re-deriving the category that produced this event (spec.md §4.9).
func (e *Event) WithEstimator(estimating func(on bool) bool, estimate func(sink ConstraintSink, on bool)) *Event {
	e.estimating = estimating
	e.estimate = estimate
	return e
}

// IsEstimating reports whether this event bounds an upper (on=true) or
// lower (on=false) occurrence count.
func (e *Event) IsEstimating(on bool) bool {
	if e.estimating == nil {
		return false
	}
	return e.estimating(on)
}

// Estimate writes this event's contribution to sink's right-hand side.
func (e *Event) Estimate(sink ConstraintSink, on bool) {
	if e.estimate == nil {
		return
	}
	e.estimate(sink, on)
}
