package ilp

import "context"

// NaiveSolver is a small exhaustive solver used by unit tests on the
// toy systems of spec.md §8's end-to-end scenarios, so the test suite
// never needs an external LP binary on the runner. It is not fit for
// production-sized systems: it enumerates every integer assignment
// within [0, MaxValue] depth-first and checks the constraints only on
// complete assignments, with no pruning, so its cost is exponential in
// the number of variables.
type NaiveSolver struct {
	// MaxValue bounds every variable's search range; defaults to 64.
	MaxValue int
}

// Solve performs an exhaustive search, maximizing the objective
// subject to every constraint holding exactly.
func (s NaiveSolver) Solve(ctx context.Context, sys *System) (*Solution, error) {
	maxV := s.MaxValue
	if maxV == 0 {
		maxV = 64
	}

	assign := make([]float64, len(sys.Vars))
	best := (*Solution)(nil)

	var search func(i int) error
	search = func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == len(sys.Vars) {
			if !satisfies(sys, assign) {
				return nil
			}
			obj := evalObjective(sys, assign)
			if best == nil || obj > best.Objective {
				vals := append([]float64(nil), assign...)
				best = &Solution{Values: vals, Objective: obj}
			}
			return nil
		}
		hi := maxV
		if sys.Vars[i].Kind == Binary {
			hi = 1
		}
		for v := 0; v <= hi; v++ {
			assign[i] = float64(v)
			if err := search(i + 1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := search(0); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, ErrInfeasible
	}
	return best, nil
}

func satisfies(sys *System, assign []float64) bool {
	for _, c := range sys.Constraints {
		var lhs float64
		for _, t := range c.Left {
			lhs += t.coeff * assign[t.varID]
		}
		switch c.Cmp {
		case LE:
			if lhs > c.Right+1e-9 {
				return false
			}
		case GE:
			if lhs < c.Right-1e-9 {
				return false
			}
		default:
			if lhs < c.Right-1e-9 || lhs > c.Right+1e-9 {
				return false
			}
		}
	}
	return true
}

func evalObjective(sys *System, assign []float64) float64 {
	var obj float64
	for _, t := range sys.Objective {
		obj += t.coeff * assign[t.varID]
	}
	return obj
}
