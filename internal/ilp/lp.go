package ilp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteLP serializes sys as CPLEX LP format (spec.md §6 Outputs): the
// objective first as "max: <expr>;", then one "<label>: <expr> <op>
// <const>;" line per constraint, then the integer/binary declarations.
func WriteLP(w io.Writer, sys *System) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("max: ")
	bw.WriteString(formatExpr(objTermsToGeneric(sys.Objective), sys))
	bw.WriteString(";\n")

	for _, c := range sys.Constraints {
		fmt.Fprintf(bw, "%s: %s %s %s;\n", c.Label, formatExpr(termsToGeneric(c.Left), sys), c.Cmp, formatConst(c.Right))
	}

	var ints, bins []string
	for _, v := range sys.Vars {
		switch v.Kind {
		case Integer:
			ints = append(ints, v.Name)
		case Binary:
			bins = append(bins, v.Name)
		}
	}
	if len(ints) > 0 {
		fmt.Fprintf(bw, "int %s;\n", strings.Join(ints, ","))
	}
	if len(bins) > 0 {
		fmt.Fprintf(bw, "bin %s;\n", strings.Join(bins, ","))
	}

	return bw.Flush()
}

type genericTerm struct {
	coeff float64
	varID int
}

func termsToGeneric(ts []term) []genericTerm {
	out := make([]genericTerm, len(ts))
	for i, t := range ts {
		out[i] = genericTerm{coeff: t.coeff, varID: t.varID}
	}
	return out
}

func objTermsToGeneric(ts []objTerm) []genericTerm {
	out := make([]genericTerm, len(ts))
	for i, t := range ts {
		out[i] = genericTerm{coeff: t.coeff, varID: t.varID}
	}
	return out
}

func formatExpr(ts []genericTerm, sys *System) string {
	if len(ts) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range ts {
		name := sys.Vars[t.varID].Name
		switch {
		case i == 0:
			fmt.Fprintf(&sb, "%s%s", formatCoeff(t.coeff, true), name)
		case t.coeff < 0:
			fmt.Fprintf(&sb, " - %s%s", formatCoeff(-t.coeff, false), name)
		default:
			fmt.Fprintf(&sb, " + %s%s", formatCoeff(t.coeff, false), name)
		}
	}
	return sb.String()
}

func formatCoeff(c float64, signed bool) string {
	if c == 1 {
		return ""
	}
	if signed && c < 0 {
		return strconv.FormatFloat(c, 'g', -1, 64) + " "
	}
	return strconv.FormatFloat(c, 'g', -1, 64) + " "
}

func formatConst(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseLP parses the subset of CPLEX LP format WriteLP emits, enough for
// the round-trip law of spec.md §8: write, reparse, compare variable
// sets and coefficients.
func ParseLP(r io.Reader) (*System, error) {
	sys := NewSystem()
	sc := bufio.NewScanner(r)
	kind := make(map[string]VarKind)

	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ilp: scanning LP input: %w", err)
	}

	var declared []string
	for _, line := range lines {
		line = strings.TrimSuffix(line, ";")
		switch {
		case strings.HasPrefix(line, "int "):
			for _, name := range strings.Split(strings.TrimPrefix(line, "int "), ",") {
				kind[strings.TrimSpace(name)] = Integer
				declared = append(declared, strings.TrimSpace(name))
			}
		case strings.HasPrefix(line, "bin "):
			for _, name := range strings.Split(strings.TrimPrefix(line, "bin "), ",") {
				kind[strings.TrimSpace(name)] = Binary
				declared = append(declared, strings.TrimSpace(name))
			}
		}
	}

	ensureVar := func(name string) int {
		if idx, ok := sys.Var(name); ok {
			return idx
		}
		k, ok := kind[name]
		if !ok {
			k = Real
		}
		return sys.NewVar(name, k)
	}
	// Declared variables come first, in declaration order, so a variable
	// that appears in no expression still survives the round trip.
	for _, name := range declared {
		ensureVar(name)
	}

	for _, line := range lines {
		line = strings.TrimSuffix(line, ";")
		if strings.HasPrefix(line, "max:") {
			terms, err := parseExpr(strings.TrimSpace(strings.TrimPrefix(line, "max:")), ensureVar)
			if err != nil {
				return nil, fmt.Errorf("ilp: parsing objective: %w", err)
			}
			for _, t := range terms {
				sys.AddObjective(t.coeff, t.varID)
			}
			continue
		}
		if strings.HasPrefix(line, "int ") || strings.HasPrefix(line, "bin ") {
			continue
		}

		label, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		rest = strings.TrimSpace(rest)

		cmp, cmpStr := LE, ""
		for _, cand := range []string{"<=", ">=", "="} {
			if idx := strings.Index(rest, cand); idx >= 0 {
				cmpStr = cand
				break
			}
		}
		if cmpStr == "" {
			return nil, fmt.Errorf("ilp: constraint %q has no comparator", label)
		}
		switch cmpStr {
		case "<=":
			cmp = LE
		case ">=":
			cmp = GE
		case "=":
			cmp = EQ
		}
		lhs, rhs, _ := strings.Cut(rest, cmpStr)
		right, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64)
		if err != nil {
			return nil, fmt.Errorf("ilp: constraint %q right-hand side: %w", label, err)
		}
		terms, err := parseExpr(strings.TrimSpace(lhs), ensureVar)
		if err != nil {
			return nil, fmt.Errorf("ilp: constraint %q left-hand side: %w", label, err)
		}
		c := sys.AddConstraint(label, cmp, right)
		for _, t := range terms {
			c.AddLeft(t.coeff, t.varID)
		}
	}

	return sys, nil
}

// parseExpr parses a sequence of "[+-] [coeff] name" addends.
func parseExpr(expr string, ensureVar func(string) int) ([]genericTerm, error) {
	expr = strings.ReplaceAll(expr, "-", " -")
	expr = strings.ReplaceAll(expr, "+", " +")
	fields := strings.Fields(expr)

	var terms []genericTerm
	sign := 1.0
	var pendingCoeff float64
	haveCoeff := false

	flush := func(name string) {
		coeff := sign
		if haveCoeff {
			coeff = sign * pendingCoeff
		}
		terms = append(terms, genericTerm{coeff: coeff, varID: ensureVar(name)})
		sign, haveCoeff, pendingCoeff = 1, false, 0
	}

	for _, f := range fields {
		switch {
		case f == "+":
			sign = 1
		case f == "-":
			sign = -1
		default:
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				pendingCoeff = v
				haveCoeff = true
				continue
			}
			flush(f)
		}
	}
	return terms, nil
}
