// Package progfile implements a small JSON program description used to
// drive the analysis core end to end without a real binary decoder:
// spec.md §1 treats instruction decoding as an opaque external
// collaborator, the same way internal/hw treats the hardware
// description as a narrow XML boundary format. This package plays that
// role for cmd/wcet and for integration tests that want a realistic
// prog.Loader without hand-building one in Go.
package progfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/statinf-otawa/otawa-sub004/internal/prog"
)

// instJSON is one decoded instruction, addresses and the branch target
// given as plain hex-or-decimal strings so the file stays readable.
type instJSON struct {
	Address string   `json:"address"`
	Size    uint32   `json:"size"`
	Kind    []string `json:"kind"`
	Target  string   `json:"target,omitempty"`
	Reads   []int    `json:"reads,omitempty"`
	Writes  []int    `json:"writes,omitempty"`
}

type segmentJSON struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	Size       string `json:"size"`
	Executable bool   `json:"executable"`
}

type bankJSON struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// fileJSON is the document's root shape.
type fileJSON struct {
	Start        string        `json:"start"`
	Segments     []segmentJSON `json:"segments"`
	RegisterBank []bankJSON    `json:"register_banks"`
	Instructions []instJSON    `json:"instructions"`
}

var kindBits = map[string]prog.Kind{
	"control":  prog.IsControl,
	"call":     prog.IsCall,
	"return":   prog.IsReturn,
	"cond":     prog.IsCond,
	"mem":      prog.IsMem,
	"load":     prog.IsLoad,
	"store":    prog.IsStore,
	"int":      prog.IsInt,
	"float":    prog.IsFloat,
	"alu":      prog.IsALU,
	"mul":      prog.IsMul,
	"div":      prog.IsDiv,
	"multi":    prog.IsMulti,
	"indirect": prog.IsIndirect,
	"unknown":  prog.IsUnknown,
	"atomic":   prog.IsAtomic,
	"bundle":   prog.IsBundle,
	"intern":   prog.IsIntern,
	"trap":     prog.IsTrap,
}

// loader is the in-memory prog.Loader built from a parsed document.
type loader struct {
	insts    map[uint64]*prog.Instruction
	start    uint64
	segments []prog.Segment
	platform prog.Platform
}

func (l *loader) FindInstAt(addr uint64) *prog.Instruction { return l.insts[addr] }
func (l *loader) Start() uint64                            { return l.start }
func (l *loader) Platform() prog.Platform                  { return l.platform }
func (l *loader) Segments() []prog.Segment                 { return l.segments }

// Load reads a program description from r and returns the prog.Program
// wrapping it.
func Load(r io.Reader) (*prog.Program, error) {
	var doc fileJSON
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("progfile: decoding: %w", err)
	}

	start, err := parseUint(doc.Start)
	if err != nil {
		return nil, fmt.Errorf("progfile: start: %w", err)
	}

	insts := make(map[uint64]*prog.Instruction, len(doc.Instructions))
	for _, in := range doc.Instructions {
		addr, err := parseUint(in.Address)
		if err != nil {
			return nil, fmt.Errorf("progfile: instruction address: %w", err)
		}
		kind, err := parseKind(in.Kind)
		if err != nil {
			return nil, fmt.Errorf("progfile: instruction 0x%x: %w", addr, err)
		}
		insts[addr] = &prog.Instruction{
			Address: addr,
			Size:    in.Size,
			Kind:    kind,
			Reads:   prog.RegSet(in.Reads),
			Writes:  prog.RegSet(in.Writes),
		}
	}
	// Targets are resolved in a second pass so forward references (a
	// branch to an address appearing later in the file) always find
	// their instruction.
	for _, in := range doc.Instructions {
		if in.Target == "" {
			continue
		}
		addr, _ := parseUint(in.Address)
		target, err := parseUint(in.Target)
		if err != nil {
			return nil, fmt.Errorf("progfile: instruction 0x%x target: %w", addr, err)
		}
		t, ok := insts[target]
		if !ok {
			return nil, fmt.Errorf("progfile: instruction 0x%x targets undecoded address 0x%x", addr, target)
		}
		insts[addr].Target = t
	}

	segments := make([]prog.Segment, 0, len(doc.Segments))
	for _, s := range doc.Segments {
		addr, err := parseUint(s.Address)
		if err != nil {
			return nil, fmt.Errorf("progfile: segment %q address: %w", s.Name, err)
		}
		size, err := parseUint(s.Size)
		if err != nil {
			return nil, fmt.Errorf("progfile: segment %q size: %w", s.Name, err)
		}
		segments = append(segments, prog.Segment{Name: s.Name, Address: addr, Size: size, Executable: s.Executable})
	}

	banks := make([]prog.RegBank, 0, len(doc.RegisterBank))
	for _, b := range doc.RegisterBank {
		banks = append(banks, prog.RegBank{Name: b.Name, Count: b.Count})
	}

	l := &loader{
		insts:    insts,
		start:    start,
		segments: segments,
		platform: prog.Platform{Banks: banks},
	}
	return prog.NewProgram(l), nil
}

// LoadFile opens path and calls Load on its contents.
func LoadFile(path string) (*prog.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("progfile: opening %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func parseKind(flags []string) (prog.Kind, error) {
	var k prog.Kind
	for _, f := range flags {
		bit, ok := kindBits[f]
		if !ok {
			return 0, fmt.Errorf("unknown instruction kind flag %q", f)
		}
		k |= bit
	}
	return k, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return v, nil
}
