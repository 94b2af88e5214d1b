package prog

// RegBank describes one register bank of the target platform (e.g.
// general-purpose, floating point) for diagnostic/display purposes.
type RegBank struct {
	Name  string
	Count int
}

// Platform describes the register banks the loader's instructions draw
// register identifiers from.
type Platform struct {
	Banks []RegBank
}

// Segment is a contiguous, named region of the loaded program (e.g.
// ".text", ".data") with a base address and a size in bytes.
type Segment struct {
	Name    string
	Address uint64
	Size    uint64
	// Executable marks segments that may contain instructions.
	Executable bool
}

// Contains reports whether addr falls within the segment.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Address && addr < s.Address+s.Size
}

// Loader is the narrow interface the rest of the analysis core depends
// on for instruction decoding. It is implemented externally (a real
// binary decoder); this module only consumes it.
type Loader interface {
	// FindInstAt returns the instruction starting exactly at address,
	// or nil if none is decoded there.
	FindInstAt(address uint64) *Instruction
	// Start returns the address of the program's entry point.
	Start() uint64
	// Platform describes the target's register banks.
	Platform() Platform
	// Segments returns every segment of the loaded program.
	Segments() []Segment
}

// Program is an immutable view over a Loader: the decoded instructions,
// grouped into the segments the loader reports. It never mutates the
// instructions it references; it exists to give the rest of the core a
// single handle to pass around instead of the raw Loader.
type Program struct {
	loader   Loader
	segments []Segment
}

// NewProgram wraps loader into a Program.
func NewProgram(loader Loader) *Program {
	return &Program{loader: loader, segments: loader.Segments()}
}

// Loader returns the underlying loader.
func (p *Program) Loader() Loader { return p.loader }

// Segments returns the program's segments.
func (p *Program) Segments() []Segment { return p.segments }

// Start returns the program's entry address.
func (p *Program) Start() uint64 { return p.loader.Start() }

// InstAt decodes (or retrieves) the instruction at address, or nil if
// none is present there.
func (p *Program) InstAt(address uint64) *Instruction {
	return p.loader.FindInstAt(address)
}

// SegmentAt returns the segment containing address, or the zero value
// and false if address falls outside every segment (an out-of-segment
// access).
func (p *Program) SegmentAt(address uint64) (Segment, bool) {
	for _, s := range p.segments {
		if s.Contains(address) {
			return s, true
		}
	}
	return Segment{}, false
}
