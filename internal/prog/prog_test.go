package prog

import "testing"

// fakeLoader is a tiny in-memory Loader used across the test suite for
// scenarios that need a hand-built instruction stream (decoding itself
// is out of scope for this module).
type fakeLoader struct {
	insts    map[uint64]*Instruction
	start    uint64
	segments []Segment
	platform Platform
}

func (f *fakeLoader) FindInstAt(addr uint64) *Instruction { return f.insts[addr] }
func (f *fakeLoader) Start() uint64                       { return f.start }
func (f *fakeLoader) Platform() Platform                  { return f.platform }
func (f *fakeLoader) Segments() []Segment                 { return f.segments }

func newFakeLoader() *fakeLoader {
	i1 := &Instruction{Address: 0x1000, Size: 4, Kind: IsALU}
	i2 := &Instruction{Address: 0x1004, Size: 4, Kind: IsControl | IsCond}
	i2.Target = i1
	return &fakeLoader{
		insts: map[uint64]*Instruction{0x1000: i1, 0x1004: i2},
		start: 0x1000,
		segments: []Segment{
			{Name: ".text", Address: 0x1000, Size: 0x1000, Executable: true},
		},
	}
}

func TestKindBits(t *testing.T) {
	k := IsControl | IsCond
	if !k.Has(IsControl) {
		t.Fatalf("expected IsControl set")
	}
	if !k.Any(IsCond | IsCall) {
		t.Fatalf("expected Any to match IsCond")
	}
	if k.Has(IsCall) {
		t.Fatalf("did not expect IsCall set")
	}
}

func TestRegSetContains(t *testing.T) {
	s := RegSet{1, 3, 5}
	if !s.Contains(3) || s.Contains(4) {
		t.Fatalf("RegSet.Contains behaved unexpectedly: %v", s)
	}
}

func TestProgramInstAtAndSegments(t *testing.T) {
	p := NewProgram(newFakeLoader())

	if p.Start() != 0x1000 {
		t.Fatalf("Start() = %#x, want 0x1000", p.Start())
	}
	in := p.InstAt(0x1004)
	if in == nil || in.Kind&IsCond == 0 {
		t.Fatalf("InstAt(0x1004) = %+v, want conditional control instruction", in)
	}
	if p.InstAt(0x1008) != nil {
		t.Fatalf("expected no instruction at undecoded address")
	}

	seg, ok := p.SegmentAt(0x1002)
	if !ok || seg.Name != ".text" {
		t.Fatalf("SegmentAt(0x1002) = (%+v, %v), want .text segment", seg, ok)
	}
	if _, ok := p.SegmentAt(0xFFFF_FFFF); ok {
		t.Fatalf("expected out-of-segment address to report false")
	}
}

func TestInstructionEnd(t *testing.T) {
	in := &Instruction{Address: 0x2000, Size: 4}
	if in.End() != 0x2004 {
		t.Fatalf("End() = %#x, want 0x2004", in.End())
	}
}
