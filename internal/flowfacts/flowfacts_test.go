package flowfacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLoopAndChecksumDirectives(t *testing.T) {
	src := `
// a comment before the first directive
loop 0x1000 10; /* inline block comment */
loop 2000 0;
checksum "binary.img" 0xCAFEBABE;
`
	ds, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds) != 3 {
		t.Fatalf("expected 3 directives, got %d: %+v", len(ds), ds)
	}
	if ds[0].Kind != Loop || ds[0].Address != 0x1000 || ds[0].MaxIteration != 10 {
		t.Fatalf("unexpected first directive: %+v", ds[0])
	}
	if ds[1].Kind != Loop || ds[1].Address != 2000 || ds[1].MaxIteration != 0 {
		t.Fatalf("unexpected second directive (MAX_ITERATION=0 edge case): %+v", ds[1])
	}
	if ds[2].Kind != Checksum || ds[2].File != "binary.img" || ds[2].CRC != 0xCAFEBABE {
		t.Fatalf("unexpected checksum directive: %+v", ds[2])
	}
}

func TestBoundsCollectsLoopDirectivesOnly(t *testing.T) {
	ds := []Directive{
		{Kind: Loop, Address: 0x10, MaxIteration: 5},
		{Kind: Checksum, File: "x"},
		{Kind: Loop, Address: 0x20, MaxIteration: 3},
	}
	b := Bounds(ds)
	if len(b) != 2 || b[0x10] != 5 || b[0x20] != 3 {
		t.Fatalf("unexpected bounds map: %+v", b)
	}
}

func TestVerifyChecksumDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin.img")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// crc32.ChecksumIEEE("hello world") = 0x0d4a1185
	if err := VerifyChecksum(Directive{Kind: Checksum, File: path, CRC: 0x0d4a1185}); err != nil {
		t.Fatalf("expected checksum to match, got %v", err)
	}
	if err := VerifyChecksum(Directive{Kind: Checksum, File: path, CRC: 0xdeadbeef}); err == nil {
		t.Fatalf("expected a mismatched checksum to error")
	}
}
