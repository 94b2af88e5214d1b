package hw

import (
	"strings"
	"testing"
)

const sample = `<hardware>
	<processor pipeline="5-stage" dispatch="2">
		<stage name="fetch" width="4"/>
		<stage name="decode" width="2"/>
		<unit name="alu" pipelined="true" latency="1"/>
	</processor>
	<cache level="1" kind="inst" associativity="2" sets="64" block-size="16" write="back"/>
	<memory>
		<bank name="sram" low="0" high="65535" read-latency="1" write-latency="1" cached="true"/>
	</memory>
	<bht entries="512" cond-penalty="3" indirect-penalty="5" cond-indirect-penalty="6" default="taken"/>
</hardware>`

func TestLoadPopulatesEverySubsystem(t *testing.T) {
	d, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !d.HasProcessor() || len(d.Processor.Stages) != 2 {
		t.Fatalf("expected 2 pipeline stages, got %+v", d.Processor)
	}
	if len(d.Caches) != 1 || d.Caches[0].Associativity != 2 {
		t.Fatalf("expected one 2-way cache level, got %+v", d.Caches)
	}
	if len(d.MemoryBanks) != 1 || d.MemoryBanks[0].Name != "sram" {
		t.Fatalf("expected one sram bank, got %+v", d.MemoryBanks)
	}
	if !d.HasBHT() || d.BHT.Entries != 512 {
		t.Fatalf("expected a 512-entry BHT, got %+v", d.BHT)
	}
	if _, ok := d.BankFor(0x100); !ok {
		t.Fatalf("expected address 0x100 to resolve to the sram bank")
	}
}

func TestMissingSubsystemsDecodeAbsent(t *testing.T) {
	d, err := Load(strings.NewReader(`<hardware></hardware>`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.HasProcessor() || d.HasBHT() || len(d.Caches) != 0 || len(d.MemoryBanks) != 0 {
		t.Fatalf("expected every subsystem to decode absent, got %+v", d)
	}
}
