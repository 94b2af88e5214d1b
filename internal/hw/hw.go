// Package hw implements the hardware-description loader (spec.md §6):
// an XML document describing the processor pipeline, cache hierarchy,
// memory banks, and branch-history table of the target under analysis.
package hw

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Stage is one pipeline stage.
type Stage struct {
	Name  string `xml:"name,attr"`
	Width int    `xml:"width,attr"`
}

// FunctionalUnit is one dispatchable execution unit.
type FunctionalUnit struct {
	Name     string `xml:"name,attr"`
	Pipeline bool   `xml:"pipelined,attr"`
	Latency  int    `xml:"latency,attr"`
}

// Processor is the pipeline/dispatch subsystem of the description.
// A zero-value Processor (no stages) is treated as absent.
type Processor struct {
	Stages          []Stage           `xml:"stage"`
	Pipeline        string            `xml:"pipeline,attr"`
	Queues          int               `xml:"queues,attr"`
	FunctionalUnits []FunctionalUnit  `xml:"unit"`
	Dispatch        int               `xml:"dispatch,attr"`
}

// CacheLevel is one cache-level element (instruction or data).
type CacheLevel struct {
	Level         int    `xml:"level,attr"`
	Kind          string `xml:"kind,attr"` // "inst", "data", or "unified"
	Associativity int    `xml:"associativity,attr"`
	Sets          int    `xml:"sets,attr"`
	BlockSize     int    `xml:"block-size,attr"`
	Write         string `xml:"write,attr"` // "through" or "back"
	Next          int    `xml:"next,attr"`  // level of the next cache, 0 if none
}

// Bank is a memory-bank element.
type Bank struct {
	Name         string `xml:"name,attr"`
	AddressLow   uint64 `xml:"low,attr"`
	AddressHigh  uint64 `xml:"high,attr"`
	ReadLatency  int    `xml:"read-latency,attr"`
	WriteLatency int    `xml:"write-latency,attr"`
	Cached       bool   `xml:"cached,attr"`
}

// BHT is the branch-history-table element. A zero-value BHT (Entries
// == 0) is treated as absent: every conditional is NOT_CLASSIFIED.
type BHT struct {
	Entries             int    `xml:"entries,attr"`
	CondPenalty         int    `xml:"cond-penalty,attr"`
	IndirectPenalty     int    `xml:"indirect-penalty,attr"`
	CondIndirectPenalty int    `xml:"cond-indirect-penalty,attr"`
	Default             string `xml:"default,attr"` // "taken" or "not-taken"
}

// Description is the root element of a hardware-description document.
type Description struct {
	XMLName     xml.Name     `xml:"hardware"`
	Processor   Processor    `xml:"processor"`
	Caches      []CacheLevel `xml:"cache"`
	MemoryBanks []Bank       `xml:"memory>bank"`
	BHT         BHT          `xml:"bht"`
}

// HasProcessor reports whether the processor subsystem is present.
func (d *Description) HasProcessor() bool { return len(d.Processor.Stages) > 0 }

// HasBHT reports whether a branch predictor is modeled.
func (d *Description) HasBHT() bool { return d.BHT.Entries > 0 }

// BankFor returns the memory bank covering addr, or false if no bank
// covers it (an unsupported-feature condition upstream).
func (d *Description) BankFor(addr uint64) (Bank, bool) {
	for _, b := range d.MemoryBanks {
		if addr >= b.AddressLow && addr <= b.AddressHigh {
			return b, true
		}
	}
	return Bank{}, false
}

// Load unmarshals a hardware description from r. Missing subsystem
// elements decode to Go zero values, which the accessors above and the
// rest of the analysis treat as "absent" per spec.md §6.
func Load(r io.Reader) (*Description, error) {
	var d Description
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("hw: decoding hardware description: %w", err)
	}
	return &d, nil
}
