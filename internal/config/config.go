// Package config implements the configuration property list consumed by
// every processor (spec.md §6 "Configuration properties"), backed by a
// TOML file the way joeycumines-go-utilpkg's config loader is (see
// DESIGN.md).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FirstMissLevel is the PERS persistence granularity a run requests.
type FirstMissLevel string

const (
	FirstMissNone  FirstMissLevel = "NONE"
	FirstMissInner FirstMissLevel = "INNER"
	FirstMissOuter FirstMissLevel = "OUTER"
	FirstMissMulti FirstMissLevel = "MULTI"
)

// LogLevel is the LOG_LEVEL option (spec.md §6).
type LogLevel string

const (
	LogNone  LogLevel = "NONE"
	LogProc  LogLevel = "PROC"
	LogFile  LogLevel = "FILE"
	LogFun   LogLevel = "FUN"
	LogBlock LogLevel = "BLOCK"
	LogInst  LogLevel = "INST"
)

// Options is the recognized configuration keys of spec.md §6, decoded
// from a TOML document. Load starts from Default, so an option the
// document omits keeps its Default value.
type Options struct {
	EntryCFG       string         `toml:"entry_cfg"`
	VirtualDefault bool           `toml:"virtual_default"`
	FirstMissLevel FirstMissLevel `toml:"firstmiss_level"`
	PseudoUnroll   bool           `toml:"pseudo_unrolling"`
	CFGStart       string         `toml:"cfg_start"`
	CFGStop        string         `toml:"cfg_stop"`
	Explicit       bool           `toml:"explicit"`

	LogLevel LogLevel `toml:"log_level"`
	Verbose  bool     `toml:"verbose"`
	LogFor   string   `toml:"log_for"`

	SolverBinary string `toml:"solver_binary"`
}

// Default returns the documented defaults: VIRTUAL_DEFAULT true,
// FIRSTMISS_LEVEL INNER, LOG_LEVEL PROC, everything else its Go zero
// value.
func Default() Options {
	return Options{VirtualDefault: true, FirstMissLevel: FirstMissInner, LogLevel: LogProc}
}

// Load reads and decodes a TOML options file, starting from Default and
// overwriting only the keys the file sets.
func Load(path string) (Options, error) {
	opts := Default()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return opts, nil
}

// LoadOrDefault is Load, returning Default() unchanged when path is
// empty or does not exist — options are optional, per spec.md §6.
func LoadOrDefault(path string) (Options, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}
