// Command wcet is the CLI front-end for the analysis core (spec.md §6):
// it wires a progfile-described task, an optional hardware description
// and flow facts, and an optional external solver into one WCET
// computation, following the teacher's cmd/standalone/main.go shape
// (flag parsing, exit on a hard failure) rather than the GUI path. Every
// processor logs through the workspace's logx.Logger (LOG_LEVEL/VERBOSE
// /LOG_FOR, spec.md §6); this command owns the only zerolog sink,
// writing to stderr.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/statinf-otawa/otawa-sub004/internal/cfg"
	"github.com/statinf-otawa/otawa-sub004/internal/cfgbuild"
	"github.com/statinf-otawa/otawa-sub004/internal/config"
	"github.com/statinf-otawa/otawa-sub004/internal/flowfacts"
	"github.com/statinf-otawa/otawa-sub004/internal/hw"
	"github.com/statinf-otawa/otawa-sub004/internal/ilp"
	"github.com/statinf-otawa/otawa-sub004/internal/logx"
	"github.com/statinf-otawa/otawa-sub004/internal/prog"
	"github.com/statinf-otawa/otawa-sub004/internal/progfile"
	"github.com/statinf-otawa/otawa-sub004/internal/stats"
	"github.com/statinf-otawa/otawa-sub004/internal/wcetdrv"
	"github.com/statinf-otawa/otawa-sub004/internal/workspace"
)

func main() {
	progPath := flag.String("prog", "", "path to the progfile JSON task description (required)")
	hwPath := flag.String("hw", "", "path to the hardware description XML (optional)")
	flowPath := flag.String("flow", "", "path to the flow-facts file (optional)")
	configPath := flag.String("config", "", "path to the TOML configuration file (optional)")
	solverBin := flag.String("solver", "", "external ILP solver binary; empty uses the built-in naive solver")
	lpOut := flag.String("lp", "", "write the assembled ILP system in CPLEX LP format to this path (optional)")
	statsOut := flag.String("stats", "", "write an XML statistics dump to this path (optional)")
	flag.Parse()

	if *progPath == "" {
		fmt.Fprintln(os.Stderr, "wcet: -prog is required")
		os.Exit(1)
	}

	opts, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *solverBin != "" {
		opts.SolverBinary = *solverBin
	}

	lg := logx.New(os.Stderr, opts)
	log := lg.For("main")

	program, err := progfile.LoadFile(*progPath)
	if err != nil {
		log.Error().Err(err).Msg("loading progfile")
		os.Exit(1)
	}

	ws := workspace.New(program, opts)
	ws.Log = lg

	if *hwPath != "" {
		f, err := os.Open(*hwPath)
		if err != nil {
			log.Error().Err(err).Msg("opening hardware description")
			os.Exit(1)
		}
		desc, err := hw.Load(f)
		f.Close()
		if err != nil {
			log.Error().Err(err).Msg("loading hardware description")
			os.Exit(1)
		}
		ws.Hardware = desc
	}

	var flow []flowfacts.Directive
	if *flowPath != "" {
		f, err := os.Open(*flowPath)
		if err != nil {
			log.Error().Err(err).Msg("opening flow-facts file")
			os.Exit(1)
		}
		flow, err = flowfacts.Parse(f)
		f.Close()
		if err != nil {
			log.Error().Err(err).Msg("parsing flow-facts file")
			os.Exit(1)
		}
		for _, d := range flow {
			if d.Kind != flowfacts.Checksum {
				continue
			}
			if err := flowfacts.VerifyChecksum(d); err != nil {
				log.Error().Err(err).Msg("verifying flow-facts checksum")
				os.Exit(2)
			}
		}
	}

	if _, err := cfgbuild.Build(ws.Collection, program); err != nil {
		log.Error().Err(err).Msg("building cfg")
		os.Exit(2)
	}

	var solver ilp.Solver
	if opts.SolverBinary != "" {
		solver = ilp.ExecSolver{Binary: opts.SolverBinary}
	}

	res, err := wcetdrv.Run(wcetdrv.Config{Workspace: ws, Flow: flow, Solver: solver})
	if err != nil {
		log.Error().Err(err).Msg("running wcet analysis")
		os.Exit(2)
	}

	fmt.Printf("WCET: %g\n", res.Solution.Objective)

	if *lpOut != "" {
		if err := writeToFile(*lpOut, func(f *os.File) error { return ilp.WriteLP(f, res.System) }); err != nil {
			log.Error().Err(err).Msg("writing lp file")
			os.Exit(2)
		}
	}

	if *statsOut != "" {
		counts := make(map[cfg.BlockID]float64, len(res.Vars.Block))
		for b, idx := range res.Vars.Block {
			counts[b] = res.Solution.Value(idx)
		}
		collectors := []stats.Collector{
			stats.BlockCountCollector{Values: counts},
			cacheAccessStats(res),
			branchAccessStats(res),
		}
		if err := writeToFile(*statsOut, func(f *os.File) error {
			return stats.DumpXML(f, ws.Collection, collectors)
		}); err != nil {
			log.Error().Err(err).Msg("writing stats file")
			os.Exit(2)
		}
	}
}

// cacheAccessStats reports the classified category and solved miss
// count of every instruction cache access the run classified, one
// tuple per access rather than one per block (spec.md §4.8).
func cacheAccessStats(res *wcetdrv.Result) stats.AccessCollector {
	accesses := make([]stats.Access, 0, len(res.ICache))
	for _, a := range res.ICache {
		misses := 0.0
		if idx, ok := res.CacheMissVar[a.GroupID]; ok {
			misses = res.Solution.Value(idx)
		}
		var size uint64
		if a.Inst != nil {
			size = uint64(a.Inst.Size)
		}
		accesses = append(accesses, stats.Access{
			Address: instAddress(a.Inst),
			Size:    size,
			Value:   fmt.Sprintf("%s/%g", a.Category.Kind, misses),
		})
	}
	return stats.AccessCollector{CollectorName: "cache-access", Accesses: accesses}
}

// branchAccessStats mirrors cacheAccessStats for conditional-branch
// misprediction accesses.
func branchAccessStats(res *wcetdrv.Result) stats.AccessCollector {
	accesses := make([]stats.Access, 0, len(res.Branch))
	for i, a := range res.Branch {
		mispreds := 0.0
		if i < len(res.BranchMispredVar) {
			mispreds = res.Solution.Value(res.BranchMispredVar[i])
		}
		var size uint64
		if a.Inst != nil {
			size = uint64(a.Inst.Size)
		}
		accesses = append(accesses, stats.Access{
			Address: instAddress(a.Inst),
			Size:    size,
			Value:   fmt.Sprintf("%s/%g", a.Category.Kind, mispreds),
		})
	}
	return stats.AccessCollector{CollectorName: "branch-access", Accesses: accesses}
}

func instAddress(in *prog.Instruction) uint64 {
	if in == nil {
		return 0
	}
	return in.Address
}

func writeToFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wcet: creating %s: %w", path, err)
	}
	defer f.Close()
	return write(f)
}
