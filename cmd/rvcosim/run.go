package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sarchlab/rvcosim/cachesim"
	"github.com/sarchlab/rvcosim/core"
	"github.com/sarchlab/rvcosim/harness"
	"github.com/sarchlab/rvcosim/loader"
	"github.com/sarchlab/rvcosim/mem"
	"github.com/sarchlab/rvcosim/signature"
)

// maxScanReport caps how many diagnostic scan hits are logged.
const maxScanReport = 64

var (
	runImage       string
	runScript      string
	runSignature   string
	runTrace       string
	runMaxCycles   uint64
	runResetCycles uint64
	runThreads     int
	runMemBase     uint32
	runMemSize     uint32
	runLenient     bool
	runFetchStats  bool
	runScan        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one image against a scripted core model",
	Long: `Run loads an RV32 ELF image into simulated memory, replays the port
schedule through the core model contract, and extracts the signature region
once the model signals completion through tohost.

The signature is written to --signature, or to stdout when no path is
given. With --trace, every cycle's port activity is appended to a debug
log regardless of --log-level.

Example:
  rvcosim run --image checksum.elf --script checksum.yaml -o checksum.signature`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, closeTrace, err := buildLogger(logLevel, runTrace)
		if err != nil {
			fatalf(ExitArgument, "%v", err)
		}

		code := executeRun(logger)
		closeTrace()
		os.Exit(code)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runImage, "image", "i", "",
		"path to the RV32 ELF image (required)")
	runCmd.Flags().StringVarP(&runScript, "script", "s", "",
		"path to the port schedule YAML (required)")
	runCmd.Flags().StringVarP(&runSignature, "signature", "o", "",
		"path for the signature artifact (default: stdout)")
	runCmd.Flags().StringVar(&runTrace, "trace", "",
		"path for the per-cycle trace log")
	runCmd.Flags().Uint64Var(&runMaxCycles, "max-cycles",
		harness.DefaultMaxCycles, "cycle budget before timing out")
	runCmd.Flags().Uint64Var(&runResetCycles, "reset-cycles",
		harness.DefaultResetCycles, "cycles to hold the model in reset")
	runCmd.Flags().IntVar(&runThreads, "threads", 0,
		"override the schedule's hardware thread count")
	runCmd.Flags().Uint32Var(&runMemBase, "mem-base", mem.DefaultBase,
		"memory base address")
	runCmd.Flags().Uint32Var(&runMemSize, "mem-size", mem.DefaultSize,
		"memory size in bytes")
	runCmd.Flags().BoolVar(&runLenient, "lenient-mem", false,
		"substitute zero for out-of-range reads instead of failing")
	runCmd.Flags().BoolVar(&runFetchStats, "fetch-stats", false,
		"report instruction-cache statistics over the fetch stream")
	runCmd.Flags().BoolVar(&runScan, "scan-nonzero", false,
		"on an empty signature, scan memory for non-zero words (diagnostic)")

	_ = runCmd.MarkFlagRequired("image")
	_ = runCmd.MarkFlagRequired("script")
}

func executeRun(logger *slog.Logger) int {
	space := mem.NewAddressSpace(runMemBase, runMemSize)

	prog, err := loader.Load(runImage)
	if err != nil {
		errorf("%v", err)
		return ExitImageLoad
	}
	if err := prog.LoadInto(space); err != nil {
		errorf("%v", err)
		return ExitImageLoad
	}

	logger.Info("image loaded",
		"image", runImage,
		"entry", fmt.Sprintf("0x%08x", prog.EntryPoint),
		"segments", len(prog.Segments),
		"tohost", fmt.Sprintf("0x%08x", prog.Symbols.ToHost),
		"sigBegin", fmt.Sprintf("0x%08x", prog.Symbols.BeginSignature),
		"sigEnd", fmt.Sprintf("0x%08x", prog.Symbols.EndSignature))

	script, err := core.LoadScript(runScript)
	if err != nil {
		errorf("%v", err)
		return ExitArgument
	}
	if runThreads > 0 {
		script.Threads = runThreads
		if err := script.Validate(); err != nil {
			errorf("schedule does not fit %d threads: %v", runThreads, err)
			return ExitArgument
		}
	}
	model := core.NewScriptModel(script)

	opts := []harness.Option{
		harness.WithMaxCycles(runMaxCycles),
		harness.WithResetCycles(runResetCycles),
		harness.WithLogger(logger),
	}
	if runLenient {
		opts = append(opts, harness.WithLenientAccess())
	}
	var observer *cachesim.Observer
	if runFetchStats {
		observer = cachesim.NewObserver(cachesim.DefaultConfig())
		opts = append(opts, harness.WithFetchObserver(observer))
	}

	sched := harness.NewScheduler(model, space, prog.Symbols, opts...)

	result, err := sched.Run()
	if err != nil {
		errorf("%v", err)
		return ExitAccessFault
	}

	logger.Info("run finished",
		"state", result.State.String(),
		"cycles", result.CyclesExecuted,
		"hostValue", result.HostValue)

	if observer != nil {
		stats := observer.Stats()
		logger.Info("fetch cache",
			"accesses", stats.Accesses,
			"hits", stats.Hits,
			"misses", stats.Misses,
			"hitRate", fmt.Sprintf("%.3f", stats.HitRate()))
	}

	rec := &signature.Record{}
	if result.Completed() {
		rec, err = signature.Extract(
			space, prog.Symbols.BeginSignature, prog.Symbols.EndSignature)
		if err != nil {
			errorf("%v", err)
			return ExitSignatureDump
		}
	}

	if runSignature != "" {
		if err := rec.WriteFile(runSignature); err != nil {
			errorf("%v", err)
			return ExitSignatureDump
		}
	} else {
		if _, err := rec.WriteTo(os.Stdout); err != nil {
			errorf("failed to write signature: %v", err)
			return ExitSignatureDump
		}
	}

	if runScan && len(rec.Words) == 0 {
		reportScan(logger, space)
	}

	switch {
	case result.State == harness.StateTimedOut:
		failMark().Fprintf(color.Error,
			"TIMED OUT after %d cycles\n", result.CyclesExecuted)
		return ExitTimedOut
	case result.HostValue == harness.CompletionPass:
		passMark().Fprintf(color.Error,
			"PASS (%d cycles)\n", result.CyclesExecuted)
		return ExitPass
	default:
		failMark().Fprintf(color.Error,
			"FAIL: model reported value %d (%d cycles)\n",
			result.HostValue, result.CyclesExecuted)
		return ExitReportedFailure
	}
}

// reportScan logs non-zero words found outside the signature flow. Purely
// diagnostic; the exit code never depends on it.
func reportScan(logger *slog.Logger, space *mem.AddressSpace) {
	hits := signature.ScanNonZero(space)
	if len(hits) == 0 {
		logger.Info("memory scan found no non-zero words")
		return
	}

	for i, hit := range hits {
		if i == maxScanReport {
			logger.Info("memory scan truncated",
				"remaining", len(hits)-maxScanReport)
			break
		}
		logger.Info("non-zero word",
			"addr", fmt.Sprintf("0x%08x", hit.Addr),
			"value", fmt.Sprintf("0x%08x", hit.Value))
	}
}

func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func passMark() *color.Color {
	return color.New(color.FgGreen, color.Bold)
}

func failMark() *color.Color {
	return color.New(color.FgRed, color.Bold)
}
