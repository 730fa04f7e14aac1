package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rvcosim/suite"
)

var (
	suiteJSON        bool
	suiteSigDir      string
	suiteFetchStats  bool
	suiteLenient     bool
	suiteResetCycles uint64
)

var suiteCmd = &cobra.Command{
	Use:   "suite <manifest.yaml>",
	Short: "Run a manifest of compliance cases",
	Long: `Suite runs every case listed in a YAML manifest, each against a fresh
address space, and reports per-case results. The exit code is 0 when all
cases pass and 1 otherwise; per-case detail is in the report.

Example:
  rvcosim suite testdata/sample/suite.yaml --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, err := buildLogger(logLevel, "")
		if err != nil {
			fatalf(ExitArgument, "%v", err)
		}

		manifest, err := suite.LoadManifest(args[0])
		if err != nil {
			fatalf(ExitArgument, "%v", err)
		}

		if suiteSigDir != "" {
			if err := os.MkdirAll(suiteSigDir, 0755); err != nil {
				fatalf(ExitSignatureDump,
					"failed to create signature directory: %v", err)
			}
		}

		config := suite.DefaultConfig()
		config.Color = !noColor
		config.Logger = logger
		config.SuiteName = manifest.Name
		config.Version = version
		config.SignatureDir = suiteSigDir
		config.FetchStats = suiteFetchStats
		config.LenientAccess = suiteLenient
		config.ResetCycles = suiteResetCycles

		runner := suite.NewRunner(config)
		runner.AddCases(manifest.Cases)
		results := runner.RunAll()

		if suiteJSON {
			if err := runner.PrintJSON(results); err != nil {
				fatalf(ExitArgument, "failed to write report: %v", err)
			}
		} else {
			runner.PrintResults(results)
		}

		for _, result := range results {
			if !result.Passed() {
				os.Exit(1)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(suiteCmd)

	suiteCmd.Flags().BoolVar(&suiteJSON, "json", false,
		"emit the report as JSON")
	suiteCmd.Flags().StringVar(&suiteSigDir, "signature-dir", "",
		"directory for per-case signature artifacts")
	suiteCmd.Flags().BoolVar(&suiteFetchStats, "fetch-stats", false,
		"attach instruction-cache statistics to every case")
	suiteCmd.Flags().BoolVar(&suiteLenient, "lenient-mem", false,
		"substitute zero for out-of-range reads instead of failing")
	suiteCmd.Flags().Uint64Var(&suiteResetCycles, "reset-cycles",
		suite.DefaultConfig().ResetCycles, "cycles to hold each model in reset")
}
