// Package main provides the rvcosim command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Process exit codes. Each failure category gets its own code so test
// infrastructure can distinguish them without parsing output.
const (
	ExitPass            = 0
	ExitArgument        = 1
	ExitImageLoad       = 2
	ExitTimedOut        = 3
	ExitSignatureDump   = 4
	ExitReportedFailure = 5
	ExitAccessFault     = 6
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "rvcosim",
	Short: "A cycle-driven compliance harness for RV32I core models",
	Long: `rvcosim drives a multi-threaded RV32I core model cycle by cycle against a
simulated memory, loading a compliance ELF image, servicing the model's
instruction and data ports every half clock edge, detecting completion via
the tohost convention, and extracting the architectural signature region
for comparison against a golden reference.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitArgument)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./rvcosim.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("rvcosim")
	}

	viper.SetEnvPrefix("RVCOSIM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func fatalf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(code)
}
