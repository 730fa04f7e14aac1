// Package main provides the entry point for rvcosim.
// rvcosim is a cycle-driven compliance harness for multi-threaded RV32I
// core models.
//
// For the full CLI, use: go run ./cmd/rvcosim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rvcosim - RV32I compliance harness")
	fmt.Println("")
	fmt.Println("Usage: rvcosim <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run      Run one image against a scripted core model")
	fmt.Println("  suite    Run a manifest of compliance cases")
	fmt.Println("  version  Print the harness version")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rvcosim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rvcosim' instead.")
	}
}
