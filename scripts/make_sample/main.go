// Package main generates a self-contained sample compliance case: an RV32
// image whose signature region holds four checksum words, the port schedule
// that stores the pass value to tohost, the golden signature file, and a
// one-case suite manifest tying them together.
//
// Usage: go run ./scripts/make_sample [-out testdata/sample]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sarchlab/rvcosim/internal/elfbuild"
)

var outDir = flag.String("out", "testdata/sample", "output directory")

const (
	codeBase = 0x80000000
	toHost   = 0x80001000
	sigBegin = 0x80002000
	sigEnd   = 0x80002010
)

const scheduleYAML = `# Port schedule for the checksum sample image. The model fetches with a
# stride of 4 from the reset PC on all four threads and stores the pass
# value to tohost at cycle 5.
threads: 4
fetch_stride: 4
steps:
  - cycle: 5
    store: {addr: 0x80001000, data: 1, mask: 0xf}
`

const goldenSignature = `12345678
01020304
1357bc7c
1337ffff
`

const manifestYAML = `name: rv32 sample suite
default_max_cycles: 100
cases:
  - name: checksum
    description: four-word checksum signature with completion at cycle 5
    image: checksum.elf
    script: checksum.yaml
    reference: checksum.reference
`

func main() {
	flag.Parse()

	if err := generate(*outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sample case written to %s\n", *outDir)
	fmt.Printf("Try: go run ./cmd/rvcosim suite %s\n",
		filepath.Join(*outDir, "suite.yaml"))
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	err := elfbuild.WriteFile(filepath.Join(dir, "checksum.elf"), elfbuild.Config{
		Entry: codeBase,
		Segments: []elfbuild.Segment{
			{
				Addr: codeBase,
				// addi x1, x0, 1; sw x1, 0(x2); ecall
				Data: elfbuild.LEWords(
					0x00100093,
					0x00112023,
					0x00000073,
				),
			},
			{
				Addr: sigBegin,
				Data: elfbuild.LEWords(
					0x12345678, 0x01020304,
					0x1357BC7C, 0x1337FFFF,
				),
			},
		},
		Symbols: []elfbuild.Symbol{
			{Name: "tohost", Value: toHost},
			{Name: "fromhost", Value: toHost + 8},
			{Name: "begin_signature", Value: sigBegin},
			{Name: "end_signature", Value: sigEnd},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	files := map[string]string{
		"checksum.yaml":      scheduleYAML,
		"checksum.reference": goldenSignature,
		"suite.yaml":         manifestYAML,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}
