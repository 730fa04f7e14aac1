package suite_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcosim/internal/elfbuild"
	"github.com/sarchlab/rvcosim/suite"
)

func TestSuiteRunner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Suite Runner Suite")
}

const (
	fixtureToHost   = 0x80001000
	fixtureSigBegin = 0x80002000
	fixtureSigEnd   = 0x80002010
)

const goldenSignature = "12345678\n01020304\n1357bc7c\n1337ffff\n"

var _ = Describe("Runner", func() {
	var (
		tempDir string
		image   string
		output  bytes.Buffer
		config  suite.Config
	)

	writeFixture := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "suite-runner-test")
		Expect(err).NotTo(HaveOccurred())

		image = filepath.Join(tempDir, "checksum.elf")
		err = elfbuild.WriteFile(image, elfbuild.Config{
			Entry: 0x80000000,
			Segments: []elfbuild.Segment{
				{
					Addr: 0x80000000,
					// addi x1, x0, 1; ecall
					Data: []byte{
						0x93, 0x00, 0x10, 0x00,
						0x73, 0x00, 0x00, 0x00,
					},
				},
				{
					Addr: fixtureSigBegin,
					Data: elfbuild.LEWords(
						0x12345678, 0x01020304,
						0x1357BC7C, 0x1337FFFF,
					),
				},
			},
			Symbols: []elfbuild.Symbol{
				{Name: "tohost", Value: fixtureToHost},
				{Name: "begin_signature", Value: fixtureSigBegin},
				{Name: "end_signature", Value: fixtureSigEnd},
			},
		})
		Expect(err).NotTo(HaveOccurred())

		output.Reset()
		config = suite.DefaultConfig()
		config.Output = &output
		config.Color = false
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	passScript := func() string {
		return writeFixture("pass.yaml", `
threads: 2
fetch_stride: 4
steps:
  - cycle: 5
    store: {addr: 0x80001000, data: 1, mask: 0xf}
`)
	}

	failScript := func() string {
		return writeFixture("fail.yaml", `
threads: 2
fetch_stride: 4
steps:
  - cycle: 2
    store: {addr: 0x80001000, data: 3, mask: 0xf}
`)
	}

	quietScript := func() string {
		return writeFixture("quiet.yaml", "threads: 2\nfetch_stride: 4\n")
	}

	Describe("case outcomes", func() {
		It("should pass a completing case whose signature matches", func() {
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "checksum",
				Image:     image,
				Script:    passScript(),
				Reference: writeFixture("golden.signature", goldenSignature),
				MaxCycles: 100,
			})

			results := runner.RunAll()
			Expect(results).To(HaveLen(1))
			Expect(results[0].Passed()).To(BeTrue())
			Expect(results[0].Status).To(Equal(suite.StatusPass))
			Expect(results[0].HostValue).To(Equal(uint32(1)))
			Expect(results[0].CyclesExecuted).To(Equal(uint64(6)))
			Expect(results[0].SignatureWords).To(Equal(4))
		})

		It("should report a non-pass completion value", func() {
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "reported",
				Image:     image,
				Script:    failScript(),
				MaxCycles: 100,
			})

			results := runner.RunAll()
			Expect(results[0].Status).To(Equal(suite.StatusReportedFailure))
			Expect(results[0].HostValue).To(Equal(uint32(3)))
			Expect(results[0].Passed()).To(BeFalse())
		})

		It("should time out a case that never completes", func() {
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "quiet",
				Image:     image,
				Script:    quietScript(),
				MaxCycles: 10,
			})

			results := runner.RunAll()
			Expect(results[0].Status).To(Equal(suite.StatusTimedOut))
			Expect(results[0].CyclesExecuted).To(Equal(uint64(10)))
			Expect(results[0].SignatureWords).To(BeZero())
		})

		It("should flag a signature that differs from the reference", func() {
			wrong := "12345678\nffffffff\n1357bc7c\n1337ffff\n"
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "mismatch",
				Image:     image,
				Script:    passScript(),
				Reference: writeFixture("wrong.signature", wrong),
				MaxCycles: 100,
			})

			results := runner.RunAll()
			Expect(results[0].Status).To(Equal(suite.StatusMismatch))
			Expect(results[0].Passed()).To(BeFalse())
		})

		It("should record a load failure without aborting the batch", func() {
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:   "broken",
				Image:  filepath.Join(tempDir, "missing.elf"),
				Script: passScript(),
			})
			runner.AddCase(suite.Case{
				Name:      "checksum",
				Image:     image,
				Script:    passScript(),
				MaxCycles: 100,
			})

			results := runner.RunAll()
			Expect(results).To(HaveLen(2))
			Expect(results[0].Status).To(Equal(suite.StatusError))
			Expect(results[0].Error).NotTo(BeEmpty())
			Expect(results[1].Passed()).To(BeTrue())
		})
	})

	Describe("signature artifacts", func() {
		It("should write one artifact per case", func() {
			config.SignatureDir = tempDir
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "checksum",
				Image:     image,
				Script:    passScript(),
				MaxCycles: 100,
			})
			runner.AddCase(suite.Case{
				Name:      "quiet",
				Image:     image,
				Script:    quietScript(),
				MaxCycles: 10,
			})

			runner.RunAll()

			content, err := os.ReadFile(
				filepath.Join(tempDir, "checksum.signature"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(Equal(goldenSignature))

			content, err = os.ReadFile(
				filepath.Join(tempDir, "quiet.signature"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(Equal("# No signature data found\n"))
		})
	})

	Describe("fetch statistics", func() {
		It("should attach instruction-cache counters when enabled", func() {
			config.FetchStats = true
			runner := suite.NewRunner(config)
			runner.AddCase(suite.Case{
				Name:      "checksum",
				Image:     image,
				Script:    passScript(),
				MaxCycles: 100,
			})

			results := runner.RunAll()
			// 6 running cycles, 2 threads.
			Expect(results[0].FetchAccesses).To(Equal(uint64(12)))
			Expect(results[0].FetchMisses).To(Equal(uint64(1)))
			Expect(results[0].FetchHits).To(Equal(uint64(11)))
		})
	})

	Describe("reports", func() {
		runBatch := func() []suite.CaseResult {
			runner := suite.NewRunner(config)
			runner.AddCases([]suite.Case{
				{
					Name:      "checksum",
					Image:     image,
					Script:    passScript(),
					MaxCycles: 100,
				},
				{
					Name:      "quiet",
					Image:     image,
					Script:    quietScript(),
					MaxCycles: 10,
				},
			})
			return runner.RunAll()
		}

		It("should print a readable summary", func() {
			config.SuiteName = "RV32 Smoke"
			results := runBatch()

			runner := suite.NewRunner(config)
			runner.PrintResults(results)

			text := output.String()
			Expect(text).To(ContainSubstring("=== RV32 Smoke Results ==="))
			Expect(text).To(ContainSubstring("PASS"))
			Expect(text).To(ContainSubstring("checksum"))
			Expect(text).To(ContainSubstring("FAIL"))
			Expect(text).To(ContainSubstring("(timed-out)"))
			Expect(text).To(ContainSubstring("1/2 cases passed"))
		})

		It("should emit a machine-readable report", func() {
			config.Version = "1.2.3"
			config.SuiteName = "RV32 Smoke"
			results := runBatch()

			runner := suite.NewRunner(config)
			Expect(runner.PrintJSON(results)).To(Succeed())

			var report suite.Report
			Expect(json.Unmarshal(output.Bytes(), &report)).To(Succeed())
			Expect(report.Metadata.Version).To(Equal("1.2.3"))
			Expect(report.Metadata.Suite).To(Equal("RV32 Smoke"))
			Expect(report.Summary.TotalCases).To(Equal(2))
			Expect(report.Summary.Passed).To(Equal(1))
			Expect(report.Summary.Failed).To(Equal(1))
			Expect(report.Summary.TotalCycles).To(Equal(uint64(16)))
			Expect(report.Results[0].Name).To(Equal("checksum"))
		})
	})
})
