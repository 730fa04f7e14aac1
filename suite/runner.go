package suite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sarchlab/rvcosim/cachesim"
	"github.com/sarchlab/rvcosim/core"
	"github.com/sarchlab/rvcosim/harness"
	"github.com/sarchlab/rvcosim/loader"
	"github.com/sarchlab/rvcosim/mem"
	"github.com/sarchlab/rvcosim/signature"
)

// Case status values reported in results.
const (
	StatusPass            = "pass"
	StatusReportedFailure = "reported-failure"
	StatusTimedOut        = "timed-out"
	StatusMismatch        = "signature-mismatch"
	StatusError           = "error"
)

// CaseResult holds the outcome of a single case.
type CaseResult struct {
	// Name identifies the case.
	Name string `json:"name"`

	// Description explains what the case exercises.
	Description string `json:"description,omitempty"`

	// Status is one of the Status constants.
	Status string `json:"status"`

	// HostValue is the completion value the model reported.
	HostValue uint32 `json:"host_value"`

	// CyclesExecuted is the number of running cycles.
	CyclesExecuted uint64 `json:"cycles_executed"`

	// SignatureWords is the extracted signature length.
	SignatureWords int `json:"signature_words"`

	// Fetch statistics (if fetch stats enabled)
	FetchAccesses uint64 `json:"fetch_accesses,omitempty"`
	FetchHits     uint64 `json:"fetch_hits,omitempty"`
	FetchMisses   uint64 `json:"fetch_misses,omitempty"`

	// Error describes a harness-level failure, not a reported one.
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the case.
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the case passed outright.
func (r CaseResult) Passed() bool {
	return r.Status == StatusPass
}

// Config configures the suite runner.
type Config struct {
	// Output is where to write reports (default: os.Stdout).
	Output io.Writer

	// Color enables colored PASS/FAIL markers in text output.
	Color bool

	// Logger receives harness traces and warnings.
	Logger *slog.Logger

	// MemBase and MemSize shape the address space built per case.
	MemBase uint32
	MemSize uint32

	// ResetCycles is the reset length applied to every case.
	ResetCycles uint64

	// LenientAccess downgrades out-of-range port accesses to warnings.
	LenientAccess bool

	// FetchStats attaches an instruction-cache observer to every case.
	FetchStats bool

	// Cache is the observer geometry used when FetchStats is set.
	Cache cachesim.Config

	// SignatureDir, when set, receives <case>.signature files.
	SignatureDir string

	// SuiteName labels the report.
	SuiteName string

	// Version is recorded in the JSON report metadata.
	Version string
}

// DefaultConfig returns a default runner configuration.
func DefaultConfig() Config {
	return Config{
		Output:      os.Stdout,
		Color:       true,
		MemBase:     mem.DefaultBase,
		MemSize:     mem.DefaultSize,
		ResetCycles: harness.DefaultResetCycles,
		Cache:       cachesim.DefaultConfig(),
		Version:     "dev",
	}
}

// Runner executes compliance cases and reports results.
type Runner struct {
	config Config
	cases  []Case

	pass *color.Color
	fail *color.Color
}

// NewRunner creates a runner. A nil logger in the config is replaced with a
// discarding one.
func NewRunner(config Config) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)
	if !config.Color {
		pass.DisableColor()
		fail.DisableColor()
	}

	return &Runner{
		config: config,
		pass:   pass,
		fail:   fail,
	}
}

// AddCase adds a case to the runner.
func (r *Runner) AddCase(c Case) {
	r.cases = append(r.cases, c)
}

// AddCases adds multiple cases to the runner.
func (r *Runner) AddCases(cases []Case) {
	r.cases = append(r.cases, cases...)
}

// RunAll executes all cases, each against a fresh address space, and
// returns their results in order.
func (r *Runner) RunAll() []CaseResult {
	results := make([]CaseResult, 0, len(r.cases))
	for _, c := range r.cases {
		results = append(results, r.runCase(c))
	}
	return results
}

func (r *Runner) runCase(c Case) CaseResult {
	result := CaseResult{Name: c.Name, Description: c.Description}
	caseErr := func(err error) CaseResult {
		result.Status = StatusError
		result.Error = err.Error()
		return result
	}

	space := mem.NewAddressSpace(r.config.MemBase, r.config.MemSize)

	prog, err := loader.Load(c.Image)
	if err != nil {
		return caseErr(err)
	}
	if err := prog.LoadInto(space); err != nil {
		return caseErr(err)
	}

	script, err := core.LoadScript(c.Script)
	if err != nil {
		return caseErr(err)
	}
	model := core.NewScriptModel(script)

	opts := []harness.Option{
		harness.WithResetCycles(r.config.ResetCycles),
		harness.WithLogger(r.config.Logger.With("case", c.Name)),
	}
	if c.MaxCycles > 0 {
		opts = append(opts, harness.WithMaxCycles(c.MaxCycles))
	}
	if r.config.LenientAccess {
		opts = append(opts, harness.WithLenientAccess())
	}

	var observer *cachesim.Observer
	if r.config.FetchStats {
		observer = cachesim.NewObserver(r.config.Cache)
		opts = append(opts, harness.WithFetchObserver(observer))
	}

	sched := harness.NewScheduler(model, space, prog.Symbols, opts...)

	start := time.Now()
	runResult, err := sched.Run()
	result.WallTime = time.Since(start)
	if err != nil {
		return caseErr(err)
	}

	result.HostValue = runResult.HostValue
	result.CyclesExecuted = runResult.CyclesExecuted

	if observer != nil {
		stats := observer.Stats()
		result.FetchAccesses = stats.Accesses
		result.FetchHits = stats.Hits
		result.FetchMisses = stats.Misses
	}

	// A timed-out run never reached the point of producing a signature,
	// so its artifact is the placeholder, not whatever the region holds.
	rec := &signature.Record{}
	if runResult.Completed() {
		rec, err = signature.Extract(
			space, prog.Symbols.BeginSignature, prog.Symbols.EndSignature)
		if err != nil {
			return caseErr(err)
		}
		result.SignatureWords = len(rec.Words)
	}

	if r.config.SignatureDir != "" {
		path := filepath.Join(r.config.SignatureDir, c.Name+".signature")
		if err := rec.WriteFile(path); err != nil {
			return caseErr(err)
		}
	}

	switch {
	case runResult.State == harness.StateTimedOut:
		result.Status = StatusTimedOut
	case !runResult.Passed():
		result.Status = StatusReportedFailure
	case c.Reference != "":
		match, err := matchReference(rec, c.Reference)
		if err != nil {
			return caseErr(err)
		}
		if match {
			result.Status = StatusPass
		} else {
			result.Status = StatusMismatch
		}
	default:
		result.Status = StatusPass
	}

	return result
}

// matchReference compares the record's rendering against the golden file,
// line by line, ignoring line-ending differences.
func matchReference(rec *signature.Record, path string) (bool, error) {
	golden, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read reference: %w", err)
	}

	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf); err != nil {
		return false, err
	}

	got := splitLines(buf.String())
	want := splitLines(string(golden))
	if len(got) != len(want) {
		return false, nil
	}
	for i := range got {
		if got[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// PrintResults outputs case results in a human-readable format.
func (r *Runner) PrintResults(results []CaseResult) {
	out := r.config.Output

	title := r.config.SuiteName
	if title == "" {
		title = "Compliance Suite"
	}
	_, _ = fmt.Fprintf(out, "=== %s Results ===\n\n", title)

	nameWidth := 0
	for _, res := range results {
		if len(res.Name) > nameWidth {
			nameWidth = len(res.Name)
		}
	}

	passed := 0
	for _, res := range results {
		marker := r.fail.Sprint("FAIL")
		if res.Passed() {
			marker = r.pass.Sprint("PASS")
			passed++
		}

		_, _ = fmt.Fprintf(out, "  %s  %-*s  %d cycles, %d signature words",
			marker, nameWidth, res.Name,
			res.CyclesExecuted, res.SignatureWords)
		if res.FetchAccesses > 0 {
			hitRate := float64(res.FetchHits) / float64(res.FetchAccesses)
			_, _ = fmt.Fprintf(out, ", fetch hit rate %.1f%%", 100*hitRate)
		}
		if !res.Passed() {
			_, _ = fmt.Fprintf(out, " (%s)", res.Status)
		}
		if res.Error != "" {
			_, _ = fmt.Fprintf(out, ": %s", res.Error)
		}
		_, _ = fmt.Fprintln(out)
	}

	_, _ = fmt.Fprintln(out)
	summary := fmt.Sprintf("%d/%d cases passed", passed, len(results))
	if passed == len(results) {
		_, _ = fmt.Fprintln(out, r.pass.Sprint(summary))
	} else {
		_, _ = fmt.Fprintln(out, r.fail.Sprint(summary))
	}
}

// Report is the complete JSON output format for a suite run.
type Report struct {
	Metadata ReportMetadata `json:"metadata"`
	Results  []CaseResult   `json:"results"`
	Summary  ReportSummary  `json:"summary"`
}

// ReportMetadata describes the run that produced the report.
type ReportMetadata struct {
	// Timestamp when the suite was run
	Timestamp string `json:"timestamp"`

	// Version of the harness
	Version string `json:"version"`

	// Suite is the manifest's name.
	Suite string `json:"suite,omitempty"`
}

// ReportSummary contains aggregate statistics across all cases.
type ReportSummary struct {
	TotalCases    int           `json:"total_cases"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	TotalCycles   uint64        `json:"total_cycles"`
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs case results in JSON format for automated comparison.
func (r *Runner) PrintJSON(results []CaseResult) error {
	var totalCycles uint64
	var totalWallTime time.Duration
	passed := 0
	for _, res := range results {
		totalCycles += res.CyclesExecuted
		totalWallTime += res.WallTime
		if res.Passed() {
			passed++
		}
	}

	report := Report{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   r.config.Version,
			Suite:     r.config.SuiteName,
		},
		Results: results,
		Summary: ReportSummary{
			TotalCases:    len(results),
			Passed:        passed,
			Failed:        len(results) - passed,
			TotalCycles:   totalCycles,
			TotalWallTime: totalWallTime,
		},
	}

	encoder := json.NewEncoder(r.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
