package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Store describes a one-cycle write pulse on the data port.
type Store struct {
	// Addr is the word address of the store.
	Addr uint32 `yaml:"addr"`

	// Data is the write-data word.
	Data uint32 `yaml:"data"`

	// Mask selects the bytes to store (low four bits).
	Mask uint8 `yaml:"mask"`
}

// Step sets port outputs at one cycle of a script. Fetch and DataAddr are
// held values: once set they persist until a later step overwrites them.
// Store is a pulse: the byte mask asserts for exactly the step's cycle.
type Step struct {
	// Cycle is the 0-based running cycle the step applies to. Reset
	// cycles do not count.
	Cycle uint64 `yaml:"cycle"`

	// Fetch sets the fetch addresses of threads 0..len(Fetch)-1.
	Fetch []uint32 `yaml:"fetch,omitempty"`

	// DataAddr sets the shared data address output.
	DataAddr *uint32 `yaml:"data_addr,omitempty"`

	// Store asserts a write pulse for this cycle.
	Store *Store `yaml:"store,omitempty"`
}

// Script is a deterministic port schedule replayed by a ScriptModel. It is
// the serialized stand-in for a core model: the recorded (or handwritten)
// port activity of a run, without any instruction semantics.
type Script struct {
	// Threads is the hardware thread count (default DefaultThreads).
	Threads int `yaml:"threads,omitempty"`

	// ResetPC is the fetch address exposed during reset and at cycle 0
	// (default DefaultResetPC). It is also the initial data address, so
	// the speculative data read stays in range from the first cycle.
	ResetPC uint32 `yaml:"reset_pc,omitempty"`

	// FetchStride advances every thread's fetch address by this many
	// bytes on each cycle after the first.
	FetchStride uint32 `yaml:"fetch_stride,omitempty"`

	// Steps is the schedule, ordered by non-decreasing cycle.
	Steps []Step `yaml:"steps,omitempty"`
}

// Validate checks schedule consistency: positive thread count, steps in
// cycle order, masks within four bits, fetch lists within the thread count.
func (s *Script) Validate() error {
	threads := s.Threads
	if threads == 0 {
		threads = DefaultThreads
	}
	if threads < 0 {
		return fmt.Errorf("invalid thread count %d", threads)
	}

	var prev uint64
	for i, step := range s.Steps {
		if i > 0 && step.Cycle < prev {
			return fmt.Errorf("step %d: cycle %d before cycle %d", i, step.Cycle, prev)
		}
		prev = step.Cycle

		if len(step.Fetch) > threads {
			return fmt.Errorf("step %d: %d fetch addresses for %d threads",
				i, len(step.Fetch), threads)
		}
		if step.Store != nil && step.Store.Mask > 0xF {
			return fmt.Errorf("step %d: byte mask 0x%x exceeds four bits", i, step.Store.Mask)
		}
	}
	return nil
}

// LoadScript reads and validates a YAML port schedule.
func LoadScript(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}

	var script Script
	if err := yaml.Unmarshal(raw, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := script.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &script, nil
}
