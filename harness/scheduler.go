package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sarchlab/rvcosim/core"
	"github.com/sarchlab/rvcosim/loader"
	"github.com/sarchlab/rvcosim/mem"
)

// DefaultResetCycles is the number of full clock cycles reset stays
// asserted before the model starts running.
const DefaultResetCycles = 5

// DefaultMaxCycles is the cycle budget applied when none is configured.
const DefaultMaxCycles = 1_000_000

// CompletionPass is the host value a passing run reports.
const CompletionPass uint32 = 1

// State is the scheduler's position in the run lifecycle.
type State int

const (
	// StateReset holds the model in reset while clocking it.
	StateReset State = iota

	// StateRunning clocks the model and watches for completion.
	StateRunning

	// StateCompleted means the model wrote a non-zero host value.
	StateCompleted

	// StateTimedOut means the cycle budget ran out first.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunResult summarizes a finished run.
type RunResult struct {
	// State is the terminal state, StateCompleted or StateTimedOut.
	State State

	// HostValue is the word the model wrote to the completion address.
	// It is meaningful only when State is StateCompleted.
	HostValue uint32

	// CyclesExecuted counts running cycles, excluding reset.
	CyclesExecuted uint64
}

// Completed reports whether the model signalled completion at all,
// regardless of the value it reported.
func (r RunResult) Completed() bool {
	return r.State == StateCompleted
}

// Passed reports whether the model completed with the passing host value.
func (r RunResult) Passed() bool {
	return r.State == StateCompleted && r.HostValue == CompletionPass
}

// FetchObserver is notified of every fetch address the model consumes, once
// per thread per running cycle.
type FetchObserver interface {
	ObserveFetch(addr uint32)
}

// Scheduler steps a core model through reset and run, servicing its memory
// ports each half edge and committing stores after each rising edge. It is
// an explicit state machine: Step advances one full clock cycle, Run loops
// until a terminal state.
type Scheduler struct {
	model   core.Model
	space   *mem.AddressSpace
	adapter *PortAdapter
	logger  *slog.Logger

	maxCycles   uint64
	resetCycles uint64
	observer    FetchObserver

	state      State
	cycle      uint64
	resetCount uint64
	hostValue  uint32

	tracePCs []uint32
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxCycles sets the running-cycle budget.
func WithMaxCycles(n uint64) Option {
	return func(s *Scheduler) {
		s.maxCycles = n
	}
}

// WithResetCycles sets how many cycles reset stays asserted.
func WithResetCycles(n uint64) Option {
	return func(s *Scheduler) {
		s.resetCycles = n
	}
}

// WithLogger routes the per-cycle trace and warnings to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLenientAccess downgrades out-of-range port accesses from errors to
// warnings: reads return zero, writes are dropped.
func WithLenientAccess() Option {
	return func(s *Scheduler) {
		s.adapter.Lenient = true
	}
}

// WithFetchObserver registers an observer for consumed fetch addresses.
func WithFetchObserver(o FetchObserver) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// NewScheduler creates a scheduler driving model against space. The
// symbols identify the completion address the model reports through.
func NewScheduler(
	model core.Model,
	space *mem.AddressSpace,
	syms loader.Symbols,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		model:       model,
		space:       space,
		adapter:     NewPortAdapter(space, syms.ToHost),
		logger:      slog.New(slog.DiscardHandler),
		maxCycles:   DefaultMaxCycles,
		resetCycles: DefaultResetCycles,
		state:       StateReset,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.adapter.Logger = s.logger

	if s.resetCycles == 0 {
		s.model.Reset(false)
		s.state = StateRunning
	} else {
		s.model.Reset(true)
	}

	return s
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	return s.state
}

// Cycle returns the number of running cycles executed so far.
func (s *Scheduler) Cycle() uint64 {
	return s.cycle
}

// Done reports whether the scheduler reached a terminal state.
func (s *Scheduler) Done() bool {
	return s.state == StateCompleted || s.state == StateTimedOut
}

// Result returns the run summary. It is meaningful once Done is true.
func (s *Scheduler) Result() RunResult {
	return RunResult{
		State:          s.state,
		HostValue:      s.hostValue,
		CyclesExecuted: s.cycle,
	}
}

// Step advances one full clock cycle. In reset it only clocks the model; in
// the running state it also commits the cycle's store and checks completion
// and the budget. Stepping a finished scheduler does nothing.
func (s *Scheduler) Step() error {
	switch s.state {
	case StateReset:
		return s.stepReset()
	case StateRunning:
		return s.stepRunning()
	default:
		return nil
	}
}

func (s *Scheduler) stepReset() error {
	if err := s.clockCycle(); err != nil {
		return fmt.Errorf("reset cycle %d: %w", s.resetCount, err)
	}

	s.resetCount++
	if s.resetCount >= s.resetCycles {
		s.model.Reset(false)
		s.state = StateRunning
		s.logger.Debug("reset released", "cycles", s.resetCount)
	}
	return nil
}

func (s *Scheduler) stepRunning() error {
	if err := s.clockCycle(); err != nil {
		return fmt.Errorf("cycle %d: %w", s.cycle, err)
	}

	ev, err := s.adapter.Commit(s.model.Ports())
	if err != nil {
		return fmt.Errorf("cycle %d: %w", s.cycle, err)
	}

	s.trace(ev)
	s.cycle++

	if ev.Completion {
		s.hostValue = ev.Value
		s.state = StateCompleted
		s.logger.Debug("completion write observed",
			"cycle", s.cycle, "value", s.hostValue)
		return nil
	}

	if s.cycle >= s.maxCycles {
		s.state = StateTimedOut
		s.logger.Debug("cycle budget exhausted", "cycles", s.cycle)
	}
	return nil
}

// clockCycle toggles the clock low then high, servicing the ports before
// each edge is evaluated. Fetch observers fire just before the rising edge,
// when the addresses the edge consumes are still exposed.
func (s *Scheduler) clockCycle() error {
	p := s.model.Ports()

	s.model.SetClock(false)
	if err := s.adapter.Drive(p); err != nil {
		return err
	}
	s.model.Eval()

	s.model.SetClock(true)
	if err := s.adapter.Drive(p); err != nil {
		return err
	}
	if s.observer != nil && s.state == StateRunning {
		for t := range p.FetchAddr {
			s.observer.ObserveFetch(p.FetchAddr[t])
		}
	}
	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.tracePCs = append(s.tracePCs[:0], p.FetchAddr...)
	}
	s.model.Eval()

	return nil
}

func (s *Scheduler) trace(ev WriteEvent) {
	if !s.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 2*len(s.tracePCs)+8)
	attrs = append(attrs, "cycle", s.cycle)
	for t, pc := range s.tracePCs {
		attrs = append(attrs,
			fmt.Sprintf("pc%d", t),
			fmt.Sprintf("0x%08x", pc))
	}
	if ev.Mask != 0 {
		attrs = append(attrs,
			"storeAddr", fmt.Sprintf("0x%08x", ev.Addr),
			"storeData", fmt.Sprintf("0x%08x", ev.Value),
			"storeMask", fmt.Sprintf("0x%x", ev.Mask))
	}
	s.logger.Debug("tick", attrs...)
}

// Run steps until the scheduler reaches a terminal state and returns the
// summary. A port access fault aborts the run with an error identifying
// the failing cycle and address.
func (s *Scheduler) Run() (RunResult, error) {
	for !s.Done() {
		if err := s.Step(); err != nil {
			return RunResult{}, err
		}
	}
	return s.Result(), nil
}
