// Package core defines the port-level contract between the harness and a
// processor core model, plus a scripted replay model for driving the
// protocol without RTL.
package core

// DefaultThreads is the hardware thread count of the reference core.
const DefaultThreads = 4

// DefaultResetPC is the fetch address every thread exposes while in reset.
const DefaultResetPC uint32 = 0x80000000

// Ports is the per-half-cycle port snapshot of a core model. The harness
// writes the input fields (Instr, ReadData) and reads the output fields
// (FetchAddr, DataAddr, WriteData, ByteMask) around every clock edge.
//
// Per-thread ports are indexed slices rather than one field per thread, so
// the hardware thread count is a construction parameter.
type Ports struct {
	// FetchAddr is the instruction fetch address output of each thread.
	FetchAddr []uint32

	// Instr is the instruction word input of each thread.
	Instr []uint32

	// DataAddr is the shared data memory address output.
	DataAddr uint32

	// WriteData is the shared data memory write-data output.
	WriteData uint32

	// ReadData is the shared data memory read-data input.
	ReadData uint32

	// ByteMask is the shared write byte-mask output; only the low four
	// bits are used. A non-zero mask requests a masked word store.
	ByteMask uint8
}

// NewPorts creates a port set for the given hardware thread count.
func NewPorts(threads int) *Ports {
	return &Ports{
		FetchAddr: make([]uint32, threads),
		Instr:     make([]uint32, threads),
	}
}

// Threads returns the hardware thread count.
func (p *Ports) Threads() int {
	return len(p.FetchAddr)
}

// Model is the clocked boundary of a processor core model. The harness owns
// the clock and reset inputs and services the memory ports; the model owns
// everything behind them. Internal state advances only on a rising clock
// edge observed by Eval.
//
// Implementations must expose in-range fetch and data addresses while in
// reset, the way hardware reset vectors do, so that the harness can service
// the ports from the first half-cycle on.
type Model interface {
	// Reset drives the reset input level.
	Reset(active bool)

	// SetClock drives the clock input level.
	SetClock(high bool)

	// Eval settles the model against the current input levels. A call
	// that observes a rising clock edge advances internal state.
	Eval()

	// Ports returns the live port view. The harness mutates the input
	// fields in place between Eval calls.
	Ports() *Ports
}
