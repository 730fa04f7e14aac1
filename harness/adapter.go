// Package harness drives a core model against simulated memory: it services
// the model's instruction and data ports every half clock edge, commits
// masked stores, detects host-protocol completion, and enforces the cycle
// budget.
package harness

import (
	"log/slog"

	"github.com/sarchlab/rvcosim/core"
	"github.com/sarchlab/rvcosim/mem"
)

// WriteEvent describes the store committed after a rising edge. A zero Mask
// means no store happened that cycle.
type WriteEvent struct {
	// Addr is the word address of the store.
	Addr uint32

	// Value is the raw write-data word.
	Value uint32

	// Mask is the byte mask (low four bits).
	Mask uint8

	// Completion is true when the store targeted the completion address
	// with a non-zero value.
	Completion bool
}

// PortAdapter translates a model's port values into address-space accesses.
// It is a pure function of the current memory state, invoked once per half
// edge: Drive before the edge is latched, Commit after the rising edge.
//
// By default an out-of-range port access is an error, since it indicates a
// broken image or a protocol violation in the model. The Lenient mode
// substitutes zero for reads, drops writes, and logs a warning per event.
type PortAdapter struct {
	// Lenient substitutes zero for out-of-range reads and drops
	// out-of-range writes instead of failing.
	Lenient bool

	// Logger receives lenient-mode warnings. Nil discards them.
	Logger *slog.Logger

	space          *mem.AddressSpace
	completionAddr uint32
}

// NewPortAdapter creates an adapter over the space. Stores to
// completionAddr with a non-zero value are flagged as completion events.
func NewPortAdapter(space *mem.AddressSpace, completionAddr uint32) *PortAdapter {
	return &PortAdapter{
		space:          space,
		completionAddr: completionAddr,
	}
}

func (a *PortAdapter) log() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Drive services the model's read ports from memory: every thread's
// instruction input is read at its fetch address, and the shared data-read
// input is read at the data address. The data read happens speculatively
// every cycle whether or not the model intends a load; it has no observable
// side effects.
func (a *PortAdapter) Drive(p *core.Ports) error {
	for t := range p.FetchAddr {
		word, err := a.read32("fetch", p.FetchAddr[t])
		if err != nil {
			return err
		}
		p.Instr[t] = word
	}

	word, err := a.read32("data", p.DataAddr)
	if err != nil {
		return err
	}
	p.ReadData = word
	return nil
}

func (a *PortAdapter) read32(port string, addr uint32) (uint32, error) {
	word, err := a.space.Read32(addr)
	if err == nil {
		return word, nil
	}
	if !a.Lenient {
		return 0, err
	}
	a.log().Warn("out-of-range read, substituting zero",
		"port", port, "addr", addr)
	return 0, nil
}

// Commit performs the masked store the model exposes after a rising edge. A
// zero byte mask is a quiet cycle. The returned event reports what was
// written and whether it was the completion signal.
func (a *PortAdapter) Commit(p *core.Ports) (WriteEvent, error) {
	mask := p.ByteMask & 0xF
	if mask == 0 {
		return WriteEvent{}, nil
	}

	ev := WriteEvent{
		Addr:  p.DataAddr,
		Value: p.WriteData,
		Mask:  mask,
	}

	if err := a.space.WriteMasked32(ev.Addr, ev.Value, ev.Mask); err != nil {
		if !a.Lenient {
			return WriteEvent{}, err
		}
		a.log().Warn("out-of-range write dropped",
			"addr", ev.Addr, "value", ev.Value, "mask", ev.Mask)
		return WriteEvent{}, nil
	}

	ev.Completion = ev.Addr == a.completionAddr && ev.Value != 0
	return ev, nil
}
