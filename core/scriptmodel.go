package core

// ScriptModel replays a Script through the Model contract. It has no
// instruction semantics: its outputs come from the schedule, and the
// instruction words the harness supplies are latched and optionally
// recorded, never decoded.
type ScriptModel struct {
	script  *Script
	ports   *Ports
	resetPC uint32

	reset     bool
	clock     bool
	prevClock bool

	// cycle is the index of the next running cycle to apply; started
	// distinguishes the first running posedge so the fetch stride only
	// advances between cycles.
	cycle    uint64
	started  bool
	nextStep int

	record bool
	served [][]uint32
}

// NewScriptModel creates a replay model in reset state.
func NewScriptModel(script *Script) *ScriptModel {
	threads := script.Threads
	if threads == 0 {
		threads = DefaultThreads
	}
	resetPC := script.ResetPC
	if resetPC == 0 {
		resetPC = DefaultResetPC
	}

	m := &ScriptModel{
		script:  script,
		ports:   NewPorts(threads),
		resetPC: resetPC,
	}
	m.applyResetState()
	return m
}

// RecordServed enables per-cycle recording of the instruction words latched
// at each rising edge. Off by default; full-length compliance runs would
// otherwise accumulate gigabytes.
func (m *ScriptModel) RecordServed(on bool) {
	m.record = on
}

// ServedInstructions returns one latched instruction-word slice per running
// cycle, indexed by thread. Valid only after RecordServed(true).
func (m *ScriptModel) ServedInstructions() [][]uint32 {
	return m.served
}

// Cycle returns the number of running cycles the model has advanced.
func (m *ScriptModel) Cycle() uint64 {
	return m.cycle
}

// Reset drives the reset input. Asserting reset rewinds the schedule and
// restores the reset port state immediately, the way a level reset settles
// combinational outputs.
func (m *ScriptModel) Reset(active bool) {
	m.reset = active
	if active {
		m.cycle = 0
		m.nextStep = 0
		m.started = false
		m.served = nil
		m.applyResetState()
	}
}

// SetClock drives the clock input level.
func (m *ScriptModel) SetClock(high bool) {
	m.clock = high
}

// Ports returns the live port view.
func (m *ScriptModel) Ports() *Ports {
	return m.ports
}

// Eval settles the model. A rising clock edge advances the schedule by one
// cycle; all other calls leave the outputs unchanged.
func (m *ScriptModel) Eval() {
	rising := m.clock && !m.prevClock
	m.prevClock = m.clock
	if !rising {
		return
	}
	if m.reset {
		m.applyResetState()
		return
	}
	m.advance()
}

func (m *ScriptModel) applyResetState() {
	for t := range m.ports.FetchAddr {
		m.ports.FetchAddr[t] = m.resetPC
	}
	m.ports.DataAddr = m.resetPC
	m.ports.WriteData = 0
	m.ports.ByteMask = 0
}

// advance applies the schedule for the cycle being entered at this edge.
func (m *ScriptModel) advance() {
	if m.started && m.script.FetchStride != 0 {
		for t := range m.ports.FetchAddr {
			m.ports.FetchAddr[t] += m.script.FetchStride
		}
	}
	m.started = true

	// Write pulses last exactly one cycle.
	m.ports.ByteMask = 0

	for m.nextStep < len(m.script.Steps) && m.script.Steps[m.nextStep].Cycle <= m.cycle {
		step := m.script.Steps[m.nextStep]
		m.nextStep++

		copy(m.ports.FetchAddr, step.Fetch)
		if step.DataAddr != nil {
			m.ports.DataAddr = *step.DataAddr
		}
		if step.Store != nil && step.Cycle == m.cycle {
			m.ports.WriteData = step.Store.Data
			m.ports.DataAddr = step.Store.Addr
			m.ports.ByteMask = step.Store.Mask
		}
	}

	if m.record {
		latched := make([]uint32, len(m.ports.Instr))
		copy(latched, m.ports.Instr)
		m.served = append(m.served, latched)
	}

	m.cycle++
}
