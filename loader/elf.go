// Package loader provides ELF binary loading for RV32 test images.
package loader

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/rvcosim/mem"
)

// Error categories reported by the loader. Callers classify with errors.Is.
var (
	// ErrBadFormat indicates the image is not a little-endian 32-bit
	// RISC-V ELF executable.
	ErrBadFormat = errors.New("bad image format")

	// ErrMissingSymbol indicates a required host-protocol symbol is absent.
	ErrMissingSymbol = errors.New("missing required symbol")

	// ErrSegmentRange indicates a loadable segment falls outside the
	// simulated address space.
	ErrSegmentRange = errors.New("segment outside address space")
)

// SegmentFlags represents memory protection flags for a segment.
type SegmentFlags uint32

const (
	// SegmentFlagExecute indicates the segment is executable.
	SegmentFlagExecute SegmentFlags = 1 << iota
	// SegmentFlagWrite indicates the segment is writable.
	SegmentFlagWrite
	// SegmentFlagRead indicates the segment is readable.
	SegmentFlagRead
)

// Symbol names of the RISC-V host protocol.
const (
	SymToHost         = "tohost"
	SymFromHost       = "fromhost"
	SymBeginSignature = "begin_signature"
	SymEndSignature   = "end_signature"
)

// Segment represents a loadable segment from an ELF binary.
type Segment struct {
	// VirtAddr is the virtual address where this segment should be loaded.
	VirtAddr uint32
	// Data contains the segment contents from the file.
	Data []byte
	// MemSize is the size in memory (may be larger than len(Data) for BSS).
	MemSize uint32
	// Flags contains the segment protection flags.
	Flags SegmentFlags
}

// Symbols holds the resolved host-protocol addresses. ToHost,
// BeginSignature, and EndSignature are always present in a loaded Program;
// FromHost is zero when the image does not define it.
type Symbols struct {
	// ToHost is the completion-signal word address.
	ToHost uint32
	// FromHost is the host-to-target mailbox address (optional).
	FromHost uint32
	// BeginSignature is the first address of the signature region.
	BeginSignature uint32
	// EndSignature is one past the last address of the signature region.
	EndSignature uint32
}

// Program represents a loaded ELF test image ready for simulation.
type Program struct {
	// EntryPoint is the virtual address where execution should begin.
	EntryPoint uint32
	// Segments contains all loadable segments from the ELF file.
	Segments []Segment
	// Symbols contains the resolved host-protocol addresses.
	Symbols Symbols
}

// Load parses an RV32 ELF test image and resolves the host-protocol symbols.
// Segment virtual addresses are used as simulated-memory addresses directly;
// images are statically linked and position-fixed, so no relocation happens.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: not a 32-bit ELF file (class %v)", ErrBadFormat, f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: not a little-endian ELF file (data %v)", ErrBadFormat, f.Data)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: not a RISC-V ELF file (machine type: %v)", ErrBadFormat, f.Machine)
	}

	prog := &Program{
		EntryPoint: uint32(f.Entry),
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		var flags SegmentFlags
		if phdr.Flags&elf.PF_X != 0 {
			flags |= SegmentFlagExecute
		}
		if phdr.Flags&elf.PF_W != 0 {
			flags |= SegmentFlagWrite
		}
		if phdr.Flags&elf.PF_R != 0 {
			flags |= SegmentFlagRead
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Flags:    flags,
		})
	}

	prog.Symbols, err = resolveSymbols(f)
	if err != nil {
		return nil, err
	}

	return prog, nil
}

// resolveSymbols scans the symbol table for the host-protocol markers. The
// completion and signature-boundary symbols are mandatory; a test image
// without them cannot signal completion or be checked.
func resolveSymbols(f *elf.File) (Symbols, error) {
	var syms Symbols

	table, err := f.Symbols()
	if err != nil {
		return syms, fmt.Errorf("%w: no symbol table (%v)", ErrMissingSymbol, err)
	}

	found := map[string]bool{}
	for _, sym := range table {
		switch sym.Name {
		case SymToHost:
			syms.ToHost = uint32(sym.Value)
		case SymFromHost:
			syms.FromHost = uint32(sym.Value)
		case SymBeginSignature:
			syms.BeginSignature = uint32(sym.Value)
		case SymEndSignature:
			syms.EndSignature = uint32(sym.Value)
		default:
			continue
		}
		found[sym.Name] = true
	}

	for _, required := range []string{SymToHost, SymBeginSignature, SymEndSignature} {
		if !found[required] {
			return syms, fmt.Errorf("%w: %s", ErrMissingSymbol, required)
		}
	}

	return syms, nil
}

// LoadInto copies every segment into the address space at its virtual
// address and zero-fills the BSS tail [Filesz, Memsz). Bytes outside any
// segment keep their initial value of zero.
func (p *Program) LoadInto(space *mem.AddressSpace) error {
	for _, seg := range p.Segments {
		memSize := seg.MemSize
		if memSize < uint32(len(seg.Data)) {
			memSize = uint32(len(seg.Data))
		}
		if memSize == 0 {
			continue
		}

		end := uint64(seg.VirtAddr) + uint64(memSize)
		if !space.Contains(seg.VirtAddr) || end > uint64(space.Base())+uint64(space.Size()) {
			return fmt.Errorf("%w: [0x%08x, 0x%08x) not in [0x%08x, 0x%08x)",
				ErrSegmentRange, seg.VirtAddr, end,
				space.Base(), uint64(space.Base())+uint64(space.Size()))
		}

		if err := space.WriteBytes(seg.VirtAddr, seg.Data); err != nil {
			return fmt.Errorf("loading segment at 0x%08x: %w", seg.VirtAddr, err)
		}
		if tail := memSize - uint32(len(seg.Data)); tail > 0 {
			if err := space.WriteBytes(seg.VirtAddr+uint32(len(seg.Data)), make([]byte, tail)); err != nil {
				return fmt.Errorf("zero-filling segment at 0x%08x: %w", seg.VirtAddr, err)
			}
		}
	}
	return nil
}
