// Package elfbuild constructs minimal statically-linked RISC-V ELF32 images.
// It exists for the test suites and the sample generator, which need small
// deterministic images carrying the host-protocol symbols without invoking a
// cross toolchain.
package elfbuild

import (
	"encoding/binary"
	"os"
)

// ELF constants used by the builder. Only the values the harness cares about
// are listed; everything else is written as zero.
const (
	ClassELF32    = 1
	ClassELF64    = 2
	DataLittle    = 1
	DataBig       = 2
	MachineRISCV  = 243
	MachineX86_64 = 62
)

const (
	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40
	symSize  = 16

	ptLoad       = 1
	shtSymtab    = 2
	shtStrtab    = 3
	shnAbs       = 0xfff1
	symInfoGlobl = 0x11 // STB_GLOBAL, STT_OBJECT
)

// Segment flag bits (ELF p_flags).
const (
	FlagExec  = 0x1
	FlagWrite = 0x2
	FlagRead  = 0x4
)

// Symbol is one symbol-table entry, typically a host-protocol marker such as
// tohost or begin_signature.
type Symbol struct {
	Name  string
	Value uint32
}

// Segment describes one PT_LOAD program header. A MemSize of zero means the
// in-memory size equals len(Data); a larger MemSize leaves a trailing
// zero-filled (BSS) tail for the loader to clear.
type Segment struct {
	Addr    uint32
	Data    []byte
	MemSize uint32
	Flags   uint32
}

// Config selects the image contents. The zero value of each override field
// picks the default: ELFCLASS32, little-endian, EM_RISCV. Overrides exist so
// loader rejection paths can be exercised.
type Config struct {
	Entry    uint32
	Segments []Segment
	Symbols  []Symbol

	Class    uint8
	Endian   uint8
	Machine  uint16
	NoSymtab bool
}

// Build assembles the image into a byte slice.
func Build(cfg Config) []byte {
	class := cfg.Class
	if class == 0 {
		class = ClassELF32
	}
	endian := cfg.Endian
	if endian == 0 {
		endian = DataLittle
	}
	machine := cfg.Machine
	if machine == 0 {
		machine = MachineRISCV
	}

	var bo binary.ByteOrder = binary.LittleEndian
	if endian == DataBig {
		bo = binary.BigEndian
	}

	// File layout: ehdr, phdrs, segment blobs, symtab, strtab, shstrtab,
	// shdrs. Offsets are computed up front so headers can point forward.
	phnum := len(cfg.Segments)
	segOffsets := make([]uint32, phnum)
	cursor := uint32(ehdrSize + phdrSize*phnum)
	for i, seg := range cfg.Segments {
		segOffsets[i] = cursor
		cursor += uint32(len(seg.Data))
	}

	symtab, strtab := buildSymtab(cfg.Symbols, bo)
	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")

	symtabOff := cursor
	strtabOff := symtabOff + uint32(len(symtab))
	shstrtabOff := strtabOff + uint32(len(strtab))
	shoff := shstrtabOff + uint32(len(shstrtab))

	shnum := 4
	if cfg.NoSymtab {
		shnum = 0
		shoff = 0
	}

	// ELF header
	ehdr := make([]byte, ehdrSize)
	copy(ehdr[0:4], []byte{0x7f, 'E', 'L', 'F'})
	ehdr[4] = class
	ehdr[5] = endian
	ehdr[6] = 1 // EV_CURRENT
	bo.PutUint16(ehdr[16:18], 2) // ET_EXEC
	bo.PutUint16(ehdr[18:20], machine)
	bo.PutUint32(ehdr[20:24], 1)
	bo.PutUint32(ehdr[24:28], cfg.Entry)
	if phnum > 0 {
		bo.PutUint32(ehdr[28:32], ehdrSize)
	}
	bo.PutUint32(ehdr[32:36], shoff)
	bo.PutUint16(ehdr[40:42], ehdrSize)
	bo.PutUint16(ehdr[42:44], phdrSize)
	bo.PutUint16(ehdr[44:46], uint16(phnum))
	bo.PutUint16(ehdr[46:48], shdrSize)
	bo.PutUint16(ehdr[48:50], uint16(shnum))
	if shnum > 0 {
		bo.PutUint16(ehdr[50:52], 3) // .shstrtab index
	}

	out := make([]byte, 0, shoff+uint32(shnum*shdrSize))
	out = append(out, ehdr...)

	// Program headers
	for i, seg := range cfg.Segments {
		memsz := seg.MemSize
		if memsz == 0 {
			memsz = uint32(len(seg.Data))
		}
		flags := seg.Flags
		if flags == 0 {
			flags = FlagRead | FlagExec
		}

		phdr := make([]byte, phdrSize)
		bo.PutUint32(phdr[0:4], ptLoad)
		bo.PutUint32(phdr[4:8], segOffsets[i])
		bo.PutUint32(phdr[8:12], seg.Addr)
		bo.PutUint32(phdr[12:16], seg.Addr)
		bo.PutUint32(phdr[16:20], uint32(len(seg.Data)))
		bo.PutUint32(phdr[20:24], memsz)
		bo.PutUint32(phdr[24:28], flags)
		bo.PutUint32(phdr[28:32], 4)
		out = append(out, phdr...)
	}

	for _, seg := range cfg.Segments {
		out = append(out, seg.Data...)
	}

	if cfg.NoSymtab {
		return out
	}

	out = append(out, symtab...)
	out = append(out, strtab...)
	out = append(out, shstrtab...)

	// Section headers: NULL, .symtab, .strtab, .shstrtab
	out = append(out, make([]byte, shdrSize)...)

	shdr := make([]byte, shdrSize)
	bo.PutUint32(shdr[0:4], 1) // name ".symtab"
	bo.PutUint32(shdr[4:8], shtSymtab)
	bo.PutUint32(shdr[16:20], symtabOff)
	bo.PutUint32(shdr[20:24], uint32(len(symtab)))
	bo.PutUint32(shdr[24:28], 2) // linked string table
	bo.PutUint32(shdr[28:32], 1) // first global symbol
	bo.PutUint32(shdr[32:36], 4)
	bo.PutUint32(shdr[36:40], symSize)
	out = append(out, shdr...)

	shdr = make([]byte, shdrSize)
	bo.PutUint32(shdr[0:4], 9) // name ".strtab"
	bo.PutUint32(shdr[4:8], shtStrtab)
	bo.PutUint32(shdr[16:20], strtabOff)
	bo.PutUint32(shdr[20:24], uint32(len(strtab)))
	bo.PutUint32(shdr[32:36], 1)
	out = append(out, shdr...)

	shdr = make([]byte, shdrSize)
	bo.PutUint32(shdr[0:4], 17) // name ".shstrtab"
	bo.PutUint32(shdr[4:8], shtStrtab)
	bo.PutUint32(shdr[16:20], shstrtabOff)
	bo.PutUint32(shdr[20:24], uint32(len(shstrtab)))
	bo.PutUint32(shdr[32:36], 1)
	out = append(out, shdr...)

	return out
}

// buildSymtab produces the symbol table and its string table. Entry 0 of the
// symbol table is the mandatory null symbol.
func buildSymtab(symbols []Symbol, bo binary.ByteOrder) (symtab, strtab []byte) {
	strtab = []byte{0}
	symtab = make([]byte, symSize) // null symbol

	for _, sym := range symbols {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, sym.Name...)
		strtab = append(strtab, 0)

		entry := make([]byte, symSize)
		bo.PutUint32(entry[0:4], nameOff)
		bo.PutUint32(entry[4:8], sym.Value)
		entry[12] = symInfoGlobl
		bo.PutUint16(entry[14:16], shnAbs)
		symtab = append(symtab, entry...)
	}
	return symtab, strtab
}

// WriteFile builds the image and writes it to path.
func WriteFile(path string, cfg Config) error {
	return os.WriteFile(path, Build(cfg), 0644)
}

// LEWords packs words into little-endian bytes, handy for preparing segment
// payloads such as preinitialized signature regions.
func LEWords(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
