// Package mem provides the simulated byte-addressable memory for core runs.
package mem

import "fmt"

const (
	// DefaultBase is the load base used by the RISC-V test images.
	DefaultBase uint32 = 0x80000000

	// DefaultSize is the default region size (16 MiB), generous enough to
	// cover all compliance test images with margin.
	DefaultSize uint32 = 16 * 1024 * 1024
)

// AccessError reports an access that touches bytes outside the address space.
type AccessError struct {
	// Op is the operation that failed ("read8", "write32", ...).
	Op string

	// Addr is the first address of the access.
	Addr uint32

	// Len is the number of bytes the access covers.
	Len int

	// Base and Size describe the valid region [Base, Base+Size).
	Base uint32
	Size uint32
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s of %d byte(s) at 0x%08x outside memory [0x%08x, 0x%08x)",
		e.Op, e.Len, e.Addr, e.Base, uint64(e.Base)+uint64(e.Size))
}

// AddressSpace is a flat simulated memory region. All accesses are bounds
// checked; out-of-range accesses return *AccessError rather than a sentinel
// value. Words are composed little-endian from the underlying bytes, and
// unaligned word accesses are permitted.
//
// An AddressSpace is exclusively owned by one scheduler for a run's duration;
// it is not safe for concurrent use.
type AddressSpace struct {
	base uint32
	data []byte
}

// NewAddressSpace creates a zero-filled address space covering
// [base, base+size). Size is fixed for the lifetime of the space.
func NewAddressSpace(base, size uint32) *AddressSpace {
	return &AddressSpace{
		base: base,
		data: make([]byte, size),
	}
}

// Base returns the first valid address.
func (s *AddressSpace) Base() uint32 {
	return s.base
}

// Size returns the region size in bytes.
func (s *AddressSpace) Size() uint32 {
	return uint32(len(s.data))
}

// Contains reports whether addr lies inside the region.
func (s *AddressSpace) Contains(addr uint32) bool {
	return addr >= s.base && uint64(addr) < uint64(s.base)+uint64(len(s.data))
}

// offset translates addr to an index into the backing array, verifying that
// all n bytes starting at addr are in range.
func (s *AddressSpace) offset(op string, addr uint32, n int) (int, error) {
	if addr >= s.base {
		off := uint64(addr) - uint64(s.base)
		if off+uint64(n) <= uint64(len(s.data)) {
			return int(off), nil
		}
	}
	return 0, &AccessError{Op: op, Addr: addr, Len: n, Base: s.base, Size: uint32(len(s.data))}
}

// Read8 reads one byte.
func (s *AddressSpace) Read8(addr uint32) (uint8, error) {
	off, err := s.offset("read8", addr, 1)
	if err != nil {
		return 0, err
	}
	return s.data[off], nil
}

// Read16 reads a little-endian halfword. Unaligned addresses are permitted.
func (s *AddressSpace) Read16(addr uint32) (uint16, error) {
	off, err := s.offset("read16", addr, 2)
	if err != nil {
		return 0, err
	}
	return uint16(s.data[off]) | uint16(s.data[off+1])<<8, nil
}

// Read32 reads a little-endian word. Unaligned addresses are permitted.
func (s *AddressSpace) Read32(addr uint32) (uint32, error) {
	off, err := s.offset("read32", addr, 4)
	if err != nil {
		return 0, err
	}
	return uint32(s.data[off]) |
		uint32(s.data[off+1])<<8 |
		uint32(s.data[off+2])<<16 |
		uint32(s.data[off+3])<<24, nil
}

// Write8 stores one byte.
func (s *AddressSpace) Write8(addr uint32, value uint8) error {
	off, err := s.offset("write8", addr, 1)
	if err != nil {
		return err
	}
	s.data[off] = value
	return nil
}

// WriteMasked32 stores the bytes of a little-endian word selected by the low
// four mask bits: for each set bit i, byte i of value is stored at addr+i.
// Unselected bytes are left untouched and are not bounds checked, so partial
// stores (SB, SH) at a region edge succeed as long as the selected bytes are
// in range. A zero mask is a no-op.
func (s *AddressSpace) WriteMasked32(addr uint32, value uint32, mask uint8) error {
	for i := 0; i < 4; i++ {
		if mask>>i&0x1 == 0 {
			continue
		}
		if err := s.Write8(addr+uint32(i), uint8(value>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// WriteBytes copies p into the space starting at addr. The whole destination
// range is verified before any byte is written.
func (s *AddressSpace) WriteBytes(addr uint32, p []byte) error {
	off, err := s.offset("write", addr, len(p))
	if err != nil {
		return err
	}
	copy(s.data[off:], p)
	return nil
}
