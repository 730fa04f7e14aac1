// Package signature extracts the architectural signature region after a run
// and renders it in the compliance comparison format: one 8-digit lowercase
// hexadecimal word per line, in ascending address order.
package signature

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rvcosim/mem"
)

// ErrRange indicates signature bounds that are inverted, misaligned, or
// outside the address space.
var ErrRange = errors.New("invalid signature range")

// placeholder is written when the region holds no words. Comparison tools
// treat lines starting with '#' as comments.
const placeholder = "# No signature data found\n"

// Record is the signature read from memory. It renders itself with WriteTo;
// zero words are kept, since zero is a legitimate signature value and the
// comparison is line-by-line.
type Record struct {
	// Begin is the address of the first word.
	Begin uint32

	// Words are the region's 32-bit words in ascending address order.
	Words []uint32
}

// Extract reads the words in [begin, end) from space. An empty region is
// valid and yields a Record with no words.
func Extract(space *mem.AddressSpace, begin, end uint32) (*Record, error) {
	if begin > end {
		return nil, fmt.Errorf(
			"%w: begin 0x%08x is above end 0x%08x", ErrRange, begin, end)
	}
	if (end-begin)%4 != 0 {
		return nil, fmt.Errorf(
			"%w: span [0x%08x, 0x%08x) is not a whole number of words",
			ErrRange, begin, end)
	}
	if begin != end && (!space.Contains(begin) || !space.Contains(end-1)) {
		return nil, fmt.Errorf(
			"%w: [0x%08x, 0x%08x) is outside memory [0x%08x, 0x%08x)",
			ErrRange, begin, end,
			space.Base(), space.Base()+space.Size())
	}

	words := make([]uint32, 0, (end-begin)/4)
	for addr := begin; addr < end; addr += 4 {
		word, err := space.Read32(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRange, err)
		}
		words = append(words, word)
	}

	return &Record{Begin: begin, Words: words}, nil
}

// WriteTo renders the record, one word per line. An empty record writes a
// single comment line instead, so the artifact is never an empty file.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	if len(r.Words) == 0 {
		n, err := io.WriteString(w, placeholder)
		return int64(n), err
	}

	var total int64
	for _, word := range r.Words {
		n, err := fmt.Fprintf(w, "%08x\n", word)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile renders the record to path, replacing any existing file.
func (r *Record) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create signature file: %w", err)
	}

	if _, err := r.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write signature file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write signature file: %w", err)
	}
	return nil
}

// ScanHit is one non-zero word found by ScanNonZero.
type ScanHit struct {
	Addr  uint32
	Value uint32
}

// fillMarker is the well-known scaffolding fill word some test images
// initialize unused memory with. The scan skips it.
const fillMarker = 0xdeadbeef

// ScanNonZero sweeps the whole space word by word and reports every
// non-zero word that is not the scaffolding fill marker. It is a
// diagnostic for images whose signature region came out empty; it is not a
// substitute for Extract, which is the only authoritative signature source.
func ScanNonZero(space *mem.AddressSpace) []ScanHit {
	var hits []ScanHit
	base := space.Base()
	for off := uint32(0); off+4 <= space.Size(); off += 4 {
		word, err := space.Read32(base + off)
		if err != nil || word == 0 || word == fillMarker {
			continue
		}
		hits = append(hits, ScanHit{Addr: base + off, Value: word})
	}
	return hits
}
