// Package cachesim models an instruction-cache tag directory over a run's
// fetch stream. It tracks hits, misses, and evictions only; instruction
// bytes always come from the simulated memory, so no data is cached here.
package cachesim

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache geometry parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
}

// DefaultConfig returns a small L1 instruction cache geometry, 16KB 4-way
// with 64B lines. Compliance images are tiny, so a modest cache already
// shows the loop-locality difference between tests.
func DefaultConfig() Config {
	return Config{
		Size:          16 * 1024,
		Associativity: 4,
		BlockSize:     64,
	}
}

// sets returns the number of sets the geometry produces.
func (c Config) sets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Validate reports whether the geometry is usable: positive fields and a
// size that divides evenly into sets.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Associativity <= 0 || c.BlockSize <= 0 {
		return errGeometry(c)
	}
	if c.Size%(c.Associativity*c.BlockSize) != 0 || c.sets() == 0 {
		return errGeometry(c)
	}
	return nil
}

func errGeometry(c Config) error {
	return fmt.Errorf(
		"invalid cache geometry: size %d, associativity %d, block size %d",
		c.Size, c.Associativity, c.BlockSize)
}

// AccessResult describes one observed fetch.
type AccessResult struct {
	// Hit indicates the block was already resident.
	Hit bool
	// Evicted is true when installing the block displaced a valid one.
	Evicted bool
	// EvictedAddr is the block-aligned address of the displaced block.
	EvictedAddr uint32
}

// Statistics accumulates access counts over a run.
type Statistics struct {
	Accesses  uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns the fraction of accesses that hit, or zero before any
// access.
func (s Statistics) HitRate() float64 {
	if s.Accesses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Accesses)
}

// Observer is an LRU tag directory fed with fetch addresses. The geometry
// must satisfy Config.Validate.
type Observer struct {
	config    Config
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// NewObserver creates an observer with the given geometry.
func NewObserver(config Config) *Observer {
	return &Observer{
		config: config,
		directory: akitacache.NewDirectory(
			config.sets(),
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the observer's geometry.
func (o *Observer) Config() Config {
	return o.config
}

// Stats returns the accumulated statistics.
func (o *Observer) Stats() Statistics {
	return o.stats
}

// Reset invalidates all lines and clears the statistics.
func (o *Observer) Reset() {
	o.directory.Reset()
	o.stats = Statistics{}
}

// Observe records one fetch. A miss installs the block, evicting the set's
// least recently used block when the set is full.
func (o *Observer) Observe(addr uint32) AccessResult {
	o.stats.Accesses++

	blockSize := uint64(o.config.BlockSize)
	blockAddr := uint64(addr) / blockSize * blockSize

	block := o.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		o.stats.Hits++
		o.directory.Visit(block)
		return AccessResult{Hit: true}
	}

	o.stats.Misses++

	victim := o.directory.FindVictim(blockAddr)
	if victim == nil {
		return AccessResult{}
	}

	result := AccessResult{}
	if victim.IsValid {
		o.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)
	}

	// Tag stores the block-aligned address directly.
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	o.directory.Visit(victim)

	return result
}

// ObserveFetch feeds one fetch address with no result, satisfying the
// scheduler's observer contract.
func (o *Observer) ObserveFetch(addr uint32) {
	o.Observe(addr)
}
