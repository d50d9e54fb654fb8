package jit

import (
	"github.com/kallisti-dev/ndscore/internal/addressmap"
	"github.com/kallisti-dev/ndscore/internal/types"
)

// Core is the slice of an ARM interpreter the dispatcher needs: which CPU
// it is, where its program counter currently points in (region, offset)
// coordinates, and a way to execute exactly one instruction interpretively
// when no compiled block is available.
type Core interface {
	CPU() types.CPU
	PC() (addressmap.Region, uint32)
	StepInterpreter()
}

// Dispatcher drives a Core through the cache: resolve the PC against
// FastLookup, branch into compiled code on a hit, compile on a miss, and
// fall back to single-stepping the interpreter when compilation fails.
//
// invoke is the platform calling-convention shim that transfers control to
// a native entry point; the compiled block updates the core's PC and cycle
// counters before returning. The cache guarantees the arena is mapped
// executable whenever invoke runs — translation happens under a WriteGuard
// that is released before control ever reaches compiled code.
type Dispatcher struct {
	cache  *Cache
	comp   Compiler
	invoke func(entry uintptr)
}

// NewDispatcher wires a dispatcher over cache, compiling misses with comp
// and entering compiled code through invoke.
func NewDispatcher(cache *Cache, comp Compiler, invoke func(entry uintptr)) *Dispatcher {
	return &Dispatcher{cache: cache, comp: comp, invoke: invoke}
}

// LookUpBlock resolves a branch target to a compiled entry point with a
// single FastLookup load. A zero return means no block starts at pc.
func (d *Dispatcher) LookUpBlock(cpu types.CPU, region addressmap.Region, pc uint32) uintptr {
	local, ok := addressmap.Localise(cpu, region, pc)
	invariant(ok, "jit: dispatch into unrecognized region %d", region)
	return uintptr(d.cache.index.FastLookupSlot(region, local))
}

// Run performs one dispatch iteration for core: a fast-lookup hit branches
// straight into compiled code; a miss compiles and then branches; a
// compile failure steps a single instruction interpretively so the caller
// can retry on the next iteration.
func (d *Dispatcher) Run(core Core) {
	cpu := core.CPU()
	region, pc := core.PC()

	if entry := d.LookUpBlock(cpu, region, pc); entry != 0 {
		d.invoke(entry)
		return
	}

	local, _ := addressmap.Localise(cpu, region, pc)
	if _, err := d.cache.CompileBlock(cpu, region, local, d.comp); err != nil {
		core.StepInterpreter()
		return
	}

	if entry := d.LookUpBlock(cpu, region, pc); entry != 0 {
		d.invoke(entry)
	}
}

// SetExecutableRegion hands the dispatcher everything it needs to resolve
// branches within one region without repeating the region lookup per
// branch: the region's FastLookup table and the [start, start+size) byte
// range the table covers. blockAddr only selects the region's table; any
// address within the region yields the same triple.
func (c *Cache) SetExecutableRegion(cpu types.CPU, region addressmap.Region, blockAddr uint32) (table []uint64, start, size uint32) {
	sz, ok := addressmap.Size(region)
	invariant(ok, "jit: executable region %d is not a recognized code-bearing region", region)
	_, _ = addressmap.Localise(cpu, region, blockAddr)
	return c.index.FastLookupTable(region), 0, sz
}

// CheckAndInvalidateITCM retires every cached block in ITCM. The ARM9 can
// remap or resize ITCM at runtime; once the mapping changes, every block
// compiled from the old contents is stale regardless of which bytes moved.
func (c *Cache) CheckAndInvalidateITCM() {
	c.invalidateRegion(addressmap.ITCM)
}

// CheckAndInvalidateWVRAM retires every cached block in the given VRAM
// window (bank 0 selects the ARM9-visible window, bank 1 the ARM7 one).
// VRAM banks are remapped wholesale by MMIO writes, so invalidation here is
// all-or-nothing just like ITCM's.
func (c *Cache) CheckAndInvalidateWVRAM(bank int) {
	if bank == 0 {
		c.invalidateRegion(addressmap.VRAM)
	} else {
		c.invalidateRegion(addressmap.ARM7VRAM)
	}
}

// invalidateRegion retires every live block with any range in region, then
// zeroes the region's tables in one pass.
func (c *Cache) invalidateRegion(region addressmap.Region) {
	for _, cpu := range []types.CPU{types.ARM9, types.ARM7} {
		for fp, idx := range c.byFP[cpu] {
			b := c.blocks[idx]
			if b == nil || b.Retired {
				continue
			}
			touches := false
			for _, r := range b.Ranges {
				if r.Region == region {
					touches = true
					break
				}
			}
			if !touches {
				continue
			}
			c.retire(cpu, fp, b)
			// A block can span out of the invalidated region; its state
			// there is not covered by the wholesale Reset below.
			for _, r := range b.Ranges {
				if r.Region != region {
					c.index.ClearRange(r.Region, r.Start, r.End)
				}
			}
		}
	}
	c.index.Reset(region)
}
