package jit

import (
	"fmt"

	"github.com/kallisti-dev/ndscore/internal/addressmap"
	"github.com/kallisti-dev/ndscore/internal/types"
)

// restoreCap bounds the restore-candidates table: blocks retired by
// invalidation are kept around for a little while in case the same code is
// about to be recompiled unchanged (self-modifying code that restores its
// original bytes is common in compressed-boot loaders), but the table must
// not grow without bound.
const restoreCap = 256

// Cache is the JIT code cache. It owns the block arena, the two
// per-CPU fingerprint indexes, the page/sub-line dirty tables, and the
// write<->execute toggle for its backing executable memory.
type Cache struct {
	cfg Config

	blocks []*Block               // stable-index arena; a slot is nil'd when its block is superseded or restored, never reused
	byFP   [2]map[Fingerprint]int // indexed by types.CPU (ARM9=0, ARM7=1)

	index *RegionIndex

	restoreOrder []Fingerprint
	restore      map[Fingerprint]*Block

	mem *executableMemory
}

// New builds an empty Cache with the given options applied over the
// default Config.
func New(opts ...Opt) *Cache {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Cache{
		cfg:     cfg,
		index:   NewRegionIndex(),
		restore: make(map[Fingerprint]*Block),
		mem:     newExecutableMemory(),
	}
	c.byFP[types.ARM9] = make(map[Fingerprint]int)
	c.byFP[types.ARM7] = make(map[Fingerprint]int)
	return c
}

// Lookup returns the compiled block for (cpu, region, localOffset), if one
// is cached and not retired.
func (c *Cache) Lookup(cpu types.CPU, region addressmap.Region, localOffset uint32) (*Block, bool) {
	fp := NewFingerprint(cpu, region, localOffset)
	idx, ok := c.byFP[cpu][fp]
	if !ok {
		return nil, false
	}
	b := c.blocks[idx]
	if b == nil || b.Retired {
		return nil, false
	}
	return b, true
}

// CompileBlock translates and installs a new block at (cpu, region,
// localOffset) using comp, replacing any block already occupying that
// fingerprint. A restore-candidate with an identical fingerprint is
// consumed rather than recompiled — the common self-modifying-code case of
// writing original bytes back.
func (c *Cache) CompileBlock(cpu types.CPU, region addressmap.Region, localOffset uint32, comp Compiler) (*Block, error) {
	fp := NewFingerprint(cpu, region, localOffset)

	if restored, ok := c.restore[fp]; ok {
		delete(c.restore, fp)
		c.removeFromRestoreOrder(fp)
		// install gives the block a fresh arena slot; drop the one it held
		// while retired so it is not counted twice.
		for i, old := range c.blocks {
			if old == restored {
				c.blocks[i] = nil
			}
		}
		restored.Retired = false
		c.install(restored)
		return restored, nil
	}

	// Translation mutates the compiled-code arena, so it runs under the
	// write guard; the guard is released before this function returns,
	// keeping the arena executable whenever a dispatch could branch into
	// it.
	guard, err := c.mem.BeginWrite(comp.Arena())
	if err != nil {
		return nil, fmt.Errorf("jit: enable write: %w", err)
	}
	t, terr := comp.Translate(cpu, region, localOffset, &c.cfg)
	if err := guard.Release(); err != nil {
		return nil, fmt.Errorf("jit: enable execute: %w", err)
	}
	if terr != nil {
		return nil, fmt.Errorf("jit: compile (cpu=%v region=%v offset=%#x): %w", cpu, region, localOffset, terr)
	}
	c.truncate(t)

	b := &Block{
		CPU:         cpu,
		Region:      region,
		LocalOffset: localOffset,
		Ranges:      t.Ranges,
		Entry:       t.Entry,
	}
	c.install(b)
	return b, nil
}

// truncate enforces the configured block-size bound on a returned
// translation: a block longer than MaxBlockSize instructions keeps only
// its first MaxBlockSize instructions' worth of coverage. The byte length
// of one instruction is inferred from the translation itself, since the
// cache never decodes guest code.
func (c *Cache) truncate(t *Translation) {
	max := c.cfg.MaxBlockSize
	if max <= 0 || t.Instructions <= max {
		return
	}

	var total uint32
	for _, r := range t.Ranges {
		total += r.End - r.Start
	}
	instrBytes := total / uint32(t.Instructions)
	if instrBytes == 0 {
		instrBytes = 1
	}

	keep := instrBytes * uint32(max)
	for i := range t.Ranges {
		n := t.Ranges[i].End - t.Ranges[i].Start
		if n >= keep {
			t.Ranges[i].End = t.Ranges[i].Start + keep
			t.Ranges = t.Ranges[:i+1]
			break
		}
		keep -= n
	}
	t.Instructions = max
}

func (c *Cache) install(b *Block) {
	fp := b.Fingerprint()
	// A live block may already occupy this fingerprint (CompileBlock
	// recompiling the same site without an intervening invalidation).
	// Drop it outright rather than leaving an orphaned arena slot that
	// Stats would keep counting as live forever.
	if oldIdx, exists := c.byFP[b.CPU][fp]; exists {
		c.blocks[oldIdx] = nil
	}

	idx := len(c.blocks)
	c.blocks = append(c.blocks, b)
	c.byFP[b.CPU][fp] = idx

	for _, r := range b.Ranges {
		n := r.End - r.Start
		c.index.Mark(r.Region, r.Start, n, uint64(b.Entry))
	}
}

// InvalidateByAddress is the fine-grained, store-side invalidation: on a
// guest write to (region, addr), retire every block overlapping that byte
// and clear the corresponding FastLookup/PageMap state. Retired blocks
// move into the restore-candidates table rather than being discarded
// outright.
func (c *Cache) InvalidateByAddress(region addressmap.Region, addr uint32) {
	// With FastMemory on, stores to a region holding no compiled code at
	// all skip even the per-address bitmap load.
	if c.cfg.FastMemory && !c.index.HasCode(region) {
		return
	}
	if !c.index.IsDirty(region, addr) {
		return
	}

	for _, cpu := range []types.CPU{types.ARM9, types.ARM7} {
		for fp, idx := range c.byFP[cpu] {
			b := c.blocks[idx]
			if b == nil || b.Retired || !b.Overlaps(region, addr) {
				continue
			}
			c.retire(cpu, fp, b)
			for _, r := range b.Ranges {
				if r.Region == region {
					c.index.ClearRange(region, r.Start, r.End)
				}
			}
		}
	}
}

func (c *Cache) retire(cpu types.CPU, fp Fingerprint, b *Block) {
	b.Retired = true
	delete(c.byFP[cpu], fp)
	c.addToRestore(fp, b)
}

func (c *Cache) addToRestore(fp Fingerprint, b *Block) {
	if _, exists := c.restore[fp]; exists {
		return
	}
	if len(c.restoreOrder) >= restoreCap {
		oldest := c.restoreOrder[0]
		c.restoreOrder = c.restoreOrder[1:]
		delete(c.restore, oldest)
	}
	c.restore[fp] = b
	c.restoreOrder = append(c.restoreOrder, fp)
}

func (c *Cache) removeFromRestoreOrder(fp Fingerprint) {
	for i, f := range c.restoreOrder {
		if f == fp {
			c.restoreOrder = append(c.restoreOrder[:i], c.restoreOrder[i+1:]...)
			return
		}
	}
}

// ResetBlockCache discards every compiled block and restore candidate and
// zeroes all region tables — used on a model switch or a hard reset.
func (c *Cache) ResetBlockCache() {
	c.blocks = nil
	c.byFP[types.ARM9] = make(map[Fingerprint]int)
	c.byFP[types.ARM7] = make(map[Fingerprint]int)
	c.restore = make(map[Fingerprint]*Block)
	c.restoreOrder = nil
	c.index.ResetAll()
}

// FastLookup exposes the region's dispatch table so an interpreter loop can
// resolve a branch target with one load instead of a cache lookup.
func (c *Cache) FastLookup(region addressmap.Region) []uint64 {
	return c.index.FastLookupTable(region)
}

// BeginWrite opens the arena backing compiled code for writing, for the
// duration a Compiler is emitting into it, and must be paired with a
// Release before any dispatch branches into the arena again.
func (c *Cache) BeginWrite(arena []byte) (*WriteGuard, error) {
	return c.mem.BeginWrite(arena)
}

// Stats reports the cache's current occupancy, for cmd/jitbench.
type Stats struct {
	Live     int
	Retired  int
	Restored int
}

func (c *Cache) Stats() Stats {
	s := Stats{Restored: len(c.restore)}
	for _, b := range c.blocks {
		if b == nil {
			continue
		}
		if b.Retired {
			s.Retired++
		} else {
			s.Live++
		}
	}
	return s
}
