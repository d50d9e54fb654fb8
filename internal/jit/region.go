package jit

import "github.com/kallisti-dev/ndscore/internal/addressmap"

// pageSize and lineSize are fixed by the index layout: a page is the granularity of
// a PageMap entry, a line is the granularity of a single dirty bit.
const (
	pageSize = 512
	lineSize = 16
	// linesPerPage is the number of dirty bits needed per page: the bit
	// index (addr&0x1FF)>>4 ranges over 0..31, so an entry needs 32 bits.
	linesPerPage = pageSize / lineSize
)

// regionTables holds one region's PageMap and FastLookup arrays.
type regionTables struct {
	pageMap    []uint32 // size/512 entries, bit i set => sub-line i has code
	fastLookup []uint64 // size/2 entries, indexed by local_offset>>1
	marked     int      // count of set pageMap bits, kept for HasCode
}

// RegionIndex is the per-region page table plus fast-lookup array pairing:
// PageMap gives O(1) negative invalidation, FastLookup resolves a
// branch target to a compiled entry with one aligned load.
type RegionIndex struct {
	regions map[addressmap.Region]*regionTables
}

// NewRegionIndex builds empty tables for every region AddressMap knows
// about.
func NewRegionIndex() *RegionIndex {
	ri := &RegionIndex{regions: make(map[addressmap.Region]*regionTables)}
	for r, size := range addressmap.Sizes {
		ri.regions[r] = &regionTables{
			pageMap:    make([]uint32, size/pageSize),
			fastLookup: make([]uint64, size/2),
		}
	}
	return ri
}

func (ri *RegionIndex) tables(region addressmap.Region) *regionTables {
	t, ok := ri.regions[region]
	if !ok {
		invariant(false, "jit: region %d is not a recognized code-bearing region", region)
	}
	return t
}

func subline(addr uint32) (page uint32, bit uint32) {
	return addr / pageSize, (addr % pageSize) / lineSize
}

// Mark sets the dirty bit for every 16-byte sub-line touched by
// [localOffset, localOffset+nBytes), and installs entry into the
// FastLookup slot for the block's start offset only — interior
// instructions never appear in FastLookup.
func (ri *RegionIndex) Mark(region addressmap.Region, localOffset, nBytes uint32, entry uint64) {
	t := ri.tables(region)

	start := localOffset
	end := localOffset + nBytes
	for off := start - (start % lineSize); off < end; off += lineSize {
		page, bit := subline(off)
		if t.pageMap[page]&(1<<bit) == 0 {
			t.pageMap[page] |= 1 << bit
			t.marked++
		}
	}

	t.fastLookup[localOffset/2] = entry
}

// HasCode reports whether any sub-line in region currently holds compiled
// code. The store-side fast path consults this before even loading the
// page bitmap when FastMemory is enabled.
func (ri *RegionIndex) HasCode(region addressmap.Region) bool {
	return ri.tables(region).marked > 0
}

// IsDirty is the hot-path bitmap read: does any compiled code occupy the
// sub-line containing addr?
func (ri *RegionIndex) IsDirty(region addressmap.Region, addr uint32) bool {
	t := ri.tables(region)
	page, bit := subline(addr)
	return t.pageMap[page]&(1<<bit) != 0
}

// ClearRange clears the dirty bits and FastLookup entries for every
// sub-line in [start, end) — the full extent of a retired block, not just
// the single byte that triggered invalidation: a write
// anywhere inside a compiled block invalidates the whole block.
func (ri *RegionIndex) ClearRange(region addressmap.Region, start, end uint32) {
	t := ri.tables(region)

	lineStart := start - (start % lineSize)
	for off := lineStart; off < end; off += lineSize {
		page, bit := subline(off)
		if t.pageMap[page]&(1<<bit) != 0 {
			t.pageMap[page] &^= 1 << bit
			t.marked--
		}
	}
	for off := lineStart; off < end; off += 2 {
		t.fastLookup[off/2] = 0
	}
}

// FastLookupSlot reads a single FastLookup entry without mutating it.
func (ri *RegionIndex) FastLookupSlot(region addressmap.Region, localOffset uint32) uint64 {
	t := ri.tables(region)
	return t.fastLookup[localOffset/2]
}

// FastLookupTable returns the raw FastLookup slice for a region, used by
// SetExecutableRegion so the dispatcher can resolve branches with a single
// aligned load and no further region lookup.
func (ri *RegionIndex) FastLookupTable(region addressmap.Region) []uint64 {
	return ri.tables(region).fastLookup
}

// Reset zeroes every table for region, used by coarse invalidation and
// reset_block_cache.
func (ri *RegionIndex) Reset(region addressmap.Region) {
	t := ri.tables(region)
	for i := range t.pageMap {
		t.pageMap[i] = 0
	}
	for i := range t.fastLookup {
		t.fastLookup[i] = 0
	}
	t.marked = 0
}

// ResetAll zeroes every table in every region.
func (ri *RegionIndex) ResetAll() {
	for r := range ri.regions {
		ri.Reset(r)
	}
}

// PageBits returns the raw Code mask for a region's page, for tests.
func (ri *RegionIndex) PageBits(region addressmap.Region, page uint32) uint32 {
	return ri.tables(region).pageMap[page]
}
