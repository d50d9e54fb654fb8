package jit

import (
	"testing"

	"github.com/kallisti-dev/ndscore/internal/addressmap"
)

// TestITCMCompileAndInvalidate marks a 0x40..0x80 block in ITCM and checks
// the page bits, slot, and invalidation behavior byte-exactly:
// compile a block at ITCM offset 0x40 (covering 0x40..0x80), verify the
// PageMap bits for sub-lines 4-7 are set, then clear the block's whole
// range (what the cache does for a write to 0x50) and verify those bits
// clear and the FastLookup slot at 0x20 zeroes.
func TestITCMCompileAndInvalidate(t *testing.T) {
	ri := NewRegionIndex()
	ri.Mark(addressmap.ITCM, 0x40, 0x40, 0xAAAA)

	bits := ri.PageBits(addressmap.ITCM, 0)
	want := uint32(0xF0) // bits 4,5,6,7
	if bits&want != want {
		t.Fatalf("expected bits 4-7 set, got %#b", bits)
	}

	if !ri.IsDirty(addressmap.ITCM, 0x50) {
		t.Fatalf("expected 0x50 to be dirty after compile")
	}

	// A write anywhere inside a block invalidates its whole range, not
	// just the touched sub-line: the cache (not RegionIndex alone) knows
	// the block's extent is 0x40..0x80 and clears all of it.
	ri.ClearRange(addressmap.ITCM, 0x40, 0x80)

	if ri.IsDirty(addressmap.ITCM, 0x50) {
		t.Fatalf("expected 0x50's sub-line to be clean after invalidate")
	}
	bits = ri.PageBits(addressmap.ITCM, 0)
	if bits&want != 0 {
		t.Fatalf("expected bits 4-7 all cleared, got %#b", bits)
	}

	if slot := ri.FastLookupSlot(addressmap.ITCM, 0x40); slot != 0 {
		t.Fatalf("expected FastLookup[0x40] cleared, got %#x", slot)
	}
}

func TestFastLookupOnlyAtBlockStart(t *testing.T) {
	ri := NewRegionIndex()
	ri.Mark(addressmap.ITCM, 0x40, 0x40, 0x1234)

	if slot := ri.FastLookupSlot(addressmap.ITCM, 0x42); slot != 0 {
		t.Fatalf("expected interior offsets to have no FastLookup entry, got %#x", slot)
	}
	if slot := ri.FastLookupSlot(addressmap.ITCM, 0x40); slot != 0x1234 {
		t.Fatalf("expected FastLookup[0x40] = 0x1234, got %#x", slot)
	}
}

func TestResetClearsAllRegions(t *testing.T) {
	ri := NewRegionIndex()
	ri.Mark(addressmap.ITCM, 0x40, 0x40, 0x1)
	ri.Mark(addressmap.MainRAM, 0x1000, 0x20, 0x2)

	ri.ResetAll()

	if ri.IsDirty(addressmap.ITCM, 0x50) {
		t.Fatalf("expected ITCM to be clean after ResetAll")
	}
	if ri.IsDirty(addressmap.MainRAM, 0x1010) {
		t.Fatalf("expected MainRAM to be clean after ResetAll")
	}
}
