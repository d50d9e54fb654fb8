// Package jit implements the content-addressed code cache for translated
// guest blocks: compiled guest code is indexed by a Fingerprint derived from
// (cpu, region, local_offset), invalidated by page/sub-line granularity via
// RegionIndex, and resolved on branch dispatch through a FastLookup table.
//
// Translation itself — turning guest bytes into host machine code — is an
// external black box (Compiler); this package owns only the cache, not the
// code generator.
package jit

import (
	"fmt"

	"github.com/kallisti-dev/ndscore/internal/addressmap"
	"github.com/kallisti-dev/ndscore/internal/types"
)

// invariant panics with a formatted message if cond is false. Violations
// here indicate a bug in the cache's own bookkeeping, not a guest/runtime
// error, so they are not reported through an error return.
func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Fingerprint is the content-address of a compiled block:
//
//	fingerprint = (cpu_id << 17) | (region_id << 27) | local_offset
//
// Given as a literal formula, implemented bit-exact even though region_id's
// shift leaves bits 17-26 shared between cpu_id's top bits and a large
// region's local_offset for offsets >= 0x20000 — see DESIGN.md.
type Fingerprint uint64

// NewFingerprint computes a block's content-address.
func NewFingerprint(cpu types.CPU, region addressmap.Region, localOffset uint32) Fingerprint {
	return Fingerprint(uint64(cpu)<<17 | uint64(region)<<27 | uint64(localOffset))
}

// AddrRange is one contiguous span of guest memory a compiled block reads
// instructions from. Most blocks have exactly one; a block that falls
// through a region boundary, or whose translator coalesces a literal pool
// read, can have more.
type AddrRange struct {
	Region     addressmap.Region
	Start, End uint32 // local offsets within Region, End exclusive
}

// Contains reports whether local offset addr within region falls inside r.
func (r AddrRange) Contains(region addressmap.Region, addr uint32) bool {
	return r.Region == region && addr >= r.Start && addr < r.End
}

// Block is one compiled unit of guest code.
type Block struct {
	CPU         types.CPU
	Region      addressmap.Region
	LocalOffset uint32
	Ranges      []AddrRange
	Entry       uintptr
	Retired     bool
}

// Fingerprint returns the block's content-address.
func (b *Block) Fingerprint() Fingerprint {
	return NewFingerprint(b.CPU, b.Region, b.LocalOffset)
}

// Overlaps reports whether any of the block's address ranges cover the
// single local offset addr within region — the primitive CheckAndInvalidate
// needs to decide whether a write should retire this block.
func (b *Block) Overlaps(region addressmap.Region, addr uint32) bool {
	for _, r := range b.Ranges {
		if r.Contains(region, addr) {
			return true
		}
	}
	return false
}
