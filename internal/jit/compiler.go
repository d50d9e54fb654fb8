package jit

import "github.com/kallisti-dev/ndscore/internal/addressmap"
import "github.com/kallisti-dev/ndscore/internal/types"

// Translation is the result of compiling one block of guest code: a host
// entry point, the guest address ranges it consumed (for invalidation
// bookkeeping), and the instruction count the cache bounds against its
// configured block size.
type Translation struct {
	Entry        uintptr
	Ranges       []AddrRange
	Instructions int
}

// Compiler is the external code generator this cache delegates to. What
// happens inside Translate — decoding ARM9/ARM7 instructions, emitting host
// machine code — is out of scope here; JitCache only needs a stable entry
// point and the set of guest ranges that entry point is sensitive to.
//
// Translate receives the cache's Config so the optimization toggles
// (literal/branch inlining, the invalid-literal set, the block-size bound)
// have their consumer on the emitting side; the cache re-checks the
// block-size bound on return regardless.
type Compiler interface {
	// Arena exposes the executable buffer Translate emits machine code
	// into. The cache flips it writable for the duration of each
	// translation and back to executable before any dispatch can branch
	// into it. An empty arena means the compiler manages no executable
	// memory of its own.
	Arena() []byte

	Translate(cpu types.CPU, region addressmap.Region, localOffset uint32, cfg *Config) (*Translation, error)
}
