//go:build unix

package jit

import "golang.org/x/sys/unix"

// executableMemory is the W^X-toggled arena compiled code lives in. On unix the toggle is a real mprotect call; other
// platforms get a no-op stand-in (wx_other.go) since the Compiler black box
// is responsible for the actual code emission and this package only needs
// to expose the guard.
type executableMemory struct {
	region []byte
	writer bool
}

func newExecutableMemory() *executableMemory {
	return &executableMemory{}
}

// WriteGuard is released to flip the arena back to execute-only. Callers
// must release it before yielding control to compiled code.
type WriteGuard struct {
	mem *executableMemory
}

// BeginWrite marks region writable and not executable, for the duration
// code is being emitted into it. An empty region has nothing to protect
// and yields a released guard.
func (m *executableMemory) BeginWrite(region []byte) (*WriteGuard, error) {
	if len(region) == 0 {
		return &WriteGuard{mem: m}, nil
	}
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, err
	}
	m.region = region
	m.writer = true
	return &WriteGuard{mem: m}, nil
}

// Release flips the region back to read+execute, making it safe to branch
// into but no longer safe to write.
func (g *WriteGuard) Release() error {
	if !g.mem.writer {
		return nil
	}
	g.mem.writer = false
	return unix.Mprotect(g.mem.region, unix.PROT_READ|unix.PROT_EXEC)
}
