package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kallisti-dev/ndscore/internal/savestate"
)

func writeTestROM(t *testing.T, dir string) string {
	t.Helper()
	rom := make([]byte, 0x200000)
	for i := range rom[:0x200] {
		rom[i] = 0
	}
	// ARM9ROMOffset past the end of the ROM keeps secure-area
	// re-encryption a no-op, same trick internal/cart's tests use.
	rom[0x20] = byte(len(rom))
	rom[0x21] = byte(len(rom) >> 8)
	rom[0x22] = byte(len(rom) >> 16)
	rom[0x23] = byte(len(rom) >> 24)

	path := filepath.Join(dir, "game.nds")
	if err := os.WriteFile(path, rom, 0644); err != nil {
		t.Fatalf("write test ROM: %v", err)
	}
	return path
}

func TestNewWiresCartAndJIT(t *testing.T) {
	dir := t.TempDir()
	romPath := writeTestROM(t, dir)

	sys, err := New(romPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sys.Cart == nil || sys.JIT == nil || sys.Sched == nil {
		t.Fatalf("System missing wired components: %+v", sys)
	}
}

func TestSaveAndLoadStateRoundTripsBackup(t *testing.T) {
	dir := t.TempDir()
	romPath := writeTestROM(t, dir)

	sys, err := New(romPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sram := sys.backup.SRAM()
	sram[0] = 0xAB
	sram[1] = 0xCD

	w := savestate.NewOwned()
	sys.SaveState(w)
	w.Finish()
	if w.Err() != nil {
		t.Fatalf("SaveState: %v", w.Err())
	}

	sys2, err := New(romPath)
	if err != nil {
		t.Fatalf("New (second): %v", err)
	}
	r := savestate.NewReader(w.Bytes())
	if err := sys2.LoadState(r); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	got := sys2.backup.SRAM()
	if got[0] != 0xAB || got[1] != 0xCD {
		t.Fatalf("backup memory did not round-trip: %x", got[:4])
	}
}
