package addressmap

import (
	"testing"

	"github.com/kallisti-dev/ndscore/internal/types"
)

func TestLocaliseWraps(t *testing.T) {
	off, ok := Localise(types.ARM9, ITCM, 32*1024+0x40)
	if !ok {
		t.Fatalf("expected ITCM to be recognized")
	}
	if off != 0x40 {
		t.Fatalf("expected wrap to 0x40, got %#x", off)
	}
}

func TestLocaliseStable(t *testing.T) {
	a, _ := Localise(types.ARM9, MainRAM, 0x1234)
	b, _ := Localise(types.ARM9, MainRAM, 0x1234)
	if a != b {
		t.Fatalf("localise must be stable for identical inputs: %#x != %#x", a, b)
	}
}

func TestLocaliseUnknownRegion(t *testing.T) {
	if _, ok := Localise(types.ARM9, Region(200), 0); ok {
		t.Fatalf("expected unknown region to be rejected")
	}
}

func TestAllRegionsArePowerOfTwoSizes(t *testing.T) {
	for r, size := range Sizes {
		if size == 0 || size&(size-1) != 0 {
			t.Fatalf("region %d has non-power-of-two size %d", r, size)
		}
	}
}
