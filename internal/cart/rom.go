package cart

import (
	"encoding/binary"

	"github.com/kallisti-dev/ndscore/internal/types"
	"github.com/kallisti-dev/ndscore/pkg/log"
)

const headerSize = 0x200

// secureAreaSize is the length of the encrypted boot block at the start of
// the ARM9 binary.
const secureAreaSize = 0x800

// illegalInstructionSentinel fills a secure area whose decryption failed,
// so the CPU traps immediately instead of executing garbage.
const illegalInstructionSentinel = 0xE7FFDEFF

// Header is the subset of the 512-byte NDS/DSi cart header CartRom needs:
// game code, ARM9 load offset, icon/banner offset, and the DSi flag plus
// its region-start field.
type Header struct {
	GameCode       uint32
	ARM9ROMOffset  uint32
	BannerOffset   uint32
	UnitCode       uint8
	DSiRegionStart uint32
}

func parseHeader(raw []byte) Header {
	var h Header
	h.GameCode = binary.LittleEndian.Uint32(raw[0x0C:0x10])
	h.UnitCode = raw[0x12]
	h.ARM9ROMOffset = binary.LittleEndian.Uint32(raw[0x20:0x24])
	h.BannerOffset = binary.LittleEndian.Uint32(raw[0x68:0x6C])
	h.DSiRegionStart = binary.LittleEndian.Uint32(raw[0x1B0:0x1B4])
	return h
}

// IsDSi reports whether the unit code marks this cart as DSi-enhanced or
// DSi-exclusive.
func (h Header) IsDSi() bool {
	return h.UnitCode&0x02 != 0
}

// CartRom owns a cartridge ROM image and answers bus reads with the B7
// gating rules.
type CartRom struct {
	rom    []byte
	header Header
	params ROMParams
	id     uint32
	log    log.Logger
}

// NewCartRom rounds romData up to a power of two, parses its header, looks
// it up in the ROM-parameters table, and re-encrypts the secure area if it
// was dumped in cleartext.
func NewCartRom(model types.Model, romData, arm7BIOS []byte, logger log.Logger) *CartRom {
	if logger == nil {
		logger = log.NewNullLogger()
	}

	size := uint32(0x200)
	for size < uint32(len(romData)) {
		size <<= 1
	}
	rom := make([]byte, size)
	copy(rom, romData)

	header := parseHeader(rom)
	params, found := romParamsFor(header.GameCode)
	if !found {
		logger.Infof("cart: no ROM-params entry for game code %08X, using defaults", header.GameCode)
		params = ROMParams{GameCode: header.GameCode, ROMSize: size, SaveMemType: SaveEEPROM128K}
	}

	c := &CartRom{rom: rom, header: header, params: params, log: logger}
	c.id = cartID(size, params.SaveMemType, header.IsDSi())

	c.maybeReencryptSecureArea(model, arm7BIOS)
	return c
}

// maybeReencryptSecureArea restores a re-dumped ROM's secure area to its
// on-cart KEY1-encrypted shape when it begins with the cleartext
// placeholder magic.
func (c *CartRom) maybeReencryptSecureArea(model types.Model, arm7BIOS []byte) {
	off := c.header.ARM9ROMOffset
	if off+secureAreaSize > uint32(len(c.rom)) {
		return
	}
	area := c.rom[off : off+secureAreaSize]
	if string(area[:8]) != "encryObj" {
		return
	}

	sched := &Key1Schedule{}
	sched.InitKeycode(model, c.header.GameCode, 3, 2, arm7BIOS)
	for i := 0; i < secureAreaSize; i += 8 {
		var block [2]uint32
		block[0] = binary.LittleEndian.Uint32(area[i : i+4])
		block[1] = binary.LittleEndian.Uint32(area[i+4 : i+8])
		sched.Encrypt(&block)
		binary.LittleEndian.PutUint32(area[i:i+4], block[0])
		binary.LittleEndian.PutUint32(area[i+4:i+8], block[1])
	}

	sched.InitKeycode(model, c.header.GameCode, 2, 2, arm7BIOS)
	var block [2]uint32
	block[0] = binary.LittleEndian.Uint32(area[0:4])
	block[1] = binary.LittleEndian.Uint32(area[4:8])
	sched.Encrypt(&block)
	binary.LittleEndian.PutUint32(area[0:4], block[0])
	binary.LittleEndian.PutUint32(area[4:8], block[1])

	c.log.Infof("cart: re-encrypted secure area for game code %08X", c.header.GameCode)
}

// DecryptSecureArea returns a decrypted copy of the ARM9 secure area,
// falling back to the illegal-instruction sentinel on a magic mismatch.
func (c *CartRom) DecryptSecureArea(model types.Model, arm7BIOS []byte) []byte {
	off := c.header.ARM9ROMOffset
	out := make([]byte, secureAreaSize)
	if off+secureAreaSize > uint32(len(c.rom)) {
		fillSentinel(out)
		return out
	}
	copy(out, c.rom[off:off+secureAreaSize])

	sched := &Key1Schedule{}
	sched.InitKeycode(model, c.header.GameCode, 2, 2, arm7BIOS)
	decryptBlock(sched, out[0:8])

	sched.InitKeycode(model, c.header.GameCode, 3, 2, arm7BIOS)
	for i := 0; i < secureAreaSize; i += 8 {
		decryptBlock(sched, out[i:i+8])
	}

	if string(out[:8]) == "encryObj" {
		binary.LittleEndian.PutUint32(out[0:4], illegalInstructionSentinel)
		binary.LittleEndian.PutUint32(out[4:8], illegalInstructionSentinel)
		c.log.Infof("cart: secure area decryption OK")
	} else {
		c.log.Errorf("cart: secure area decryption failed, filling with sentinel")
		fillSentinel(out)
	}
	return out
}

func decryptBlock(sched *Key1Schedule, b []byte) {
	var block [2]uint32
	block[0] = binary.LittleEndian.Uint32(b[0:4])
	block[1] = binary.LittleEndian.Uint32(b[4:8])
	sched.Decrypt(&block)
	binary.LittleEndian.PutUint32(b[0:4], block[0])
	binary.LittleEndian.PutUint32(b[4:8], block[1])
}

func fillSentinel(out []byte) {
	for i := 0; i < len(out); i += 4 {
		binary.LittleEndian.PutUint32(out[i:i+4], illegalInstructionSentinel)
	}
}

// ReadB7 answers a KEY2-mode 0xB7 cart-data read, applying the bus's
// gating rules: everything below 0x8000 is unreadable and wraps to the
// [0x8000, 0x8200) window; the DSi region is blocked in DS mode, and its
// first 0x3000 bytes are blocked even in DSi mode.
func (c *CartRom) ReadB7(model types.Model, addr uint32, n int) []byte {
	if addr < 0x8000 {
		wrapped := 0x8000 + (addr & 0x1FF)
		return c.readRaw(wrapped, n)
	}

	if c.header.IsDSi() {
		dsiStart := c.header.DSiRegionStart << 19
		if dsiStart != 0 && addr >= dsiStart {
			if model != types.DSi {
				return make([]byte, n)
			}
			if addr < dsiStart+0x3000 {
				return make([]byte, n)
			}
		}
	}

	return c.readRaw(addr, n)
}

func (c *CartRom) readRaw(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		a := int(addr) + i
		if a >= 0 && a < len(c.rom) {
			out[i] = c.rom[a]
		}
	}
	return out
}

// ID returns the synthesized cart ID register value.
func (c *CartRom) ID() uint32 { return c.id }

// Header returns the parsed cart header.
func (c *CartRom) Header() Header { return c.header }

// Params returns the cart's resolved ROM-parameters entry.
func (c *CartRom) Params() ROMParams { return c.params }

// Size returns the ROM's (power-of-two-rounded) byte length.
func (c *CartRom) Size() uint32 { return uint32(len(c.rom)) }
