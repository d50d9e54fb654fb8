package cart

import "github.com/kallisti-dev/ndscore/internal/types"

// key1SeedLength is the number of bytes copied out of the ARM7 BIOS to seed
// a KEY1 schedule. The two offsets are console-specific.
const key1SeedLength = 0x1048

// key1SeedOffset returns the BIOS byte offset KEY1's key buffer is seeded
// from, per console variant.
func key1SeedOffset(m types.Model) int {
	if m == types.DSi {
		return 0xC6D0
	}
	return 0x0030
}

// Key1Schedule is the mutable KEY1 key buffer, kept as explicit
// passed-around state rather than a package global. Every command that
// depends on KEY1 re-initializes one of these before use.
type Key1Schedule struct {
	buf [0x412]uint32
}

// NewKey1Schedule seeds a schedule from a slice of the ARM7 BIOS. A
// missing or undersized BIOS is not fatal: the key buffer stays zeroed
// and the caller proceeds (the game simply fails to boot).
func NewKey1Schedule(model types.Model, bios []byte) *Key1Schedule {
	s := &Key1Schedule{}
	off := key1SeedOffset(model)
	if bios == nil || off+key1SeedLength > len(bios) {
		return s
	}
	for i := 0; i < 0x412; i++ {
		s.buf[i] = le32(bios[off+i*4:])
	}
	return s
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func byteSwap32(v uint32) uint32 {
	return (v >> 24) | ((v >> 8) & 0xFF00) | ((v << 8) & 0xFF0000) | (v << 24)
}

// Encrypt applies one KEY1 Feistel-network pass to an 8-byte (two u32)
// block in place. Bit-exact with the reference Key1_Encrypt.
func (s *Key1Schedule) Encrypt(data *[2]uint32) {
	y, x := data[0], data[1]
	for i := uint32(0); i <= 0xF; i++ {
		z := s.buf[i] ^ x
		x = s.buf[0x012+(z>>24)]
		x += s.buf[0x112+((z>>16)&0xFF)]
		x ^= s.buf[0x212+((z>>8)&0xFF)]
		x += s.buf[0x312+(z&0xFF)]
		x ^= y
		y = z
	}
	data[0] = x ^ s.buf[0x10]
	data[1] = y ^ s.buf[0x11]
}

// Decrypt is Encrypt's inverse: decrypt(encrypt(x, k), k) == x for any
// block and any initialized schedule.
func (s *Key1Schedule) Decrypt(data *[2]uint32) {
	y, x := data[0], data[1]
	for i := 0x11; i >= 0x2; i-- {
		z := s.buf[i] ^ x
		x = s.buf[0x012+(z>>24)]
		x += s.buf[0x112+((z>>16)&0xFF)]
		x ^= s.buf[0x212+((z>>8)&0xFF)]
		x += s.buf[0x312+(z&0xFF)]
		x ^= y
		y = z
	}
	data[0] = x ^ s.buf[0x1]
	data[1] = y ^ s.buf[0x0]
}

// ApplyKeycode mixes a 3-word keycode into the schedule, re-deriving every
// entry of the key buffer from it.
func (s *Key1Schedule) ApplyKeycode(keycode *[3]uint32, mod uint32) {
	// Key1_Encrypt(&keycode[1]) then Key1_Encrypt(&keycode[0]): each call
	// treats its argument as a pointer to an overlapping 2-word window,
	// so the second call observes the first call's output in keycode[1].
	pair := [2]uint32{keycode[1], keycode[2]}
	s.Encrypt(&pair)
	keycode[1], keycode[2] = pair[0], pair[1]

	pair = [2]uint32{keycode[0], keycode[1]}
	s.Encrypt(&pair)
	keycode[0], keycode[1] = pair[0], pair[1]

	for i := uint32(0); i <= 0x11; i++ {
		s.buf[i] ^= byteSwap32(keycode[i%mod])
	}

	temp := [2]uint32{0, 0}
	for i := 0; i <= 0x410; i += 2 {
		s.Encrypt(&temp)
		s.buf[i] = temp[1]
		s.buf[i+1] = temp[0]
	}
}

// InitKeycode re-seeds the schedule from bios then derives it from idcode
// at the given level (1-3) and mod, matching Key1_InitKeycode.
func (s *Key1Schedule) InitKeycode(model types.Model, idcode uint32, level int, mod uint32, bios []byte) {
	fresh := NewKey1Schedule(model, bios)
	*s = *fresh

	keycode := [3]uint32{idcode, idcode >> 1, idcode << 1}
	if level >= 1 {
		s.ApplyKeycode(&keycode, mod)
	}
	if level >= 2 {
		s.ApplyKeycode(&keycode, mod)
	}
	if level >= 3 {
		keycode[1] <<= 1
		keycode[2] >>= 1
		s.ApplyKeycode(&keycode, mod)
	}
}
