package cart

import "github.com/kallisti-dev/ndscore/internal/types"

// nandState is the extra bookkeeping a NAND-backed cart's backup commands
// need: a 0x20000-byte addressable "window" into the backing SRAM, a
// write-enable latch, and a 2 KiB write-buffer staged until committed.
// Driven entirely through CartEngine's 8-byte ROM command dispatch in
// KEY2 mode rather than the SPI byte stream the other three families
// use; the protocol layers on top of the ordinary cart-read command path.
type nandState struct {
	sram      []byte
	base      uint32 // SRAMBase: window's lower bound, installed by SetNANDBase
	window    uint32 // SRAMWindow: the currently selected 0x20000-byte window
	writeAddr uint32 // SRAMAddr: latched effective address of the active write burst
	writeEn   bool   // bit 4 of status
	writeBuf  [0x800]byte
	writePos  int
}

func newNANDState(sram []byte) *nandState {
	return &nandState{sram: sram}
}

// SetNANDBase installs the window's lower address bound, read from the
// ROM header's SRAM-base field (bytes 0x96-0x97, shifted left 17).
func (b *CartBackup) SetNANDBase(headerBase16 uint16) {
	if b.nand != nil {
		b.nand.base = uint32(headerBase16) << 17
	}
}

// status returns the byte answered by the 0xD6 status read: bit 5 is
// always set ("ready"), bit 4 mirrors the write-enable latch.
func (n *nandState) status() uint8 {
	s := types.Bit5
	if n.writeEn {
		s = types.SetBit(s, types.Bit4)
	}
	return s
}

// HandleNANDCommand dispatches one of the NAND-specific ROM commands.
// cmd is the full 8-byte command register; data is the transfer scratch
// buffer CartEngine will burst out (for reads) or has already captured
// (for writes, consumed in FinishNANDCommand once the burst completes).
// Returns (handled, direction) — direction 0 means cart produces data, 1
// means host produces data, mirroring command_start's contract.
func (b *CartBackup) HandleNANDCommand(cmd []byte, data []byte, length int) (handled bool, direction int) {
	n := b.nand
	if n == nil {
		return false, 0
	}

	switch cmd[0] {
	case 0x81: // write data: latch the effective address on the first repeat only
		if n.writeEn && n.window >= n.base && n.window < n.base+uint32(len(n.sram)) {
			addr := addr32(cmd)
			if addr >= n.window && addr < n.window+0x20000 {
				if n.writeAddr == 0 {
					n.writeAddr = addr
				}
			}
		} else {
			n.writeAddr = 0
		}
		return true, 1

	case 0x82: // commit write buffer
		if n.writeAddr != 0 && n.writePos != 0 {
			off := n.writeAddr - n.base
			if int(off)+0x800 <= len(n.sram) {
				copy(n.sram[off:off+0x800], n.writeBuf[:])
				if b.persist != nil {
					b.persist(off, 0x800)
				}
			}
			n.writeAddr = 0
			n.writePos = 0
		}
		n.writeEn = false
		return true, 0

	case 0x84: // discard write buffer
		n.writeAddr = 0
		n.writePos = 0
		return true, 0

	case 0x85: // write enable
		if n.window != 0 {
			n.writeEn = true
			n.writePos = 0
		}
		return true, 0

	case 0x8B: // revert to ROM read mode
		n.window = 0
		return true, 0

	case 0xB2: // select SRAM window
		addr := uint32(cmd[1])<<24 | uint32(cmd[2]&0xFE)<<16
		n.window = addr
		return true, 0

	case 0xD6: // read status
		for i := 0; i+4 <= length; i += 4 {
			v := n.status()
			data[i], data[i+1], data[i+2], data[i+3] = v, v, v, v
		}
		return true, 0

	case 0x94: // ID block
		id := make([]byte, 0x30)
		id[0], id[1], id[2], id[3] = 0xEC, 0xF1, 0x00, 0x95
		if len(n.sram) > 0 {
			copy(id[0x18:0x18+16], n.sram[len(n.sram)-0x800:])
		}
		copy(data, id[:min(length, len(id))])
		return true, 0
	}

	return false, 0
}

// FinishNANDCommand runs after a transfer completes; only 0x81 (buffer the
// burst's data bytes) needs post-transfer handling.
func (b *CartBackup) FinishNANDCommand(cmd []byte, data []byte, length int) {
	n := b.nand
	if n == nil || cmd[0] != 0x81 || n.writeAddr == 0 {
		return
	}
	room := 0x800 - n.writePos
	if length < room {
		room = length
	}
	copy(n.writeBuf[n.writePos:n.writePos+room], data[:room])
	n.writePos += room
}

// ReadB7NAND implements the NAND family's override of the 0xB7 data read:
// window 0 falls back to ordinary ROM reads; a selected window redirects
// into SRAM, returning 0xFF outside the window's bounds.
func (b *CartBackup) ReadB7NAND(rom *CartRom, model types.Model, addr uint32, length int) []byte {
	n := b.nand
	if n == nil || n.window == 0 {
		return rom.ReadB7(model, addr, length)
	}

	out := make([]byte, length)
	for i := range out {
		out[i] = 0xFF
	}
	if n.window >= n.base && n.window < n.base+uint32(len(n.sram)) &&
		addr >= n.window && addr < n.window+0x20000 {
		off := addr - n.base
		copy(out, n.sram[off:min(int(off)+length, len(n.sram))])
	}
	return out
}

func addr32(cmd []byte) uint32 {
	return uint32(cmd[1])<<24 | uint32(cmd[2])<<16 | uint32(cmd[3])<<8 | uint32(cmd[4])
}
