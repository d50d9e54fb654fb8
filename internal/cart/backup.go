package cart

import "github.com/kallisti-dev/ndscore/internal/types"

// Persist is the write_nds_save persistence boundary: called
// once per SPI transaction that modifies backup memory, never per byte.
type Persist func(firstAddr, n uint32)

// CartBackup is the SPI-level backup-memory state machine covering all
// four backup families: tiny EEPROM, EEPROM, FLASH, and
// NAND-backed. The family is fixed at construction from the ROM's
// SaveMemType and only ever affects command decoding and address width.
type CartBackup struct {
	family Family
	sram   []byte
	status uint8 // bit 0 = WEL

	cmd       uint8
	haveCmd   bool
	addrBytes int
	addr      uint32
	addrWidth int
	nParams   int
	dummy     bool

	// write transaction bookkeeping for the persistence callback.
	txActive  bool
	txFirst   uint32
	txLen     uint32
	writeInTx bool
	persist   Persist

	// nand is populated only for FamilyNAND and driven through
	// CartEngine's ROM command dispatch rather than this type's SPI
	// Transfer method (see nand.go).
	nand *nandState
}

// statusWEL is the write-enable latch bit of the SPI status register.
const statusWEL = types.Bit0

// NewCartBackup constructs a backup state machine for the given save
// memory type, preloaded with 0xFF (the common erased-flash value).
func NewCartBackup(saveType SaveMemType, persist Persist) *CartBackup {
	n := saveType.Length()
	sram := make([]byte, n)
	for i := range sram {
		sram[i] = 0xFF
	}
	addrWidth := 2
	if n > 64*1024 {
		addrWidth = 3
	}
	if saveType.Family() == FamilyTinyEEPROM {
		addrWidth = 1
	}
	b := &CartBackup{
		family:    saveType.Family(),
		sram:      sram,
		addrWidth: addrWidth,
		persist:   persist,
	}
	if b.family == FamilyNAND {
		b.nand = newNANDState(sram)
	}
	return b
}

// PreloadSRAM replaces the backup contents (used to install an existing
// save file). The slice is copied, not aliased.
func (b *CartBackup) PreloadSRAM(data []byte) {
	n := copy(b.sram, data)
	for i := n; i < len(b.sram); i++ {
		b.sram[i] = 0xFF
	}
}

// SRAM returns the live backup-memory bytes, for savestate serialization.
func (b *CartBackup) SRAM() []byte { return b.sram }

// BeginTransaction resets per-transaction decode state; called once per
// SPI chip-select assertion.
func (b *CartBackup) BeginTransaction() {
	b.haveCmd = false
	b.nParams = 0
	b.addr = 0
	b.addrBytes = 0
	b.txActive = false
	b.writeInTx = false
	b.dummy = false
}

// Transfer processes a single SPI byte. last marks the final byte of the
// transaction (chip-select deasserted); if the transaction wrote, WEL then
// clears and the write is flushed to persist.
func (b *CartBackup) Transfer(data byte, last bool) byte {
	out := byte(0xFF)

	if !b.haveCmd {
		switch data {
		case 0x04:
			b.status = types.ResetBit(b.status, statusWEL)
			if last {
				b.BeginTransaction()
			}
			return out
		case 0x06:
			b.status = types.SetBit(b.status, statusWEL)
			if last {
				b.BeginTransaction()
			}
			return out
		default:
			b.cmd = data
			b.haveCmd = true
			b.nParams = 0
		}
	} else {
		out = b.step(data)
	}

	if last {
		b.endTransaction()
	}
	return out
}

// step decodes one SPI parameter byte for the three byte-stream-addressed
// families (tiny EEPROM, EEPROM, FLASH). NAND-backed carts do not use
// this path at all: their backup window is addressed through CartEngine's
// ROM command dispatch instead of the SPI bus (see nand.go).
func (b *CartBackup) step(data byte) byte {
	switch b.cmd {
	case 0x05: // read status register
		return b.status

	case 0x9F: // JEDEC ID
		return 0xFF

	case 0x02, 0x0A: // page program / page write
		return b.stepWriteAddressed(data)

	case 0x03, 0x0B: // read / fast read
		return b.stepReadAddressed(data, b.cmd == 0x0B)

	case 0xD8: // sector erase (64 KiB)
		return b.stepEraseAddressed(data, 64*1024)

	case 0xDB: // page erase (256 B)
		return b.stepEraseAddressed(data, 256)
	}
	return 0xFF
}

func (b *CartBackup) addrWidthFor() int {
	if b.family == FamilyTinyEEPROM {
		return 1
	}
	return b.addrWidth
}

func (b *CartBackup) feedAddr(data byte) bool {
	want := b.addrWidthFor()
	if b.addrBytes == 0 {
		b.addr = 0
		if b.family == FamilyTinyEEPROM {
			// high bit of the command selects the 0x100 half.
			b.addr = uint32(b.cmd&0x08) >> 3
		}
	}
	b.addr = (b.addr << 8) | uint32(data)
	b.addrBytes++
	return b.addrBytes >= want
}

func (b *CartBackup) stepWriteAddressed(data byte) byte {
	if !b.addrComplete(data) {
		return 0xFF
	}
	if !types.TestBit(b.status, statusWEL) {
		return 0xFF
	}
	if !b.txActive {
		b.txActive = true
		b.txFirst = b.addr
		b.txLen = 0
	}
	if int(b.addr) < len(b.sram) {
		b.sram[b.addr] = data
	}
	b.txLen++
	b.writeInTx = true
	b.addr++
	return 0xFF
}

func (b *CartBackup) stepReadAddressed(data byte, fast bool) byte {
	if !b.addrComplete(data) {
		return 0xFF
	}
	if fast && !b.dummy {
		b.dummy = true
		return 0xFF
	}
	var v byte
	if int(b.addr) < len(b.sram) {
		v = b.sram[b.addr]
	}
	b.addr++
	return v
}

func (b *CartBackup) stepEraseAddressed(data byte, size uint32) byte {
	if !b.addrComplete(data) {
		return 0xFF
	}
	if !types.TestBit(b.status, statusWEL) {
		return 0xFF
	}
	base := b.addr - (b.addr % size)
	if !b.txActive {
		b.txActive = true
		b.txFirst = base
		b.txLen = 0
	}
	for i := uint32(0); i < size && int(base+i) < len(b.sram); i++ {
		b.sram[base+i] = 0xFF
	}
	b.txLen = size
	b.writeInTx = true
	return 0xFF
}

// addrComplete feeds data into the address accumulator until the family's
// address width is satisfied, returning true once complete (any
// subsequent byte in the command is real payload).
func (b *CartBackup) addrComplete(data byte) bool {
	if b.addrBytes < b.addrWidthFor() {
		b.feedAddr(data)
		return false
	}
	return true
}

// Release finalizes a held transaction without a further data byte, used
// when the host drops chip-select between SPIData writes.
func (b *CartBackup) Release() {
	b.endTransaction()
}

func (b *CartBackup) endTransaction() {
	if b.writeInTx {
		if b.persist != nil {
			b.persist(b.txFirst, b.txLen)
		}
		// Writes drop the write-enable latch when their transaction ends;
		// reads and status polls leave it alone.
		b.status = types.ResetBit(b.status, statusWEL)
	}
	b.BeginTransaction()
}
