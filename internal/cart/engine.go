package cart

import (
	"github.com/kallisti-dev/ndscore/internal/scheduler"
	"github.com/kallisti-dev/ndscore/internal/types"
	"github.com/kallisti-dev/ndscore/pkg/log"
)

// transferScratchSize is the 16 KiB transfer_data staging buffer.
const transferScratchSize = 16 * 1024

// IRQLine identifies one of the two cart-related interrupt lines.
type IRQLine int

const (
	CartXferDone IRQLine = iota
	CartIREQMC
)

// EncMode is the cart's command-decoding mode, entered and left by specific
// commands rather than chosen by the caller.
type EncMode int

const (
	EncPlain EncMode = iota
	EncKey1
	EncKey2
)

// CartEngine is the bus-level command interpreter driving CartRom and
// CartBackup through the SPICnt/ROMCnt protocol. It owns the KEY1/KEY2
// crypto state and the scheduler events that pace a transfer.
type CartEngine struct {
	sched *scheduler.Scheduler
	log   log.Logger

	model    types.Model
	arm7BIOS []byte

	rom    *CartRom
	backup *CartBackup

	key1    *Key1Schedule
	key2    *Key2State
	seed0   uint64
	seed1   uint64
	encMode EncMode

	spicnt   uint16
	romcnt   uint32
	spiData  uint8
	inserted bool

	romData   uint32
	transfer  [8]byte
	data      [transferScratchSize]byte
	pos       int
	length    int
	direction int
	xferCycle uint64
	cmdDelay  uint64

	raiseIRQ   func(IRQLine)
	dmaTrigger func()
}

// NewCartEngine wires a CartEngine for one inserted cart. raiseIRQ and
// dmaTrigger are the bus-side callbacks for the two side effects the engine
// itself cannot perform: asserting an IRQ line and kicking the
// configured DMA channel when a word becomes ready.
func NewCartEngine(sched *scheduler.Scheduler, model types.Model, rom *CartRom, backup *CartBackup, arm7BIOS []byte, raiseIRQ func(IRQLine), dmaTrigger func(), logger log.Logger) *CartEngine {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	e := &CartEngine{
		sched:      sched,
		log:        logger,
		model:      model,
		arm7BIOS:   arm7BIOS,
		rom:        rom,
		backup:     backup,
		key1:       &Key1Schedule{},
		key2:       &Key2State{},
		inserted:   rom != nil,
		raiseIRQ:   raiseIRQ,
		dmaTrigger: dmaTrigger,
	}
	sched.RegisterEvent(scheduler.RomPrepareData, e.onPrepareData)
	sched.RegisterEvent(scheduler.RomEndTransfer, e.onEndTransfer)
	return e
}

// SetCommand latches the 8-byte cart command register, written by the bus
// before the triggering ROMCnt write.
func (e *CartEngine) SetCommand(cmd [8]byte) {
	e.transfer = cmd
}

// SetSeeds installs ROMSeed0/1, consumed the next time the cart enters KEY2
// mode or a ROMCnt write sets bit 15.
func (e *CartEngine) SetSeeds(seed0, seed1 uint64) {
	e.seed0, e.seed1 = seed0, seed1
}

// SetInserted signals cart insertion or ejection. Either edge raises the
// IREQ_MC line so the OS can re-enumerate the slot; while no cart is
// present, transfers still complete but the data lines float high.
func (e *CartEngine) SetInserted(inserted bool) {
	if e.inserted == inserted {
		return
	}
	e.inserted = inserted
	if !inserted {
		e.encMode = EncPlain
	}
	if e.raiseIRQ != nil {
		e.raiseIRQ(CartIREQMC)
	}
}

// WriteSPICnt updates SPICnt; bit 15 (enable) and bit 14 (IRQ-on-done) gate
// ROMCnt's start condition and RomEndTransfer's IRQ respectively. Bit 6
// holds the backup chip selected across SPIData writes; dropping it closes
// any SPI transaction still held open.
func (e *CartEngine) WriteSPICnt(v uint16) {
	released := e.spicnt&(1<<6) != 0 && v&(1<<6) == 0
	e.spicnt = v
	if released && e.backup != nil {
		e.backup.Release()
	}
}

func (e *CartEngine) SPICnt() uint16 { return e.spicnt }

// WriteSPIData shifts one byte through the backup memory's SPI state
// machine. The bus must be enabled (SPICnt bit 15) and in serial mode
// (bit 13); bit 6 holds chip-select across bytes, so a write with bit 6
// clear is the final byte of its transaction.
func (e *CartEngine) WriteSPIData(v uint8) {
	if e.backup == nil || e.spicnt&(1<<15) == 0 || e.spicnt&(1<<13) == 0 {
		return
	}
	last := e.spicnt&(1<<6) == 0
	e.spiData = e.backup.Transfer(v, last)
}

// ReadSPIData returns the byte the backup memory shifted out in response
// to the most recent WriteSPIData.
func (e *CartEngine) ReadSPIData() uint8 { return e.spiData }

// WriteROMCnt updates ROMCnt and starts a transfer if the write sets bit 31
// while SPICnt enables the bus (bit 15 set, bit 13 clear). Bit 15 of the
// written value re-seeds the KEY2 shift registers from ROMSeed0/1.
func (e *CartEngine) WriteROMCnt(v uint32) {
	starting := v&(1<<31) != 0 && e.romcnt&(1<<31) == 0
	e.romcnt = v
	if v&(1<<15) != 0 {
		e.key2.Seed(e.seed0, e.seed1)
	}
	if starting && e.spicnt&(1<<15) != 0 && e.spicnt&(1<<13) == 0 {
		e.startTransfer()
	}
}

func (e *CartEngine) ROMCnt() uint32 { return e.romcnt }

// ReadROMData implements read_rom_data: returns the latched word,
// clears the word-ready bit, and schedules the next word or end-of-transfer.
func (e *CartEngine) ReadROMData() uint32 {
	v := e.romData
	e.romcnt &^= 1 << 23
	if e.pos < e.length {
		e.sched.ScheduleEvent(scheduler.RomPrepareData, e.xferCycle*4)
	} else {
		e.sched.ScheduleEvent(scheduler.RomEndTransfer, 0)
	}
	return v
}

// payloadLength decodes ROMCnt[26:24] into a byte count.
func payloadLength(romcnt uint32) int {
	switch n := (romcnt >> 24) & 0x7; n {
	case 7:
		return 4
	case 0:
		return 0
	default:
		return 0x100 << n
	}
}

func (e *CartEngine) startTransfer() {
	e.length = payloadLength(e.romcnt)
	for i := range e.data {
		e.data[i] = 0
	}
	e.pos = 0

	e.direction = e.commandStart(e.transfer, e.data[:e.length])

	wantWrite := e.romcnt&(1<<30) != 0
	gotWrite := e.direction == 1
	if wantWrite != gotWrite {
		e.log.Errorf("cart: ROMCnt[30]=%v but cart reported direction=%d", wantWrite, e.direction)
	}

	if e.romcnt&(1<<27) != 0 {
		e.xferCycle = 8
	} else {
		e.xferCycle = 5
	}
	e.cmdDelay = 8 + uint64(e.romcnt&0x1FFF)
	if e.length > 0 {
		e.cmdDelay += uint64((e.romcnt >> 16) & 0x3F)
	}

	e.romcnt |= 1 << 31

	if gotWrite {
		// Writes apply their delay at the end of the transfer; the
		// host streams the payload in through WriteROMData as the CPU
		// issues it, and completion is signalled once by RomEndTransfer.
		e.sched.ScheduleEvent(scheduler.RomEndTransfer, e.xferCycle*e.cmdDelay)
		return
	}

	if e.length == 0 {
		e.sched.ScheduleEvent(scheduler.RomEndTransfer, e.xferCycle*e.cmdDelay)
	} else {
		e.sched.ScheduleEvent(scheduler.RomPrepareData, e.xferCycle*(e.cmdDelay+4))
	}
}

// WriteROMData buffers a host-produced word during a write transfer.
func (e *CartEngine) WriteROMData(v uint32) {
	if e.pos+4 > len(e.data) {
		return
	}
	e.data[e.pos] = byte(v)
	e.data[e.pos+1] = byte(v >> 8)
	e.data[e.pos+2] = byte(v >> 16)
	e.data[e.pos+3] = byte(v >> 24)
	e.pos += 4
}

func (e *CartEngine) onPrepareData() {
	if e.pos+4 <= len(e.data) {
		w := e.data[e.pos:]
		e.romData = uint32(w[0]) | uint32(w[1])<<8 | uint32(w[2])<<16 | uint32(w[3])<<24
	} else {
		e.romData = 0
	}
	e.pos += 4
	e.romcnt |= 1 << 23
	if e.dmaTrigger != nil {
		e.dmaTrigger()
	}
}

func (e *CartEngine) onEndTransfer() {
	e.romcnt &^= 1 << 31
	if e.spicnt&(1<<14) != 0 && e.raiseIRQ != nil {
		e.raiseIRQ(CartXferDone)
	}
	e.commandFinish(e.transfer, e.data[:e.length])
}

// commandStart dispatches the 8-byte command per the current cmd_enc_mode,
// producing/consuming into data and returning the
// transfer direction (0 = cart produces, 1 = host produces).
func (e *CartEngine) commandStart(cmd [8]byte, data []byte) int {
	if !e.inserted {
		fill(data, 0xFF)
		return 0
	}
	if e.backup != nil && e.backup.family == FamilyNAND && e.encMode == EncKey2 {
		if handled, dir := e.backup.HandleNANDCommand(cmd[:], data, len(data)); handled {
			return dir
		}
	}

	switch e.encMode {
	case EncPlain:
		return e.commandStartPlain(cmd, data)
	case EncKey1:
		return e.commandStartKey1(cmd, data)
	default:
		return e.commandStartKey2(cmd, data)
	}
}

func (e *CartEngine) commandStartPlain(cmd [8]byte, data []byte) int {
	switch cmd[0] {
	case 0x9F: // dummy
		fill(data, 0xFF)
		return 0

	case 0x00: // read header
		copy(data, e.rom.readRaw(0, len(data)))
		return 0

	case 0x90: // chip ID
		fillID(data, e.rom.ID())
		return 0

	case 0x3C: // enter KEY1 mode (DS)
		e.key1.InitKeycode(types.DS, e.rom.Header().GameCode, 2, 2, e.arm7BIOS)
		e.encMode = EncKey1
		return 0

	case 0x3D: // enter KEY1 mode (DSi)
		e.key1.InitKeycode(types.DSi, e.rom.Header().GameCode, 2, 2, e.arm7BIOS)
		e.encMode = EncKey1
		return 0
	}
	return 0
}

// decodeKey1Command byte-swaps and decrypts the received command word to
// recover the plaintext opcode.
func (e *CartEngine) decodeKey1Command(cmd [8]byte) byte {
	var block [2]uint32
	block[0] = byteSwap32(uint32(cmd[0])<<24 | uint32(cmd[1])<<16 | uint32(cmd[2])<<8 | uint32(cmd[3]))
	block[1] = byteSwap32(uint32(cmd[4])<<24 | uint32(cmd[5])<<16 | uint32(cmd[6])<<8 | uint32(cmd[7]))
	e.key1.Decrypt(&block)
	return byte(byteSwap32(block[0]) >> 24)
}

func (e *CartEngine) commandStartKey1(cmd [8]byte, data []byte) int {
	switch e.decodeKey1Command(cmd) {
	case 0x40, 0xA0: // enter KEY2 mode
		e.key2.Seed(e.seed0, e.seed1)
		e.encMode = EncKey2
		return 0

	case 0x10: // chip ID
		fillID(data, e.rom.ID())
		return 0

	case 0x20: // secure area read
		area := e.rom.DecryptSecureArea(e.model, e.arm7BIOS)
		copy(data, area)
		return 0
	}
	return 0
}

func (e *CartEngine) commandStartKey2(cmd [8]byte, data []byte) int {
	switch cmd[0] {
	case 0xB7: // data read, gated by ReadB7's wrap/DSi-region rules
		addr := uint32(cmd[1])<<24 | uint32(cmd[2])<<16 | uint32(cmd[3])<<8 | uint32(cmd[4])
		var out []byte
		if e.backup != nil && e.backup.family == FamilyNAND {
			out = e.backup.ReadB7NAND(e.rom, e.model, addr, len(data))
		} else {
			out = e.rom.ReadB7(e.model, addr, len(data))
		}
		copy(data, out)
		return 0

	case 0xB8: // chip ID
		fillID(data, e.rom.ID())
		return 0
	}
	return 0
}

// commandFinish runs after a transfer's final word, flushing any
// write-buffering and advancing KEY2's stream state.
func (e *CartEngine) commandFinish(cmd [8]byte, data []byte) {
	if e.backup != nil && e.backup.family == FamilyNAND && e.encMode == EncKey2 {
		e.backup.FinishNANDCommand(cmd[:], data, len(data))
	}
	if e.encMode == EncKey2 && (cmd[0] == 0xB7 || cmd[0] == 0xB8) {
		e.key2.Apply(len(data))
	}
}

func fill(data []byte, v byte) {
	for i := range data {
		data[i] = v
	}
}

func fillID(data []byte, id uint32) {
	for i := 0; i+4 <= len(data); i += 4 {
		data[i] = byte(id)
		data[i+1] = byte(id >> 8)
		data[i+2] = byte(id >> 16)
		data[i+3] = byte(id >> 24)
	}
}
