package types

// HardwareAddress represents the address of an MMIO register visible to
// the emulated CPUs. Only the cartridge-bus registers are named here —
// the rest of the I/O map belongs to subsystems outside this fragment's
// scope.
type HardwareAddress = uint32

const (
	// SPICnt is the 16-bit SPI/backup-memory control register. Bit 15
	// gates whether a ROMCnt write may start a transfer, bit 14 enables
	// the cart-transfer-done IRQ.
	SPICnt HardwareAddress = 0x040001A0
	// SPIData is the 8-bit SPI data shift register used by CartBackup's
	// byte-at-a-time protocol.
	SPIData HardwareAddress = 0x040001A2
	// ROMCnt is the 32-bit cartridge transfer control register. Bit 31
	// starts a transfer, bit 30 marks it a write, bit 23 signals a ready
	// word, bits 26:24 encode the payload size.
	ROMCnt HardwareAddress = 0x040001A4
	// ROMCmd is the 8-byte command register latched at transfer start.
	ROMCmd HardwareAddress = 0x040001A8
	// ROMSeed0 and ROMSeed1 seed the KEY2 shift registers.
	ROMSeed0 HardwareAddress = 0x040001B0
	ROMSeed1 HardwareAddress = 0x040001B8
	// ROMData is the 32-bit data port the CPU drains one word at a time
	// during a transfer.
	ROMData HardwareAddress = 0x04100010
)

// IRQ line identifiers raised by the cart engine.
type IRQ int

const (
	// CartXferDone fires when a transfer completes, gated by SPICnt bit 14.
	CartXferDone IRQ = iota
	// CartIREQMC fires on cart insertion/ejection and cart-generated conditions.
	CartIREQMC
)
