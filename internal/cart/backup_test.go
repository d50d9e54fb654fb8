package cart

import "testing"

// TestBackupWriteOneByte walks the canonical single-byte program sequence:
// write-enable, page program, one address byte, one data byte.
func TestBackupWriteOneByte(t *testing.T) {
	var calls [][2]uint32
	b := NewCartBackup(SaveTinyEEPROM, func(first, n uint32) {
		calls = append(calls, [2]uint32{first, n})
	})

	b.BeginTransaction()
	b.Transfer(0x06, false) // write-enable
	b.Transfer(0x02, false) // page program
	b.Transfer(0x10, false) // address byte
	b.Transfer(0xAA, true)  // data byte, last of transaction

	if got := b.SRAM()[0x10]; got != 0xAA {
		t.Fatalf("SRAM[0x10] = %#x, want 0xAA", got)
	}
	if b.status&statusWEL != 0 {
		t.Fatalf("WEL should be cleared after the transaction, status=%#x", b.status)
	}
	if len(calls) != 1 {
		t.Fatalf("persist called %d times, want exactly 1", len(calls))
	}
	if calls[0] != [2]uint32{0x10, 1} {
		t.Fatalf("persist called with %v, want {0x10, 1}", calls[0])
	}
}

func TestBackupWriteWithoutEnableIsIgnored(t *testing.T) {
	var called bool
	b := NewCartBackup(SaveTinyEEPROM, func(uint32, uint32) { called = true })

	b.BeginTransaction()
	b.Transfer(0x02, false)
	b.Transfer(0x20, false)
	b.Transfer(0x55, true)

	if b.SRAM()[0x20] != 0xFF {
		t.Fatalf("write without WEL should not land, got %#x", b.SRAM()[0x20])
	}
	if called {
		t.Fatalf("persist should not be called when nothing was written")
	}
}

func TestBackupMultiByteWriteSingleCallback(t *testing.T) {
	var calls [][2]uint32
	b := NewCartBackup(SaveEEPROM64K, func(first, n uint32) {
		calls = append(calls, [2]uint32{first, n})
	})

	b.BeginTransaction()
	b.Transfer(0x06, false)
	b.Transfer(0x02, false)
	b.Transfer(0x00, false)
	b.Transfer(0x10, false)
	b.Transfer(0x01, false)
	b.Transfer(0x02, false)
	b.Transfer(0x03, true)

	if calls[0] != [2]uint32{0x10, 3} {
		t.Fatalf("persist called with %v, want {0x10, 3}", calls[0])
	}
	if len(calls) != 1 {
		t.Fatalf("persist called %d times, want exactly 1 for one transaction", len(calls))
	}
}

func TestNANDWriteBufferCommit(t *testing.T) {
	var calls [][2]uint32
	b := NewCartBackup(SaveNAND16M, func(first, n uint32) {
		calls = append(calls, [2]uint32{first, n})
	})
	b.SetNANDBase(0)

	b.nand.window = 0x20000
	data := make([]byte, 1)
	b.HandleNANDCommand([]byte{0x85, 0, 0, 0, 0, 0, 0, 0}, nil, 0) // write enable
	cmd := []byte{0x81, 0x00, 0x02, 0x00, 0x00, 0, 0, 0}
	b.HandleNANDCommand(cmd, data, len(data))
	burst := make([]byte, 0x800)
	for i := range burst {
		burst[i] = 0x42
	}
	b.FinishNANDCommand(cmd, burst, len(burst))
	b.HandleNANDCommand([]byte{0x82, 0, 0, 0, 0, 0, 0, 0}, nil, 0) // commit

	if len(calls) != 1 {
		t.Fatalf("expected exactly one persist call for the NAND commit, got %d", len(calls))
	}
	off := calls[0][0]
	if b.sram[off] != 0x42 {
		t.Fatalf("SRAM at %#x = %#x, want 0x42", off, b.sram[off])
	}
}
