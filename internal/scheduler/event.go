//go:generate go run golang.org/x/tools/cmd/stringer -type=EventType -output=event_string.go
package scheduler

// EventType identifies a kind of scheduled event. Only one event of each
// type may be pending at a time — scheduling the same type again
// replaces the pending occurrence.
type EventType uint8

const (
	// RomPrepareData fires when the next 32-bit word of a cartridge
	// transfer is ready to be latched into ROMData.
	RomPrepareData EventType = iota
	// RomEndTransfer fires when a cartridge transfer has delivered its
	// last word (or had none to deliver) and should be torn down.
	RomEndTransfer
)

const eventTypes = 2

// Event is a single node in the scheduler's sorted linked list.
type Event struct {
	cycle     uint64
	eventType EventType
	next      *Event
	handler   func()
}
