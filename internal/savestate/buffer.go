// Package savestate implements the versioned, section-indexed binary
// serializer used to snapshot and restore emulator state. The wire
// layout is byte-exact compatible with existing dumps, so this package
// never reorders or repacks fields; it only appends.
package savestate

import "encoding/binary"

// Magic is the 4-byte tag at the start of every savestate buffer.
const Magic = "MELN"

// MajorVersion and MinorVersion are the current savestate format version.
// A Reader rejects any buffer whose major version differs; it does not
// check the minor version, so any minor version is accepted.
const (
	MajorVersion = 10
	MinorVersion = 0
)

const (
	headerSize  = 16 // magic(4) + major(2) + minor(2) + total length(4) + reserved(4)
	sectionHead = 16 // magic(4) + length(4) + reserved(8)
)

// Writer appends a MAGIC-tagged section stream into a byte buffer. It may
// own its buffer (growing on overflow) or write into a caller-supplied
// slice (foreign-owned, where overflow is a fatal, sticky error).
type Writer struct {
	buf          []byte
	owned        bool
	pos          int
	sectionStart int // offset of the currently open section's header, -1 if none
	err          error
}

// NewOwned returns a Writer backed by a buffer it grows as needed.
func NewOwned() *Writer {
	w := &Writer{
		buf:          make([]byte, 0, 256),
		owned:        true,
		sectionStart: -1,
	}
	w.writeHeader()
	return w
}

// NewExternal returns a Writer that appends into buf without ever
// reallocating it. Writing past len(buf) latches an error and all further
// operations on this Writer become no-ops.
func NewExternal(buf []byte) *Writer {
	w := &Writer{
		buf:          buf[:0],
		owned:        false,
		sectionStart: -1,
	}
	w.writeHeader()
	return w
}

// Err returns the latched error, if any. The caller is expected to check
// this once, at end-of-snapshot.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) writeHeader() {
	w.ensure(headerSize)
	if w.err != nil {
		return
	}
	w.append([]byte(Magic))
	w.appendU16(MajorVersion)
	w.appendU16(MinorVersion)
	w.appendU32(0) // total length, back-patched by Finish
	w.appendU32(0) // reserved
}

// ensure makes sure n more bytes can be appended, growing an owned buffer
// or latching an error on a foreign one.
func (w *Writer) ensure(n int) {
	if w.err != nil {
		return
	}
	needed := w.pos + n
	if needed <= cap(w.buf) {
		return
	}
	if !w.owned {
		w.err = errOverflow
		return
	}
	newCap := 2*cap(w.buf) + n
	grown := make([]byte, len(w.buf), newCap)
	copy(grown, w.buf)
	w.buf = grown
}

func (w *Writer) append(b []byte) {
	if w.err != nil {
		return
	}
	w.buf = w.buf[:w.pos+len(b)]
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
}

func (w *Writer) appendU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.append(b[:])
}

func (w *Writer) appendU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.append(b[:])
}

func (w *Writer) appendU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.append(b[:])
}

// Section closes the previous section (back-patching its length) and
// opens a new one tagged with magic, which must be exactly 4 bytes.
func (w *Writer) Section(magic string) {
	if w.err != nil {
		return
	}
	if len(magic) != 4 {
		w.err = errBadMagicLength
		return
	}

	w.closeSection()

	w.ensure(sectionHead)
	if w.err != nil {
		return
	}
	w.sectionStart = w.pos
	w.append([]byte(magic))
	w.appendU32(0) // length, back-patched on close
	w.appendU64(0) // reserved
}

func (w *Writer) closeSection() {
	if w.sectionStart < 0 || w.err != nil {
		return
	}
	length := uint32(w.pos - w.sectionStart)
	binary.LittleEndian.PutUint32(w.buf[w.sectionStart+4:w.sectionStart+8], length)
	w.sectionStart = -1
}

// Finish closes any open section and back-patches the overall length.
// After Finish, Bytes() returns the complete snapshot.
func (w *Writer) Finish() {
	if w.err != nil {
		return
	}
	w.closeSection()
	binary.LittleEndian.PutUint32(w.buf[8:12], uint32(w.pos))
}

// Bytes returns the buffer written so far.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Write8 appends a single byte.
func (w *Writer) Write8(v uint8) {
	w.ensure(1)
	w.append([]byte{v})
}

// Write16 appends a 16-bit little-endian value.
func (w *Writer) Write16(v uint16) {
	w.ensure(2)
	w.appendU16(v)
}

// Write32 appends a 32-bit little-endian value.
func (w *Writer) Write32(v uint32) {
	w.ensure(4)
	w.appendU32(v)
}

// Write64 appends a 64-bit little-endian value.
func (w *Writer) Write64(v uint64) {
	w.ensure(8)
	w.appendU64(v)
}

// WriteBool32 appends a boolean serialized as a u32 (0 false, 1 true),
// for compatibility with older dumps.
func (w *Writer) WriteBool32(v bool) {
	if v {
		w.Write32(1)
	} else {
		w.Write32(0)
	}
}

// WriteArray appends raw bytes verbatim.
func (w *Writer) WriteArray(data []byte) {
	w.ensure(len(data))
	w.append(data)
}
