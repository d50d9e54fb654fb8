package savestate

import "errors"

var (
	errOverflow       = errors.New("savestate: foreign buffer overflow")
	errBadMagicLength = errors.New("savestate: section magic must be 4 bytes")
	errBadMagic       = errors.New("savestate: bad magic")
	errMajorMismatch  = errors.New("savestate: major version mismatch")
	errShortBuffer    = errors.New("savestate: stored length exceeds buffer length")
)
