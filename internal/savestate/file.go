package savestate

import (
	"bytes"
	"io"
	"os"

	"github.com/google/brotli/go/cbrotli"
)

// ToFile brotli-compresses a finished Writer's bytes and writes them to
// filename. The in-memory wire format (Magic/version/sections) is
// untouched; only the on-disk representation is compressed.
func ToFile(w *Writer, filename string) error {
	var buf bytes.Buffer
	out := cbrotli.NewWriter(&buf, cbrotli.WriterOptions{Quality: 9})
	if _, err := out.Write(w.Bytes()); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.WriteFile(filename, buf.Bytes(), 0644)
}

// FromFile reads and brotli-decompresses filename, returning a Reader over
// the recovered savestate bytes.
func FromFile(filename string) (*Reader, error) {
	compressed, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	r := cbrotli.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewReader(raw), nil
}
