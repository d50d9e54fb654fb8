package romload

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadPlainROMPassesThrough(t *testing.T) {
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	path := writeTemp(t, "game.nds", want)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Load = %x, want %x", got, want)
	}
}

func TestLoadGzip(t *testing.T) {
	want := []byte("a small cartridge image")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(want)
	gz.Close()

	path := writeTemp(t, "game.nds.gz", buf.Bytes())
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Load = %q, want %q", got, want)
	}
}

func TestLoadZipTakesFirstMember(t *testing.T) {
	want := []byte("member contents")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("game.nds")
	if err != nil {
		t.Fatalf("zip.Create: %v", err)
	}
	fw.Write(want)
	zw.Close()

	path := writeTemp(t, "game.zip", buf.Bytes())
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Load = %q, want %q", got, want)
	}
}

func TestSavePathReplacesExtension(t *testing.T) {
	got := SavePath("/roms/Game Title.nds")
	want := "/roms/Game Title.sav"
	if got != want {
		t.Fatalf("SavePath = %q, want %q", got, want)
	}
}
