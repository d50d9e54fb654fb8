// Package romload loads cartridge dumps off disk, transparently
// decompressing the archive formats a ROM is commonly distributed in.
package romload

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

// romExtensions are the cartridge-dump extensions that need no
// decompression: a plain retail or homebrew NDS/DSi image.
var romExtensions = map[string]bool{
	".nds": true,
	".srl": true,
	".dsi": true,
	".ids": true,
}

// Load reads filename and returns the raw cartridge bytes, transparently
// decompressing .gz/.zip/.7z archives by extracting their first member.
func Load(filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("romload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("romload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if romExtensions[ext] {
		return data, nil
	}

	switch ext {
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("romload: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)

	case ".zip":
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("romload: %w", err)
		}
		if len(zr.File) == 0 {
			return nil, fmt.Errorf("romload: empty zip archive")
		}
		member, err := zr.File[0].Open()
		if err != nil {
			return nil, fmt.Errorf("romload: %w", err)
		}
		defer member.Close()
		return io.ReadAll(member)

	case ".7z":
		sr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("romload: %w", err)
		}
		if len(sr.File) == 0 {
			return nil, fmt.Errorf("romload: empty 7z archive")
		}
		member, err := sr.File[0].Open()
		if err != nil {
			return nil, fmt.Errorf("romload: %w", err)
		}
		defer member.Close()
		return io.ReadAll(member)

	default:
		return data, nil
	}
}

// SavePath derives the on-disk backup-memory path for a loaded ROM: the
// ROM's own path with its extension replaced by .sav.
func SavePath(romFilename string) string {
	ext := filepath.Ext(romFilename)
	return strings.TrimSuffix(romFilename, ext) + ".sav"
}
