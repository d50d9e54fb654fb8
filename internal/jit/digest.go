package jit

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// Digest returns a fast content hash of the block's identity: fingerprint
// plus covered ranges and entry point. Fingerprint remains the cache's
// lookup key; Digest feeds ContentDigest's cache-wide fold.
func (b *Block) Digest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(b.Fingerprint()))
	h.Write(buf[:])
	for _, r := range b.Ranges {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Region))
		binary.LittleEndian.PutUint32(buf[4:8], r.Start)
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[0:4], r.End)
		h.Write(buf[0:4])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(b.Entry))
	h.Write(buf[:])
	return h.Sum64()
}

// ContentDigest XOR-folds the digests of every live block into one
// cache-wide key: equal keys mean the live block set is unchanged between
// two observations. XOR keeps the fold independent of iteration order.
// The monitor's stats stream and jitbench's end-of-run summary report
// this instead of walking or copying the block set.
func (c *Cache) ContentDigest() uint64 {
	var d uint64
	for _, b := range c.blocks {
		if b == nil || b.Retired {
			continue
		}
		d ^= b.Digest()
	}
	return d
}
