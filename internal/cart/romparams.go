package cart

import "sort"

// SaveMemType enumerates the eleven backup-memory capacities a ROM-params
// table entry can name.
type SaveMemType uint8

const (
	SaveNone SaveMemType = iota
	SaveTinyEEPROM
	SaveEEPROM64K
	SaveEEPROM128K
	SaveEEPROM256K
	SaveFlash512K
	SaveFlash1M
	SaveFlash8M
	SaveNAND16M
	SaveNAND64M
	SaveNAND65M
)

// saveLengths maps SaveMemType to its byte capacity.
var saveLengths = [...]uint32{
	0, 512, 8192, 65536, 131072, 262144, 524288, 1048576,
	8 * 1024 * 1024, 16 * 1024 * 1024, 65 * 1024 * 1024,
}

// Length returns a SaveMemType's backup-memory capacity in bytes.
func (t SaveMemType) Length() uint32 {
	if int(t) >= len(saveLengths) {
		return 0
	}
	return saveLengths[t]
}

// Family identifies which of the four SPI state machines a SaveMemType
// belongs to.
type Family int

const (
	FamilyNone Family = iota
	FamilyTinyEEPROM
	FamilyEEPROM
	FamilyFlash
	FamilyNAND
)

// Family classifies a SaveMemType into its backup family.
func (t SaveMemType) Family() Family {
	switch {
	case t == SaveNone:
		return FamilyNone
	case t == SaveTinyEEPROM:
		return FamilyTinyEEPROM
	case t >= SaveEEPROM64K && t <= SaveEEPROM256K:
		return FamilyEEPROM
	case t >= SaveFlash512K && t <= SaveFlash8M:
		return FamilyFlash
	case t >= SaveNAND16M && t <= SaveNAND65M:
		return FamilyNAND
	default:
		return FamilyNone
	}
}

// ROMParams is one entry of the static ROM-parameters table.
type ROMParams struct {
	GameCode    uint32
	ROMSize     uint32
	SaveMemType SaveMemType
}

// romParamsTable is a small, illustrative slice of the much larger
// game-code-sorted database retail carts are matched against; the table
// must stay sorted by GameCode for romParamsFor's binary search.
var romParamsTable = []ROMParams{
	{GameCode: 0x41444145, ROMSize: 32 * 1024 * 1024, SaveMemType: SaveEEPROM64K}, // header bytes "EADA"
	{GameCode: 0x41524145, ROMSize: 64 * 1024 * 1024, SaveMemType: SaveFlash512K}, // header bytes "EARA"
	{GameCode: 0x41534145, ROMSize: 128 * 1024 * 1024, SaveMemType: SaveFlash1M},  // header bytes "EASA"
	{GameCode: 0x59504145, ROMSize: 256 * 1024 * 1024, SaveMemType: SaveNAND16M},  // header bytes "EAPY" (DSi)
}

func init() {
	sort.Slice(romParamsTable, func(i, j int) bool {
		return romParamsTable[i].GameCode < romParamsTable[j].GameCode
	})
}

// romParamsFor performs the binary search the reference's ReadROMParams
// describes, returning the matching entry and whether one was found.
func romParamsFor(gameCode uint32) (ROMParams, bool) {
	table := romParamsTable
	i := sort.Search(len(table), func(i int) bool {
		return table[i].GameCode >= gameCode
	})
	if i < len(table) && table[i].GameCode == gameCode {
		return table[i], true
	}
	return ROMParams{}, false
}

// cartID synthesizes the cart's ID register value.
func cartID(romSize uint32, saveType SaveMemType, dsi bool) uint32 {
	id := uint32(0xC2)

	sizeMiB := romSize >> 20
	if romSize >= 1024*1024 && romSize <= 128*1024*1024 {
		id |= ((sizeMiB - 1) & 0xFF) << 8
	} else {
		id |= ((0x100 - (romSize >> 28)) & 0xFF) << 8
	}

	if saveType.Family() == FamilyNAND {
		id |= 0x08000000
	}
	if dsi {
		id |= 0x40000000
	}
	return id
}
