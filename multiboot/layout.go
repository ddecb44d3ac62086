package multiboot

import "encoding/binary"

// Byte offsets of the fields that this package reads from the multiboot2
// information block. All values are little-endian.
const (
	// info header
	infoTotalSizeOffset = 0
	infoHeaderSize      = 8

	// tag header; the size field includes the header but not the padding
	// that aligns the following tag to an 8-byte boundary.
	tagTypeOffset = 0
	tagSizeOffset = 4
	tagHeaderSize = 8
	tagAlignment  = 8

	// memory map tag payload
	mmapEntrySizeOffset = 0
	mmapEntriesOffset   = 8

	// memory map entry
	mmapEntryAddrOffset   = 0
	mmapEntryLengthOffset = 8
	mmapEntryTypeOffset   = 16
	mmapEntryMinSize      = 20

	// ELF symbols tag payload
	elfNumSectionsOffset = 0
	elfSectionSizeOffset = 4
	elfStrTabIndexOffset = 8
	elfSectionsOffset    = 12

	// 64-bit ELF section header
	elfSecNameOffset  = 0
	elfSecTypeOffset  = 4
	elfSecFlagsOffset = 8
	elfSecAddrOffset  = 16
	elfSecSizeOffset  = 32
	elfSecMinSize     = 40

	// framebuffer tag payload
	fbAddrOffset   = 0
	fbPitchOffset  = 8
	fbWidthOffset  = 12
	fbHeightOffset = 16
	fbBppOffset    = 20
	fbTypeOffset   = 21
	fbMinSize      = 22
)

// view is a bounds-checked, fixed-layout window over a portion of the
// multiboot information block. Reads past the end of the window fail instead
// of touching adjacent memory.
type view []byte

func (v view) has(off, size uint64) bool {
	end := off + size
	return end >= off && end <= uint64(len(v))
}

func (v view) u8(off uint64) (uint8, bool) {
	if !v.has(off, 1) {
		return 0, false
	}
	return v[off], true
}

func (v view) u32(off uint64) (uint32, bool) {
	if !v.has(off, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(v[off:]), true
}

func (v view) u64(off uint64) (uint64, bool) {
	if !v.has(off, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(v[off:]), true
}

// sub returns the size bytes starting at off.
func (v view) sub(off, size uint64) (view, bool) {
	if !v.has(off, size) {
		return nil, false
	}
	return v[off : off+size], true
}
