package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// entriesPerTableShift is equal to log2 of the number of entries in a
	// page table at any level of the hierarchy.
	entriesPerTableShift = uintptr(9)

	// entryIndexMask selects a single 9-bit table index.
	entryIndexMask = uintptr(1<<entriesPerTableShift) - 1

	// canonicalLowEnd is the first address past the lower canonical half.
	canonicalLowEnd = uintptr(0x0000_8000_0000_0000)

	// canonicalHighStart is the first address of the upper canonical half.
	canonicalHighStart = uintptr(0xffff_8000_0000_0000)
)
