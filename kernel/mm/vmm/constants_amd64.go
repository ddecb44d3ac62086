package vmm

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// entriesPerTable is the number of entries in a page table at any level.
	entriesPerTable = 512

	// entryIndexBits is the number of virtual address bits that select an
	// entry at each page level.
	entryIndexBits = 9

	// recursiveIndex is the P4 slot that points back to the P4 itself.
	recursiveIndex = entriesPerTable - 1

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// p4VirtualAddr is a special virtual address that exploits the
	// recursive mapping in the last P4 entry to allow accessing the P4
	// table using the system's MMU address translation mechanism. By
	// setting all page level bits to 1 the MMU keeps following the last
	// P4 entry for all page levels landing on the P4.
	p4VirtualAddr = uintptr(0xfffffffffffff000)

	// tempMappingAddr is a reserved virtual page address used for
	// temporary physical page mappings (e.g. when initializing inactive
	// page tables). For amd64 this address uses the following table
	// indices: 510, 511, 511, 511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// hugePage1GFrames and hugePage2MFrames are the number of 4K frames
	// covered by a P3 and a P2 huge page respectively.
	hugePage1GFrames = entriesPerTable * entriesPerTable
	hugePage2MFrames = entriesPerTable
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set on P3 (1G) or P2 (2M) entries that map a
	// physical region directly instead of pointing to a lower level table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable
	// code. It is only honored by the CPU once the NXE bit is enabled.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
