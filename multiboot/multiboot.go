// Package multiboot reads the memory map, the ELF section headers and the
// framebuffer description out of the multiboot2 information block that the
// bootloader hands to the kernel.
package multiboot

import "unsafe"

var (
	infoPtr  uintptr
	infoData view

	// physMemFn returns a byte slice over size bytes of identity-mapped
	// physical memory starting at addr. It is used to reach the ELF string
	// table and is mocked by tests.
	physMemFn = func(addr, size uintptr) []byte {
		if addr == 0 || size == 0 {
			return nil
		}
		return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	}
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed specifies a 256-color palette.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// Usable returns true if the region can be handed out by a frame allocator.
func (e MemoryMapEntry) Usable() bool {
	return e.Type == MemAvailable
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(MemoryMapEntry) bool

// ElfSectionFlag defines an OR-able flag associated with an ElfSection.
type ElfSectionFlag uint32

const (
	// ElfSectionWritable marks the section as writable.
	ElfSectionWritable ElfSectionFlag = 1 << iota

	// ElfSectionAllocated means that the section is allocated in memory
	// when the image is loaded (e.g .bss sections)
	ElfSectionAllocated

	// ElfSectionExecutable marks the section as executable.
	ElfSectionExecutable
)

// ElfSectionVisitor defines a visitor function that gets invoked by
// VisitElfSections for each ELF section that belongs to the loaded kernel
// image.
type ElfSectionVisitor func(name string, flags ElfSectionFlag, address uintptr, size uint64)

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoPtr, infoData = ptr, nil
	if ptr == 0 {
		return
	}

	// The total size is the first field of the block; read it through a
	// header-sized window before exposing the whole block.
	hdr := view(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), infoHeaderSize))
	totalSize, _ := hdr.u32(infoTotalSizeOffset)
	if totalSize < infoHeaderSize {
		return
	}
	infoData = view(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), totalSize))
}

// InfoRegion returns the physical extent [start, end) of the multiboot
// information block.
func InfoRegion() (start, end uintptr) {
	return infoPtr, infoPtr + uintptr(len(infoData))
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	payload, ok := findTagByType(tagMemoryMap)
	if !ok {
		return
	}

	entrySize, ok := payload.u32(mmapEntrySizeOffset)
	if !ok || entrySize < mmapEntryMinSize {
		return
	}

	for off := uint64(mmapEntriesOffset); ; off += uint64(entrySize) {
		raw, ok := payload.sub(off, uint64(entrySize))
		if !ok {
			return
		}

		var entry MemoryMapEntry
		entry.PhysAddress, _ = raw.u64(mmapEntryAddrOffset)
		entry.Length, _ = raw.u64(mmapEntryLengthOffset)
		entryType, _ := raw.u32(mmapEntryTypeOffset)
		entry.Type = MemoryEntryType(entryType)

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// elfSection is the subset of a 64-bit ELF section header used by the kernel.
type elfSection struct {
	nameIndex   uint32
	sectionType uint32
	flags       uint64
	address     uint64
	size        uint64
}

// elfSectionTable returns the raw section headers, the size of each header
// and the index of the section string table.
func elfSectionTable() (sections view, num, entSize, strTabIndex uint64, ok bool) {
	payload, found := findTagByType(tagElfSymbols)
	if !found {
		return nil, 0, 0, 0, false
	}

	n, ok1 := payload.u32(elfNumSectionsOffset)
	sz, ok2 := payload.u32(elfSectionSizeOffset)
	idx, ok3 := payload.u32(elfStrTabIndexOffset)
	if !ok1 || !ok2 || !ok3 || sz < elfSecMinSize {
		return nil, 0, 0, 0, false
	}

	sections, ok = payload.sub(elfSectionsOffset, uint64(n)*uint64(sz))
	if !ok {
		return nil, 0, 0, 0, false
	}
	return sections, uint64(n), uint64(sz), uint64(idx), true
}

func readElfSection(sections view, index, entSize uint64) (elfSection, bool) {
	raw, ok := sections.sub(index*entSize, entSize)
	if !ok {
		return elfSection{}, false
	}

	var sec elfSection
	sec.nameIndex, _ = raw.u32(elfSecNameOffset)
	sec.sectionType, _ = raw.u32(elfSecTypeOffset)
	sec.flags, _ = raw.u64(elfSecFlagsOffset)
	sec.address, _ = raw.u64(elfSecAddrOffset)
	sec.size, _ = raw.u64(elfSecSizeOffset)
	return sec, true
}

// VisitElfSections invokes visitor for each ELF entry that belongs to the
// loaded kernel image. Null and empty sections are skipped.
func VisitElfSections(visitor ElfSectionVisitor) {
	sections, num, entSize, strTabIndex, ok := elfSectionTable()
	if !ok {
		return
	}

	var strTab view
	if strTabSec, ok := readElfSection(sections, strTabIndex, entSize); ok {
		strTab = view(physMemFn(uintptr(strTabSec.address), uintptr(strTabSec.size)))
	}

	for index := uint64(0); index < num; index++ {
		sec, _ := readElfSection(sections, index, entSize)
		if sec.sectionType == 0 || sec.size == 0 {
			continue
		}

		visitor(sectionName(strTab, sec.nameIndex), ElfSectionFlag(sec.flags), uintptr(sec.address), sec.size)
	}
}

// sectionName returns the NULL-terminated string starting at offset within
// the string table. The returned string aliases strTab so that no memory gets
// allocated.
func sectionName(strTab view, offset uint32) string {
	if uint64(offset) >= uint64(len(strTab)) {
		return ""
	}

	end := uint64(offset)
	for ; end < uint64(len(strTab)) && strTab[end] != 0; end++ {
	}

	if end == uint64(offset) {
		return ""
	}
	return unsafe.String(&strTab[offset], int(end-uint64(offset)))
}

// KernelRegion returns the physical extent [start, end) covered by the
// allocated ELF sections of the kernel image. It returns (0, 0) if the
// bootloader did not supply the ELF section headers.
func KernelRegion() (start, end uintptr) {
	sections, num, entSize, _, ok := elfSectionTable()
	if !ok {
		return 0, 0
	}

	for index := uint64(0); index < num; index++ {
		sec, _ := readElfSection(sections, index, entSize)
		if sec.sectionType == 0 || sec.size == 0 || ElfSectionFlag(sec.flags)&ElfSectionAllocated == 0 {
			continue
		}

		secStart, secEnd := uintptr(sec.address), uintptr(sec.address+sec.size)
		if end == 0 || secStart < start {
			start = secStart
		}
		if secEnd > end {
			end = secEnd
		}
	}

	return start, end
}

// StrTabRegion returns the physical extent [start, end) of the ELF section
// name string table. It returns (0, 0) if the bootloader did not supply the
// ELF section headers.
func StrTabRegion() (start, end uintptr) {
	sections, _, entSize, strTabIndex, ok := elfSectionTable()
	if !ok {
		return 0, 0
	}

	sec, ok := readElfSection(sections, strTabIndex, entSize)
	if !ok {
		return 0, 0
	}
	return uintptr(sec.address), uintptr(sec.address + sec.size)
}

// GetFramebufferInfo returns information about the framebuffer initialized by
// the bootloader. The second return value is false if no framebuffer info is
// available.
func GetFramebufferInfo() (FramebufferInfo, bool) {
	var info FramebufferInfo

	payload, ok := findTagByType(tagFramebufferInfo)
	if !ok || !payload.has(0, fbMinSize) {
		return info, false
	}

	info.PhysAddr, _ = payload.u64(fbAddrOffset)
	info.Pitch, _ = payload.u32(fbPitchOffset)
	info.Width, _ = payload.u32(fbWidthOffset)
	info.Height, _ = payload.u32(fbHeightOffset)
	info.Bpp, _ = payload.u8(fbBppOffset)
	fbType, _ := payload.u8(fbTypeOffset)
	info.Type = FramebufferType(fbType)

	return info, true
}

// findTagByType scans the multiboot info data looking for the start of the
// specified type. It returns a view over the tag contents excluding the tag
// header.
//
// If the tag is not present in the multiboot info or the tag list is
// malformed, findTagByType returns false.
func findTagByType(want tagType) (view, bool) {
	for off := uint64(infoHeaderSize); ; {
		curType, ok1 := infoData.u32(off + tagTypeOffset)
		size, ok2 := infoData.u32(off + tagSizeOffset)
		if !ok1 || !ok2 || tagType(curType) == tagMbSectionEnd || size < tagHeaderSize {
			return nil, false
		}

		if tagType(curType) == want {
			return infoData.sub(off+tagHeaderSize, uint64(size)-tagHeaderSize)
		}

		// Tags are aligned at 8-byte aligned addresses
		off += (uint64(size) + tagAlignment - 1) &^ (tagAlignment - 1)
	}
}
