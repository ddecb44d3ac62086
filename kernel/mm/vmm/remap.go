package vmm

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/multiboot"
)

const (
	// vgaTextBufferAddr is the physical address of the legacy text-mode
	// buffer used when the bootloader does not report a framebuffer.
	vgaTextBufferAddr = uintptr(0xb8000)

	// vgaTextBufferSize covers an 80x25 screen with 2 bytes per cell.
	vgaTextBufferSize = uintptr(80 * 25 * 2)
)

var (
	errSectionNotAligned = &kernel.Error{Module: "vmm", Message: "kernel ELF sections must be page aligned"}

	// kernelTempPage is used by RemapKernel to reach the P4 tables that are
	// not reachable through the recursive mapping.
	kernelTempPage TemporaryPage

	// sectionRemapper is a global so that the closure passed to
	// VisitElfSections does not need to capture any stack variable.
	sectionRemapper struct {
		mapper *Mapper
		alloc  mm.FrameAllocator
		index  int
	}
)

// BootInfo describes the memory regions that must remain accessible after
// the kernel switches to its own page tables.
type BootInfo struct {
	// VisitElfSections enumerates the sections of the kernel image.
	VisitElfSections func(multiboot.ElfSectionVisitor)

	// The multiboot information blob.
	MultibootStart, MultibootEnd uintptr

	// The ELF string table that names the kernel sections.
	StrTabStart, StrTabEnd uintptr

	// The text-mode video buffer that the console writes to.
	VGABufferAddr, VGABufferSize uintptr
}

// BootInfoFromMultiboot collects a BootInfo from the multiboot information
// blob registered via multiboot.SetInfoPtr. The framebuffer reported by the
// bootloader is used for the video buffer if it is an EGA text buffer.
func BootInfoFromMultiboot() BootInfo {
	info := BootInfo{
		VisitElfSections: multiboot.VisitElfSections,
		VGABufferAddr:    vgaTextBufferAddr,
		VGABufferSize:    vgaTextBufferSize,
	}

	info.MultibootStart, info.MultibootEnd = multiboot.InfoRegion()
	info.StrTabStart, info.StrTabEnd = multiboot.StrTabRegion()

	if fb, ok := multiboot.GetFramebufferInfo(); ok && fb.Type == multiboot.FramebufferTypeEGA {
		info.VGABufferAddr = uintptr(fb.PhysAddr)
		info.VGABufferSize = uintptr(fb.Pitch) * uintptr(fb.Height)
	}

	return info
}

// RemapKernel builds a new set of page tables that identity-maps the video
// buffer, the multiboot information blob, the ELF string table and every
// allocated kernel section using the section permissions.
// It then activates the new tables and unmaps the page that corresponds to
// the old P4 frame, which is returned as the kernel stack guard page.
//
// Frames for the new tables are allocated from alloc. An error is returned
// if no frame is available for the new P4 table; running out of frames
// later on is fatal.
func RemapKernel(alloc mm.FrameAllocator, boot BootInfo) (mm.Page, *kernel.Error) {
	var guardPage mm.Page

	logWriter.Sink = kfmt.GetOutputSink()

	p4Frame, err := alloc.AllocFrame()
	if err != nil {
		return 0, err
	}

	withMapper(func(active *ActivePageTable) {
		kernelTempPage = NewTemporaryPage(mm.PageFromAddress(tempMappingAddr), alloc)
		newTable := NewInactivePageTable(p4Frame, active, &kernelTempPage)

		active.With(&newTable, &kernelTempPage, func(mapper *Mapper) {
			kfmt.Fprintf(&logWriter, "identity mapping video buffer at 0x%x\n", boot.VGABufferAddr)
			remapRegion(mapper, boot.VGABufferAddr, boot.VGABufferSize, FlagRW, alloc)

			// The multiboot mapping extends up to the string table when the
			// table follows the info block.
			mbEnd := boot.MultibootEnd
			if boot.StrTabStart >= boot.MultibootStart && boot.StrTabEnd > mbEnd {
				mbEnd = boot.StrTabEnd
			}
			kfmt.Fprintf(&logWriter, "identity mapping multiboot info at 0x%x - 0x%x\n", boot.MultibootStart, mbEnd)
			remapRegion(mapper, boot.MultibootStart, mbEnd-boot.MultibootStart, FlagPresent, alloc)
			kfmt.Fprintf(&logWriter, "identity mapping ELF string table at 0x%x - 0x%x\n", boot.StrTabStart, boot.StrTabEnd)
			remapRegion(mapper, boot.StrTabStart, boot.StrTabEnd-boot.StrTabStart, FlagPresent, alloc)

			kfmt.Fprintf(&logWriter, "identity mapping kernel sections:\n")
			sectionRemapper.mapper = mapper
			sectionRemapper.alloc = alloc
			sectionRemapper.index = 0
			boot.VisitElfSections(remapSection)
			sectionRemapper.mapper = nil
			sectionRemapper.alloc = nil
		})

		oldTable := active.Switch(newTable)

		// The old P4 frame lies inside the boot stack area of the kernel
		// image. Unmapping its page catches stack overflows; the frame
		// itself stays owned by the kernel image.
		guardPage = mm.PageFromAddress(oldTable.P4Frame().Address())
		active.clearMapping(guardPage)
		kfmt.Fprintf(&logWriter, "kernel stack guard page at 0x%x\n", guardPage.Address())
	})

	return guardPage, nil
}

// remapSection identity-maps an allocated ELF section with page flags that
// match the section permissions.
func remapSection(name string, secFlags multiboot.ElfSectionFlag, address uintptr, size uint64) {
	if secFlags&multiboot.ElfSectionAllocated == 0 {
		return
	}

	if address&(mm.PageSize-1) != 0 {
		panic(errSectionNotAligned)
	}

	flags := FlagsFromElfSection(secFlags)

	kfmt.Fprintf(&logWriter, "\t[%2d] %20s at 0x%x, size: %8x, flags: ", sectionRemapper.index, name, address, size)
	DescribeFlags(&logWriter, flags)
	kfmt.Fprintf(&logWriter, "\n")
	sectionRemapper.index++

	remapRegion(sectionRemapper.mapper, address, uintptr(size), flags, sectionRemapper.alloc)
}

// remapRegion identity-maps all frames that overlap [start, start+size).
// Regions of the kernel image may share a page (e.g. a string table next to a
// data section); such a page keeps a single mapping whose flags are merged
// with mergeFlags. A page that is mapped to a different frame panics with
// ErrPageAlreadyMapped.
func remapRegion(mapper *Mapper, start, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	if size == 0 {
		return
	}

	if !nxEnabled {
		flags &^= FlagNoExecute
	}

	frames := mm.FrameRangeInclusive(mm.FrameFromAddress(start), mm.FrameFromAddress(start+size-1))
	for frame, ok := frames.Next(); ok; frame, ok = frames.Next() {
		page := mm.PageFromAddress(frame.Address())
		entry, ok := mapper.p1Entry(page)
		if !ok || entry.IsUnused() {
			mapper.IdentityMap(frame, flags, alloc)
			continue
		}

		if mapped, _ := entry.Frame(); mapped != frame {
			panic(ErrPageAlreadyMapped)
		}

		entry.Set(frame, mergeFlags(entry.Flags(), flags|FlagPresent))
		flushTLBEntryFn(page.Address())
	}
}

// mergeFlags returns the flags of a page that is shared by two regions. The
// page is writable if either region is writable and non-executable only if
// both regions are.
func mergeFlags(a, b PageTableEntryFlag) PageTableEntryFlag {
	merged := (a | b) &^ FlagNoExecute
	if a&b&FlagNoExecute != 0 {
		merged |= FlagNoExecute
	}
	return merged
}
