package vmm

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrPageAlreadyMapped is raised when mapping a page whose P1 entry is
	// already in use.
	ErrPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}

	errHugePageMisaligned = &kernel.Error{Module: "vmm", Message: "huge page frame is not aligned to the page size"}

	// nxEnabled is set once the NXE bit has been enabled. Until then,
	// FlagNoExecute is stripped from new mappings as the CPU treats bit 63
	// as a reserved bit.
	nxEnabled bool
)

// Mapper manipulates the page tables of the address space that is reachable
// through the recursive slot of the active P4 table. While the bootstrap
// protocol redirects that slot (see ActivePageTable.With), a Mapper operates
// on the inactive table instead.
type Mapper struct{}

// TranslatePage returns the frame that page is mapped to. The walk honors
// 1G (P3) and 2M (P2) huge page entries. The second return value is false if
// the page is not mapped.
//
// TranslatePage panics with errHugePageMisaligned if a huge page entry points
// to a frame that is not aligned to the huge page size.
func (m *Mapper) TranslatePage(page mm.Page) (mm.Frame, bool) {
	p3Addr, ok := nextTable(p4VirtualAddr, page.P4Index())
	if !ok {
		return mm.InvalidFrame, false
	}

	if p2Addr, ok := nextTable(p3Addr, page.P3Index()); ok {
		if p1Addr, ok := nextTable(p2Addr, page.P2Index()); ok {
			if frame, ok := tablePtrFn(p1Addr).entry(page.P1Index()).Frame(); ok {
				return frame, true
			}
		}
	}

	// 1G page?
	p3Entry := tablePtrFn(p3Addr).entry(page.P3Index())
	if startFrame, ok := p3Entry.Frame(); ok && p3Entry.HasFlags(FlagHugePage) {
		if startFrame%hugePage1GFrames != 0 {
			panic(errHugePageMisaligned)
		}
		return startFrame + mm.Frame(page.P2Index()*entriesPerTable+page.P1Index()), true
	}

	// 2M page?
	if p2Addr, ok := nextTable(p3Addr, page.P3Index()); ok {
		p2Entry := tablePtrFn(p2Addr).entry(page.P2Index())
		if startFrame, ok := p2Entry.Frame(); ok && p2Entry.HasFlags(FlagHugePage) {
			if startFrame%hugePage2MFrames != 0 {
				panic(errHugePageMisaligned)
			}
			return startFrame + mm.Frame(page.P1Index()), true
		}
	}

	return mm.InvalidFrame, false
}

// Translate returns the physical address that corresponds to the supplied
// virtual address. The second return value is false if the address is not
// mapped.
func (m *Mapper) Translate(virtAddr uintptr) (uintptr, bool) {
	frame, ok := m.TranslatePage(mm.PageFromAddress(virtAddr))
	if !ok {
		return 0, false
	}

	return frame.Address() + PageOffset(virtAddr), true
}

// MapTo establishes a mapping between page and frame. Missing intermediate
// tables are allocated from alloc. FlagPresent is always added to flags.
//
// MapTo panics with ErrPageAlreadyMapped if the page is already mapped and
// with the allocator error if a table cannot be allocated.
func (m *Mapper) MapTo(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	p3Addr := nextTableCreate(p4VirtualAddr, page.P4Index(), alloc)
	p2Addr := nextTableCreate(p3Addr, page.P3Index(), alloc)
	p1Addr := nextTableCreate(p2Addr, page.P2Index(), alloc)

	entry := tablePtrFn(p1Addr).entry(page.P1Index())
	if !entry.IsUnused() {
		panic(ErrPageAlreadyMapped)
	}

	if !nxEnabled {
		flags &^= FlagNoExecute
	}

	entry.Set(frame, flags|FlagPresent)
	flushTLBEntryFn(page.Address())
}

// Map allocates a frame from alloc and maps page to it. Running out of
// frames is fatal.
func (m *Mapper) Map(page mm.Page, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	frame, err := alloc.AllocFrame()
	if err != nil {
		panic(err)
	}

	m.MapTo(page, frame, flags, alloc)
}

// IdentityMap maps frame to the page with the same address. It panics with
// mm.ErrNonCanonicalAddress if the frame address is not a canonical virtual
// address.
func (m *Mapper) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	m.MapTo(mm.PageFromAddress(frame.Address()), frame, flags, alloc)
}

// Unmap removes the mapping for page and passes the frame that backed it to
// alloc.FreeFrame, returning its result. Page tables that become empty are
// not reclaimed.
//
// Unmap panics with ErrInvalidMapping if the page is not mapped.
func (m *Mapper) Unmap(page mm.Page, alloc mm.FrameAllocator) *kernel.Error {
	return alloc.FreeFrame(m.clearMapping(page))
}

// clearMapping removes the mapping for page, flushes it from the TLB and
// returns the frame that backed it. The frame is not released; it is used
// for mappings whose frames are owned by someone else (temporary mappings,
// guard pages).
func (m *Mapper) clearMapping(page mm.Page) mm.Frame {
	if _, ok := m.TranslatePage(page); !ok {
		panic(ErrInvalidMapping)
	}

	entry, ok := m.p1Entry(page)
	if !ok {
		panic(errHugePagesNotSupported)
	}

	frame, _ := entry.Frame()
	entry.SetUnused()
	flushTLBEntryFn(page.Address())

	return frame
}

// p1Entry returns the P1 entry for page. The second return value is false if
// one of the intermediate tables is missing or is a huge page entry.
func (m *Mapper) p1Entry(page mm.Page) (*pageTableEntry, bool) {
	p3Addr, ok := nextTable(p4VirtualAddr, page.P4Index())
	if !ok {
		return nil, false
	}
	p2Addr, ok := nextTable(p3Addr, page.P3Index())
	if !ok {
		return nil, false
	}
	p1Addr, ok := nextTable(p2Addr, page.P2Index())
	if !ok {
		return nil, false
	}

	return tablePtrFn(p1Addr).entry(page.P1Index()), true
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}
