package vmm

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/mm"
)

// AllocateAnywhere makes sure that the virtual range [virtAddr,
// virtAddr+size) is mapped with the supplied flags. Pages that are not yet
// mapped get backed by frames from the active frame allocator; pages that
// are already mapped are left untouched, which makes repeated calls for the
// same range harmless. The range is extended to whole pages and virtAddr is
// returned.
func AllocateAnywhere(virtAddr, size uintptr, flags PageTableEntryFlag) uintptr {
	if size == 0 {
		return virtAddr
	}

	withMapper(func(active *ActivePageTable) {
		alloc := activeFrameAllocator()
		pages := mm.PageRangeInclusive(mm.PageFromAddress(virtAddr), mm.PageFromAddress(virtAddr+size-1))
		for page, ok := pages.Next(); ok; page, ok = pages.Next() {
			if _, mapped := active.TranslatePage(page); mapped {
				continue
			}
			active.Map(page, flags, alloc)
		}
	})

	return virtAddr
}

// AllocateIdentityMapped makes sure that the physical range [physAddr,
// physAddr+size) is reachable at the same virtual addresses. Drivers use it
// to access memory-mapped device registers and buffers. Like
// AllocateAnywhere, pages that are already mapped are skipped and physAddr
// is returned.
func AllocateIdentityMapped(physAddr, size uintptr, flags PageTableEntryFlag) uintptr {
	if size == 0 {
		return physAddr
	}

	withMapper(func(active *ActivePageTable) {
		identityMapRegion(&active.Mapper, physAddr, size, flags, activeFrameAllocator())
	})

	return physAddr
}

// identityMapRegion identity-maps all frames that overlap [start, start+size)
// and are not mapped yet. Pages that are already mapped keep their mapping.
func identityMapRegion(mapper *Mapper, start, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	frames := mm.FrameRangeInclusive(mm.FrameFromAddress(start), mm.FrameFromAddress(start+size-1))
	for frame, ok := frames.Next(); ok; frame, ok = frames.Next() {
		if _, mapped := mapper.TranslatePage(mm.PageFromAddress(frame.Address())); mapped {
			continue
		}
		mapper.IdentityMap(frame, flags, alloc)
	}
}

// activeFrameAllocator returns the registered frame allocator. It panics with
// mm.ErrOutOfMemory if no allocator has been registered yet.
func activeFrameAllocator() mm.FrameAllocator {
	alloc := mm.ActiveFrameAllocator()
	if alloc == nil {
		panic(mm.ErrOutOfMemory)
	}
	return alloc
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the address is not mapped.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		physAddr uintptr
		ok       bool
	)

	withMapper(func(active *ActivePageTable) {
		physAddr, ok = active.Translate(virtAddr)
	})

	if !ok {
		return 0, ErrInvalidMapping
	}

	return physAddr, nil
}
