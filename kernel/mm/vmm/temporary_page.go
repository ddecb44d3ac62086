package vmm

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/mm"
)

var (
	errTemporaryPageInUse = &kernel.Error{Module: "vmm", Message: "temporary page is already mapped"}
	errTinyAllocatorFull  = &kernel.Error{Module: "vmm", Message: "temporary page allocator can only hold 3 frames"}
)

// tinyAllocator holds the frames needed to create the P3, P2 and P1 tables
// for the temporary page. Keeping them separate from the main allocator
// allows the temporary page to be mapped while the main allocator is busy
// supplying frames for the tables that are being built.
type tinyAllocator struct {
	frames [pageLevels - 1]mm.Frame
}

// AllocFrame hands out one of the reserved frames.
func (a *tinyAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for i := 0; i < len(a.frames); i++ {
		if a.frames[i].Valid() {
			frame := a.frames[i]
			a.frames[i] = mm.InvalidFrame
			return frame, nil
		}
	}

	return mm.InvalidFrame, mm.ErrOutOfMemory
}

// FreeFrame returns a frame to the allocator.
func (a *tinyAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	for i := 0; i < len(a.frames); i++ {
		if !a.frames[i].Valid() {
			a.frames[i] = frame
			return nil
		}
	}

	return errTinyAllocatorFull
}

// TemporaryPage is a fixed virtual page that is used for accessing physical
// frames that are not mapped in the active address space, such as the P4
// table of an inactive page table hierarchy.
type TemporaryPage struct {
	page  mm.Page
	alloc tinyAllocator
}

// NewTemporaryPage returns a TemporaryPage for page whose tables get
// allocated from frames reserved upfront from alloc.
func NewTemporaryPage(page mm.Page, alloc mm.FrameAllocator) TemporaryPage {
	tp := TemporaryPage{page: page}
	for i := 0; i < len(tp.alloc.frames); i++ {
		// A failed allocation leaves the slot empty; mapping the
		// temporary page will panic if the frame turns out to be
		// needed.
		tp.alloc.frames[i], _ = alloc.AllocFrame()
	}
	return tp
}

// Page returns the virtual page used by the temporary mapping.
func (tp *TemporaryPage) Page() mm.Page {
	return tp.page
}

// Map maps the temporary page to frame in the active page table and returns
// the virtual address of the mapping.
//
// Map panics with errTemporaryPageInUse if the page is already mapped.
func (tp *TemporaryPage) Map(frame mm.Frame, active *ActivePageTable) uintptr {
	if _, mapped := active.TranslatePage(tp.page); mapped {
		panic(errTemporaryPageInUse)
	}

	active.MapTo(tp.page, frame, FlagRW, &tp.alloc)
	return tp.page.Address()
}

// Unmap removes the temporary mapping from the active page table. The frame
// it pointed to is left untouched.
func (tp *TemporaryPage) Unmap(active *ActivePageTable) {
	active.clearMapping(tp.page)
}
