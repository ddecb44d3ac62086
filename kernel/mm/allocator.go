package mm

import "github.com/christiankuhl/titanium/kernel"

var (
	// ErrOutOfMemory is returned by frame allocators that have no usable
	// frame left. The mapper treats it as fatal.
	ErrOutOfMemory = &kernel.Error{Module: "mm", Message: "out of memory"}

	// frameAllocator points to the allocator registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocator
)

// FrameAllocator is implemented by types that can hand out physical frames.
type FrameAllocator interface {
	// AllocFrame reserves a free physical frame. Allocators return
	// (InvalidFrame, ErrOutOfMemory) once they are exhausted.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame returns a frame previously obtained via AllocFrame.
	FreeFrame(Frame) *kernel.Error
}

// SetFrameAllocator registers the allocator that will be used by the vmm code
// when new physical frames need to be allocated after boot.
func SetFrameAllocator(alloc FrameAllocator) { frameAllocator = alloc }

// ActiveFrameAllocator returns the allocator registered via SetFrameAllocator.
func ActiveFrameAllocator() FrameAllocator { return frameAllocator }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, ErrOutOfMemory
	}
	return frameAllocator.AllocFrame()
}
