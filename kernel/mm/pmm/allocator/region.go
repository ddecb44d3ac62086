// Package allocator provides the physical frame allocator that the kernel
// uses while it sets up its address space.
package allocator

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/multiboot"
)

var (
	errFreeNotSupported = &kernel.Error{Module: "region_alloc", Message: "freeing frames is not supported"}

	// logWriter prefixes the allocator's boot log lines. It is a global so
	// that printing does not require any memory allocation.
	logWriter = kfmt.PrefixWriter{Prefix: []byte("[region_alloc] ")}
)

// MemRegionSource enumerates the memory regions reported by the firmware.
// multiboot.VisitMemRegions satisfies this type.
type MemRegionSource func(multiboot.MemRegionVisitor)

// ReservedRegions describes the physical extents that already hold data when
// the kernel starts and must never be handed out. Each extent is specified as
// [start, end); an extent with end <= start is ignored.
type ReservedRegions struct {
	KernelStart, KernelEnd       uintptr
	MultibootStart, MultibootEnd uintptr
	StrTabStart, StrTabEnd       uintptr
}

// reservedRange is a reserved extent expressed as an inclusive frame range.
type reservedRange struct {
	name                  string
	startAddr, endAddr    uintptr
	firstFrame, lastFrame mm.Frame
	valid                 bool
}

func newReservedRange(name string, start, end uintptr) reservedRange {
	if end <= start {
		return reservedRange{name: name}
	}

	return reservedRange{
		name:       name,
		startAddr:  start,
		endAddr:    end,
		firstFrame: mm.FrameFromAddress(start),
		lastFrame:  mm.FrameFromAddress(end - 1),
		valid:      true,
	}
}

func (r *reservedRange) contains(frame mm.Frame) bool {
	return r.valid && frame >= r.firstFrame && frame <= r.lastFrame
}

// RegionFrameAllocator hands out physical frames from the usable regions of
// the firmware memory map.
//
// The allocator keeps a cursor (nextFreeFrame) that only ever moves forward
// and the region that the cursor currently points into. Frames that belong to
// the kernel image, the multiboot information block or the ELF section string
// table are skipped. Since the cursor never moves backwards, no frame is
// returned twice.
//
// Frames cannot be returned to the allocator: FreeFrame reports
// errFreeNotSupported and the frame is accounted as leaked.
type RegionFrameAllocator struct {
	visitRegions MemRegionSource

	// nextFreeFrame is the next frame candidate.
	nextFreeFrame mm.Frame

	// The frame bounds of the region that nextFreeFrame points into.
	regionFirstFrame, regionLastFrame mm.Frame
	haveRegion                        bool

	reserved [3]reservedRange

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// leakedCount tracks the number of frames passed to FreeFrame.
	leakedCount uint64
}

// Init sets up the allocator state and selects the first usable region.
func (alloc *RegionFrameAllocator) Init(regions MemRegionSource, reserved ReservedRegions) {
	*alloc = RegionFrameAllocator{
		visitRegions: regions,
		reserved: [3]reservedRange{
			newReservedRange("kernel image", reserved.KernelStart, reserved.KernelEnd),
			newReservedRange("multiboot info", reserved.MultibootStart, reserved.MultibootEnd),
			newReservedRange("ELF string table", reserved.StrTabStart, reserved.StrTabEnd),
		},
	}
	alloc.chooseNextRegion()
}

// regionFrames returns the inclusive frame bounds of a memory region. Region
// addresses reported by the firmware may not be page-aligned; the start is
// rounded up and the end is rounded down.
func regionFrames(region multiboot.MemoryMapEntry) (first, last mm.Frame, ok bool) {
	pageSizeMinus1 := uint64(mm.PageSize - 1)
	startAddr := (region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1
	endAddr := (region.PhysAddress + region.Length) &^ pageSizeMinus1
	if endAddr <= startAddr {
		return 0, 0, false
	}

	return mm.Frame(startAddr >> mm.PageShift), mm.Frame((endAddr >> mm.PageShift) - 1), true
}

// chooseNextRegion selects the usable region with the lowest base address
// that still contains frames at or after the cursor and moves the cursor to
// its first frame if needed.
func (alloc *RegionFrameAllocator) chooseNextRegion() {
	var (
		found               bool
		bestBase            uint64
		bestFirst, bestLast mm.Frame
	)

	if alloc.visitRegions != nil {
		alloc.visitRegions(func(region multiboot.MemoryMapEntry) bool {
			// Ignore reserved regions and regions smaller than a single page
			if !region.Usable() || region.Length <= uint64(mm.PageSize) {
				return true
			}

			first, last, ok := regionFrames(region)
			if !ok || last < alloc.nextFreeFrame {
				return true
			}

			if !found || region.PhysAddress < bestBase {
				found, bestBase, bestFirst, bestLast = true, region.PhysAddress, first, last
			}
			return true
		})
	}

	alloc.haveRegion = found
	if !found {
		return
	}

	alloc.regionFirstFrame, alloc.regionLastFrame = bestFirst, bestLast
	if alloc.nextFreeFrame < bestFirst {
		alloc.nextFreeFrame = bestFirst
	}
}

// AllocFrame reserves the next free frame. It returns mm.ErrOutOfMemory once
// all usable regions have been exhausted.
func (alloc *RegionFrameAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
nextCandidate:
	for alloc.haveRegion {
		frame := alloc.nextFreeFrame

		// All frames of the current region are used; switch to the next one
		if frame > alloc.regionLastFrame {
			alloc.chooseNextRegion()
			continue
		}

		for i := 0; i < len(alloc.reserved); i++ {
			if alloc.reserved[i].contains(frame) {
				alloc.nextFreeFrame = alloc.reserved[i].lastFrame + 1
				continue nextCandidate
			}
		}

		alloc.nextFreeFrame++
		alloc.allocCount++
		return frame, nil
	}

	return mm.InvalidFrame, mm.ErrOutOfMemory
}

// FreeFrame is not supported by this allocator. The frame remains reserved
// and is accounted as leaked.
func (alloc *RegionFrameAllocator) FreeFrame(_ mm.Frame) *kernel.Error {
	alloc.leakedCount++
	return errFreeNotSupported
}

// AllocCount returns the number of frames handed out so far.
func (alloc *RegionFrameAllocator) AllocCount() uint64 {
	return alloc.allocCount
}

// LeakedCount returns the number of frames that were passed to FreeFrame.
func (alloc *RegionFrameAllocator) LeakedCount() uint64 {
	return alloc.leakedCount
}

// PrintMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map and the reserved regions.
func (alloc *RegionFrameAllocator) PrintMemoryMap() {
	logWriter.Sink = kfmt.GetOutputSink()

	kfmt.Fprintf(&logWriter, "system memory map:\n")
	var totalFree mm.Size
	if alloc.visitRegions != nil {
		alloc.visitRegions(func(region multiboot.MemoryMapEntry) bool {
			kfmt.Fprintf(&logWriter, "\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

			if region.Usable() {
				totalFree += mm.Size(region.Length)
			}
			return true
		})
	}
	kfmt.Fprintf(&logWriter, "available memory: %dKb\n", uint64(totalFree/mm.Kb))

	for i := 0; i < len(alloc.reserved); i++ {
		r := &alloc.reserved[i]
		if !r.valid {
			continue
		}
		kfmt.Fprintf(&logWriter, "%s at 0x%x - 0x%x, reserved frames: %d\n",
			r.name, r.startAddr, r.endAddr,
			uint64(r.lastFrame-r.firstFrame+1),
		)
	}
}
