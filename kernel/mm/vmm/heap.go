package vmm

import (
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
)

const (
	// HeapStart is the virtual address where the kernel heap begins.
	HeapStart = uintptr(0x4444_4444_0000)

	// HeapSize is the size of the kernel heap.
	HeapSize = uintptr(100 * mm.Kb)
)

// HeapInstaller sets up an allocator over the heap range [start, start+size)
// once all of its pages are mapped.
type HeapInstaller func(start, size uintptr)

var heapInstaller HeapInstaller

// SetHeapInstaller registers the function that initHeap invokes after the
// heap range has been mapped.
func SetHeapInstaller(installer HeapInstaller) {
	heapInstaller = installer
}

// initHeap maps every page of the heap range as writable memory backed by
// frames from alloc and hands the range to the registered heap installer.
func initHeap(alloc mm.FrameAllocator) {
	kfmt.Fprintf(&logWriter, "mapping heap at 0x%x - 0x%x\n", HeapStart, HeapStart+HeapSize-1)

	withMapper(func(active *ActivePageTable) {
		pages := mm.PageRangeInclusive(mm.PageFromAddress(HeapStart), mm.PageFromAddress(HeapStart+HeapSize-1))
		for page, ok := pages.Next(); ok; page, ok = pages.Next() {
			active.Map(page, FlagRW, alloc)
		}
	})

	if heapInstaller != nil {
		heapInstaller(HeapStart, HeapSize)
	}
}
