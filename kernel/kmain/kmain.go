package kmain

import (
	"io"

	"github.com/christiankuhl/titanium/device"
	"github.com/christiankuhl/titanium/device/video/console"
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm/pmm/allocator"
	"github.com/christiankuhl/titanium/kernel/mm/vmm"
	"github.com/christiankuhl/titanium/multiboot"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// frameAllocator hands out physical frames until the kernel heap is
	// up. It is a global so that it never lives on the 4K boot stack.
	frameAllocator allocator.RegionFrameAllocator
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end. If the
// kernel extents are zero, they are derived from the ELF sections listed in the
// multiboot info payload.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	if kernelStart == 0 && kernelEnd == 0 {
		kernelStart, kernelEnd = multiboot.KernelRegion()
	}

	reserved := allocator.ReservedRegions{
		KernelStart: kernelStart,
		KernelEnd:   kernelEnd,
	}
	reserved.MultibootStart, reserved.MultibootEnd = multiboot.InfoRegion()
	reserved.StrTabStart, reserved.StrTabEnd = multiboot.StrTabRegion()

	frameAllocator.Init(multiboot.VisitMemRegions, reserved)
	frameAllocator.PrintMemoryMap()

	if err := vmm.Init(&frameAllocator, vmm.BootInfoFromMultiboot()); err != nil {
		panic(err)
	}

	// Attach the console; everything logged so far is replayed from the
	// early print buffer.
	if drv := device.Probe(kfmt.GetOutputSink(), console.ProbeFuncs); drv != nil {
		if w, ok := drv.(io.Writer); ok {
			kfmt.SetOutputSink(w)
		}
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
