// Package vmm maintains the x86-64 four-level page tables of the kernel. The
// active P4 table maps itself through its last slot, which makes every table
// of the hierarchy reachable at a fixed virtual address.
package vmm

import (
	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/cpu"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/kernel/sync"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	hasNXFn              = cpu.HasNX
	enableNXEFn          = cpu.EnableNXE
	enableWriteProtectFn = cpu.EnableWriteProtect
	acquireMapperFn      = mapperLock.Acquire
	releaseMapperFn      = mapperLock.Release

	// activeTable is the single view of the page tables referenced by CR3.
	activeTable ActivePageTable

	// mapperLock serializes all page table and frame allocator updates and
	// keeps interrupts masked while they are in progress.
	mapperLock sync.IRQLock

	// logWriter prefixes the vmm boot log lines.
	logWriter = kfmt.PrefixWriter{Prefix: []byte("[vmm] ")}
)

// withMapper runs fn with exclusive access to the active page table.
// Interrupts stay disabled until fn returns.
func withMapper(fn func(*ActivePageTable)) {
	state := acquireMapperFn()
	defer releaseMapperFn(state)

	fn(&activeTable)
}

// Init sets up the kernel address space. It enables the no-execute feature
// if the CPU supports it, replaces the page tables installed by the boot
// code with a granular set that honors the ELF section permissions, turns on
// write protection for supervisor code and maps the kernel heap. Once Init
// returns, alloc is registered as the system frame allocator.
func Init(alloc mm.FrameAllocator, boot BootInfo) *kernel.Error {
	logWriter.Sink = kfmt.GetOutputSink()

	if hasNXFn() {
		enableNXEFn()
		nxEnabled = true
	} else {
		kfmt.Fprintf(&logWriter, "cpu does not support NX; mapping all pages as executable\n")
	}

	if _, err := RemapKernel(alloc, boot); err != nil {
		return err
	}

	enableWriteProtectFn()
	mm.SetFrameAllocator(alloc)

	initHeap(alloc)
	return nil
}
