package vmm

import (
	"unsafe"

	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/mm"
)

var (
	// tablePtrFn returns a pointer to the page table mapped at the
	// supplied virtual address. It is used by tests to route table
	// accesses through a simulated MMU. When compiling the kernel this
	// function will be automatically inlined.
	tablePtrFn = func(tableAddr uintptr) *table {
		return (*table)(unsafe.Pointer(tableAddr))
	}

	errHugePagesNotSupported = &kernel.Error{Module: "vmm", Message: "mapping through huge pages is not supported"}
)

// table is a page table at any level of the paging hierarchy.
type table [entriesPerTable]pageTableEntry

// entry returns the entry at index. Only the low 9 bits of index are used so
// the returned entry always lies within the table.
func (t *table) entry(index uintptr) *pageTableEntry {
	return &t[index&(entriesPerTable-1)]
}

// zero marks all entries as unused.
func (t *table) zero() {
	for i := 0; i < len(t); i++ {
		t[i] = 0
	}
}

// nextTableAddr returns the virtual address of the table referenced by entry
// index of the table mapped at tableAddr. Shifting the table address left by
// 9 bits adds a new level of indirection to the recursive mapping; the top
// bits stay set so the result remains canonical.
func nextTableAddr(tableAddr, index uintptr) uintptr {
	return (tableAddr << entryIndexBits) | ((index & (entriesPerTable - 1)) << mm.PageShift)
}

// nextTable returns the virtual address of the table referenced by entry
// index of the table mapped at tableAddr. It returns false if the entry is
// not present or maps a huge page.
func nextTable(tableAddr, index uintptr) (uintptr, bool) {
	entry := tablePtrFn(tableAddr).entry(index)
	if !entry.HasFlags(FlagPresent) || entry.HasFlags(FlagHugePage) {
		return 0, false
	}
	return nextTableAddr(tableAddr, index), true
}

// nextTableCreate behaves like nextTable but allocates, links and clears a
// new table if the entry is not present. It panics if the entry maps a huge
// page or if alloc cannot supply a frame.
func nextTableCreate(tableAddr, index uintptr, alloc mm.FrameAllocator) uintptr {
	entry := tablePtrFn(tableAddr).entry(index)
	if entry.HasFlags(FlagHugePage) {
		panic(errHugePagesNotSupported)
	}

	nextAddr := nextTableAddr(tableAddr, index)
	if entry.HasFlags(FlagPresent) {
		return nextAddr
	}

	frame, err := alloc.AllocFrame()
	if err != nil {
		panic(err)
	}

	entry.Set(frame, FlagPresent|FlagRW)
	flushTLBEntryFn(nextAddr)
	tablePtrFn(nextAddr).zero()

	return nextAddr
}
