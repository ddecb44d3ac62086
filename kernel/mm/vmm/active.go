package vmm

import (
	"github.com/christiankuhl/titanium/kernel/cpu"
	"github.com/christiankuhl/titanium/kernel/mm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	activePDTFn     = cpu.ActivePDT
	switchPDTFn     = cpu.SwitchPDT
	flushTLBEntryFn = cpu.FlushTLBEntry
	flushTLBFn      = cpu.FlushTLB
)

// ActivePageTable is the page table hierarchy referenced by CR3. There is
// exactly one instance; its mutating operations are run through withMapper.
type ActivePageTable struct {
	Mapper
}

// With temporarily points the recursive slot of the active P4 to inactive
// and invokes fn. All mappings that fn establishes through the supplied
// Mapper end up in inactive. The recursive slot is restored before With
// returns.
//
// The current P4 is reached through tmp while the recursive slot is
// redirected, since the recursive address then resolves to inactive.
func (at *ActivePageTable) With(inactive *InactivePageTable, tmp *TemporaryPage, fn func(*Mapper)) {
	backup := mm.FrameFromAddress(activePDTFn())

	// map the temporary page to the current P4 table
	backupP4Addr := tmp.Map(backup, at)

	// overwrite the recursive mapping
	tablePtrFn(p4VirtualAddr).entry(recursiveIndex).Set(inactive.p4Frame, FlagPresent|FlagRW)
	flushTLBFn()

	// execute fn in the new context
	fn(&at.Mapper)

	// restore the recursive mapping to the original P4 table
	tablePtrFn(backupP4Addr).entry(recursiveIndex).Set(backup, FlagPresent|FlagRW)
	flushTLBFn()

	tmp.Unmap(at)
}

// Switch loads newTable into CR3 and returns the previously active table.
func (at *ActivePageTable) Switch(newTable InactivePageTable) InactivePageTable {
	oldTable := InactivePageTable{p4Frame: mm.FrameFromAddress(activePDTFn())}
	switchPDTFn(newTable.p4Frame.Address())
	return oldTable
}
