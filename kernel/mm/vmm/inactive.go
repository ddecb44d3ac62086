package vmm

import "github.com/christiankuhl/titanium/kernel/mm"

// InactivePageTable is a P4 table that has been set up but is not
// referenced by CR3.
type InactivePageTable struct {
	p4Frame mm.Frame
}

// NewInactivePageTable clears frame and installs the recursive mapping in
// its last slot so the table can be populated via ActivePageTable.With and
// activated via ActivePageTable.Switch. The frame is accessed through tmp.
func NewInactivePageTable(frame mm.Frame, active *ActivePageTable, tmp *TemporaryPage) InactivePageTable {
	p4 := tablePtrFn(tmp.Map(frame, active))
	p4.zero()
	p4.entry(recursiveIndex).Set(frame, FlagPresent|FlagRW)
	tmp.Unmap(active)

	return InactivePageTable{p4Frame: frame}
}

// P4Frame returns the physical frame of the table.
func (t InactivePageTable) P4Frame() mm.Frame {
	return t.p4Frame
}
