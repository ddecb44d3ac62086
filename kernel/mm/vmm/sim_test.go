package vmm

import (
	"fmt"

	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/cpu"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/kernel/sync"
)

// simMMU emulates the paging unit for the tests in this package. Physical
// frames that hold page tables are kept in a map and every table access of
// the code under test is resolved by walking the hierarchy rooted at cr3,
// exactly like the MMU does. This exercises the recursive mapping without
// touching real page tables.
type simMMU struct {
	frames map[mm.Frame]*table
	cr3    mm.Frame

	tlbFlushes   int
	entryFlushes []uintptr
	switches     []mm.Frame
	lockCount    int
	lockHeld     bool
}

// newSimMMU returns a simulated MMU whose active P4 table lives in p4Frame
// and maps itself through its last slot.
func newSimMMU(p4Frame mm.Frame) *simMMU {
	s := &simMMU{
		frames: make(map[mm.Frame]*table),
		cr3:    p4Frame,
	}
	s.table(p4Frame).entry(recursiveIndex).Set(p4Frame, FlagPresent|FlagRW)
	return s
}

// table returns the contents of the supplied physical frame interpreted as a
// page table. Frames that were never accessed read as zero.
func (s *simMMU) table(frame mm.Frame) *table {
	t, ok := s.frames[frame]
	if !ok {
		t = new(table)
		s.frames[frame] = t
	}
	return t
}

// resolve translates virtAddr using the tables reachable from cr3. It
// panics if the MMU would raise a page fault.
func (s *simMMU) resolve(virtAddr uintptr) mm.Frame {
	frame, ok := s.walk(s.cr3, virtAddr)
	if !ok {
		panic(fmt.Sprintf("simulated page fault while accessing 0x%x", virtAddr))
	}
	return frame
}

// walk translates virtAddr using the hierarchy rooted at root.
func (s *simMMU) walk(root mm.Frame, virtAddr uintptr) (mm.Frame, bool) {
	entry, level, ok := s.lookup(root, virtAddr)
	if !ok {
		return mm.InvalidFrame, false
	}

	page := mm.PageFromAddress(virtAddr)
	frame, _ := entry.Frame()
	switch level {
	case 1:
		return frame + mm.Frame(page.P2Index()*entriesPerTable+page.P1Index()), true
	case 2:
		return frame + mm.Frame(page.P1Index()), true
	default:
		return frame, true
	}
}

// lookup returns the entry that maps virtAddr in the hierarchy rooted at
// root together with its level (0 = P4, 3 = P1).
func (s *simMMU) lookup(root mm.Frame, virtAddr uintptr) (pageTableEntry, int, bool) {
	page := mm.PageFromAddress(virtAddr)
	indices := [pageLevels]uintptr{page.P4Index(), page.P3Index(), page.P2Index(), page.P1Index()}

	t := s.table(root)
	for level, index := range indices {
		entry := *t.entry(index)
		frame, ok := entry.Frame()
		if !ok {
			return 0, level, false
		}

		if level == pageLevels-1 || ((level == 1 || level == 2) && entry.HasFlags(FlagHugePage)) {
			return entry, level, true
		}

		t = s.table(frame)
	}

	return 0, 0, false
}

// install routes the vmm hardware hooks to the simulated MMU and returns a
// function that restores them.
func (s *simMMU) install() func() {
	origNX, origTablePtrFn := nxEnabled, tablePtrFn
	tablePtrFn = func(tableAddr uintptr) *table {
		return s.table(s.resolve(tableAddr))
	}
	activePDTFn = func() uintptr { return s.cr3.Address() }
	switchPDTFn = func(pdtPhysAddr uintptr) {
		s.cr3 = mm.FrameFromAddress(pdtPhysAddr)
		s.switches = append(s.switches, s.cr3)
	}
	flushTLBEntryFn = func(virtAddr uintptr) { s.entryFlushes = append(s.entryFlushes, virtAddr) }
	flushTLBFn = func() { s.tlbFlushes++ }
	acquireMapperFn = func() sync.IRQState {
		if s.lockHeld {
			panic("mapper lock acquired twice")
		}
		s.lockHeld = true
		s.lockCount++
		return sync.IRQState(true)
	}
	releaseMapperFn = func(state sync.IRQState) {
		if !s.lockHeld || !bool(state) {
			panic("mapper lock released without being held")
		}
		s.lockHeld = false
	}

	return func() {
		nxEnabled = origNX
		tablePtrFn = origTablePtrFn
		activePDTFn = cpu.ActivePDT
		switchPDTFn = cpu.SwitchPDT
		flushTLBEntryFn = cpu.FlushTLBEntry
		flushTLBFn = cpu.FlushTLB
		acquireMapperFn = mapperLock.Acquire
		releaseMapperFn = mapperLock.Release
	}
}

// simAllocator hands out consecutive frames starting at next. If limit is
// non-zero, frames at or above it are never handed out.
type simAllocator struct {
	next      mm.Frame
	limit     mm.Frame
	allocated []mm.Frame
	freed     []mm.Frame
}

func newSimAllocator() *simAllocator {
	return &simAllocator{next: 0x1000}
}

func (a *simAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if a.limit != 0 && a.next >= a.limit {
		return mm.InvalidFrame, mm.ErrOutOfMemory
	}

	frame := a.next
	a.next++
	a.allocated = append(a.allocated, frame)
	return frame, nil
}

func (a *simAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	a.freed = append(a.freed, frame)
	return nil
}

// expectPanic invokes fn and returns the value it panicked with.
func expectPanic(fn func()) (err interface{}) {
	defer func() {
		err = recover()
	}()

	fn()
	return nil
}
