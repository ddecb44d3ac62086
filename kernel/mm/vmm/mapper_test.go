package vmm

import (
	"testing"

	"github.com/christiankuhl/titanium/kernel/mm"
)

func TestMapperRoundTrip(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var (
		m     Mapper
		alloc = newSimAllocator()
		virt  = uintptr(0x444444440000)
		page  = mm.PageFromAddress(virt)
		frame = mm.Frame(0x42)
	)

	if _, ok := m.TranslatePage(page); ok {
		t.Fatal("expected page to be unmapped before calling MapTo")
	}

	m.MapTo(page, frame, FlagRW, alloc)

	if exp, got := 3, len(alloc.allocated); got != exp {
		t.Fatalf("expected %d frames to be allocated for the intermediate tables; got %d", exp, got)
	}

	got, ok := m.TranslatePage(page)
	if !ok || got != frame {
		t.Fatalf("expected page to be mapped to frame %d; got %d (mapped: %t)", frame, got, ok)
	}

	for _, offset := range []uintptr{0, 1, 0x123, 0x800, 0xffe, 0xfff} {
		if exp, got := frame.Address()+offset, translateOrZero(&m, virt+offset); got != exp {
			t.Fatalf("expected Translate(0x%x) to return 0x%x; got 0x%x", virt+offset, exp, got)
		}
	}

	entry, _, _ := sim.lookup(sim.cr3, virt)
	if !entry.HasFlags(FlagPresent | FlagRW) {
		t.Fatalf("expected entry to be PRESENT|RW; got flags 0x%x", entry.Flags())
	}

	if n := len(sim.entryFlushes); n == 0 || sim.entryFlushes[n-1] != virt {
		t.Fatalf("expected the TLB entry for 0x%x to be flushed; got %x", virt, sim.entryFlushes)
	}

	// mapping another page in the same P1 reuses the intermediate tables
	m.MapTo(page+1, frame+1, FlagRW, alloc)
	if exp, got := 3, len(alloc.allocated); got != exp {
		t.Fatalf("expected no additional table frames to be allocated; got %d", got)
	}
}

func translateOrZero(m *Mapper, virt uintptr) uintptr {
	phys, _ := m.Translate(virt)
	return phys
}

func TestMapperMap(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var (
		m     Mapper
		alloc = newSimAllocator()
		page  = mm.PageFromAddress(0x200000)
	)

	m.Map(page, FlagRW, alloc)

	frame, ok := m.TranslatePage(page)
	if !ok {
		t.Fatal("expected page to be mapped")
	}

	if exp := alloc.allocated[len(alloc.allocated)-1]; frame != exp {
		t.Fatalf("expected page to be backed by the last allocated frame %d; got %d", exp, frame)
	}
}

func TestMapperIdentityMap(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var m Mapper
	frame := mm.Frame(0xb8)
	m.IdentityMap(frame, FlagRW, newSimAllocator())

	if got, ok := m.Translate(frame.Address()); !ok || got != frame.Address() {
		t.Fatalf("expected 0x%x to be identity mapped; got 0x%x (mapped: %t)", frame.Address(), got, ok)
	}

	// frames above the lower canonical half have no identity page
	nonCanonical := mm.FrameFromAddress(0x0000800000000000)
	if err := expectPanic(func() { m.IdentityMap(nonCanonical, FlagRW, newSimAllocator()) }); err != mm.ErrNonCanonicalAddress {
		t.Fatalf("expected IdentityMap to panic with ErrNonCanonicalAddress; got %v", err)
	}
}

func TestMapperMapErrors(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var m Mapper
	page := mm.PageFromAddress(0x400000)

	t.Run("already mapped", func(t *testing.T) {
		alloc := newSimAllocator()
		m.MapTo(page, 0x10, FlagRW, alloc)

		if err := expectPanic(func() { m.MapTo(page, 0x11, FlagRW, alloc) }); err != ErrPageAlreadyMapped {
			t.Fatalf("expected to panic with ErrPageAlreadyMapped; got %v", err)
		}

		if frame, _ := m.TranslatePage(page); frame != 0x10 {
			t.Fatalf("expected the existing mapping to be preserved; got frame %d", frame)
		}
	})

	t.Run("out of memory while allocating a table", func(t *testing.T) {
		alloc := newSimAllocator()
		alloc.limit = alloc.next + 1

		err := expectPanic(func() { m.MapTo(mm.PageFromAddress(0x7f0000000000), 0x12, FlagRW, alloc) })
		if err != mm.ErrOutOfMemory {
			t.Fatalf("expected to panic with ErrOutOfMemory; got %v", err)
		}
	})

	t.Run("out of memory while allocating the frame", func(t *testing.T) {
		alloc := newSimAllocator()
		alloc.limit = alloc.next

		if err := expectPanic(func() { m.Map(page+1, FlagRW, alloc) }); err != mm.ErrOutOfMemory {
			t.Fatalf("expected to panic with ErrOutOfMemory; got %v", err)
		}
	})

	t.Run("through a huge page", func(t *testing.T) {
		p3 := sim.table(sim.cr3).entry(5)
		p3.Set(0x300, FlagPresent|FlagRW)
		sim.table(0x300).entry(0).Set(0, FlagPresent|FlagRW|FlagHugePage)

		err := expectPanic(func() { m.MapTo(mm.Page(5<<27), 0x13, FlagRW, newSimAllocator()) })
		if err != errHugePagesNotSupported {
			t.Fatalf("expected to panic with errHugePagesNotSupported; got %v", err)
		}
	})
}

func TestMapperNoExecute(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var m Mapper
	alloc := newSimAllocator()

	specs := []struct {
		nx     bool
		page   mm.Page
		expNX  bool
		reason string
	}{
		{false, mm.PageFromAddress(0x600000), false, "NXE disabled"},
		{true, mm.PageFromAddress(0x601000), true, "NXE enabled"},
	}

	for _, spec := range specs {
		nxEnabled = spec.nx
		m.MapTo(spec.page, 0x20, FlagRW|FlagNoExecute, alloc)

		entry, _, _ := sim.lookup(sim.cr3, spec.page.Address())
		if got := entry.HasFlags(FlagNoExecute); got != spec.expNX {
			t.Errorf("[%s] expected NO_EXECUTE to be %t; got %t", spec.reason, spec.expNX, got)
		}
	}
}

func TestMapperUnmap(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var (
		m     Mapper
		alloc = newSimAllocator()
		page  = mm.PageFromAddress(0x800000)
	)

	m.MapTo(page, 0x77, FlagRW, alloc)
	flushes := len(sim.entryFlushes)

	if err := m.Unmap(page, alloc); err != nil {
		t.Fatal(err)
	}

	if _, ok := m.TranslatePage(page); ok {
		t.Fatal("expected page to be unmapped")
	}

	if len(alloc.freed) != 1 || alloc.freed[0] != 0x77 {
		t.Fatalf("expected frame 0x77 to be passed to FreeFrame; got %v", alloc.freed)
	}

	if len(sim.entryFlushes) != flushes+1 || sim.entryFlushes[flushes] != page.Address() {
		t.Fatal("expected the TLB entry of the unmapped page to be flushed")
	}

	// sub-tables are kept
	if _, ok := nextTable(p4VirtualAddr, page.P4Index()); !ok {
		t.Fatal("expected the P3 table to survive Unmap")
	}

	if err := expectPanic(func() { _ = m.Unmap(page, alloc) }); err != ErrInvalidMapping {
		t.Fatalf("expected to panic with ErrInvalidMapping; got %v", err)
	}
}

func TestTranslateHugePages(t *testing.T) {
	sim := newSimMMU(1)
	defer sim.install()()

	var m Mapper

	// P4[1] -> P3 in frame 0x100
	sim.table(sim.cr3).entry(1).Set(0x100, FlagPresent|FlagRW)
	p3 := sim.table(0x100)

	// P3[2] maps a 1G page
	p3.entry(2).Set(mm.Frame(3*hugePage1GFrames), FlagPresent|FlagRW|FlagHugePage)

	// P3[3] -> P2 in frame 0x101; P2[4] maps a 2M page
	p3.entry(3).Set(0x101, FlagPresent|FlagRW)
	sim.table(0x101).entry(4).Set(mm.Frame(9*hugePage2MFrames), FlagPresent|FlagRW|FlagHugePage)

	// misaligned huge pages
	p3.entry(4).Set(mm.Frame(hugePage1GFrames+1), FlagPresent|FlagHugePage)
	sim.table(0x101).entry(5).Set(mm.Frame(hugePage2MFrames+1), FlagPresent|FlagHugePage)

	pageAt := func(p4, p3, p2, p1 uintptr) mm.Page {
		return mm.Page(p4<<27 | p3<<18 | p2<<9 | p1)
	}

	t.Run("1G", func(t *testing.T) {
		exp := mm.Frame(3*hugePage1GFrames + 5*entriesPerTable + 7)
		if got, ok := m.TranslatePage(pageAt(1, 2, 5, 7)); !ok || got != exp {
			t.Fatalf("expected frame %d; got %d (mapped: %t)", exp, got, ok)
		}
	})

	t.Run("2M", func(t *testing.T) {
		exp := mm.Frame(9*hugePage2MFrames + 6)
		if got, ok := m.TranslatePage(pageAt(1, 3, 4, 6)); !ok || got != exp {
			t.Fatalf("expected frame %d; got %d (mapped: %t)", exp, got, ok)
		}
	})

	t.Run("unmapped", func(t *testing.T) {
		if _, ok := m.TranslatePage(pageAt(1, 3, 6, 0)); ok {
			t.Fatal("expected page to be unmapped")
		}
		if _, ok := m.TranslatePage(pageAt(2, 0, 0, 0)); ok {
			t.Fatal("expected page to be unmapped")
		}
	})

	t.Run("misaligned 1G", func(t *testing.T) {
		if err := expectPanic(func() { m.TranslatePage(pageAt(1, 4, 0, 0)) }); err != errHugePageMisaligned {
			t.Fatalf("expected to panic with errHugePageMisaligned; got %v", err)
		}
	})

	t.Run("misaligned 2M", func(t *testing.T) {
		if err := expectPanic(func() { m.TranslatePage(pageAt(1, 3, 5, 0)) }); err != errHugePageMisaligned {
			t.Fatalf("expected to panic with errHugePageMisaligned; got %v", err)
		}
	})

	t.Run("unmap through a huge page", func(t *testing.T) {
		if err := expectPanic(func() { _ = m.Unmap(pageAt(1, 2, 0, 0), newSimAllocator()) }); err != errHugePagesNotSupported {
			t.Fatalf("expected to panic with errHugePagesNotSupported; got %v", err)
		}
	})
}

func TestPageOffset(t *testing.T) {
	if exp, got := uintptr(0xabc), PageOffset(0x1234abc); got != exp {
		t.Fatalf("expected offset 0x%x; got 0x%x", exp, got)
	}
}
