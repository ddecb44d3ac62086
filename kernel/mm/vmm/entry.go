package vmm

import (
	"io"

	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
	"github.com/christiankuhl/titanium/multiboot"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// pageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags. A zero entry is unused.
type pageTableEntry uint64

// IsUnused returns true if the entry neither points to a frame nor has any
// flags set.
func (pte pageTableEntry) IsUnused() bool {
	return pte == 0
}

// SetUnused clears the entry.
func (pte *pageTableEntry) SetUnused() {
	*pte = 0
}

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// Flags returns the flags set on this entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) &^ ptePhysPageMask)
}

// Frame returns the physical frame that this entry points to. The second
// return value is false if the entry is not present.
func (pte pageTableEntry) Frame() (mm.Frame, bool) {
	if !pte.HasFlags(FlagPresent) {
		return mm.InvalidFrame, false
	}
	return mm.Frame((uint64(pte) & ptePhysPageMask) >> mm.PageShift), true
}

// Set overwrites the entry so that it points to frame with the supplied
// flags. Set does not check whether the entry is in use; callers that must
// not clobber an existing mapping check IsUnused first.
func (pte *pageTableEntry) Set(frame mm.Frame, flags PageTableEntryFlag) {
	*pte = pageTableEntry((uint64(frame.Address()) & ptePhysPageMask) | uint64(flags))
}

// FlagsFromElfSection derives the page protection flags for the pages that
// hold an ELF section with the supplied flags: allocated sections are
// present, writable sections are RW and non-executable sections are NX.
func FlagsFromElfSection(secFlags multiboot.ElfSectionFlag) PageTableEntryFlag {
	var flags PageTableEntryFlag

	if secFlags&multiboot.ElfSectionAllocated != 0 {
		flags |= FlagPresent
	}

	if secFlags&multiboot.ElfSectionWritable != 0 {
		flags |= FlagRW
	}

	if secFlags&multiboot.ElfSectionExecutable == 0 {
		flags |= FlagNoExecute
	}

	return flags
}

var flagNames = [...]struct {
	flag PageTableEntryFlag
	name string
}{
	{FlagPresent, "PRESENT"},
	{FlagRW, "RW"},
	{FlagUserAccessible, "USER"},
	{FlagWriteThroughCaching, "WRITE_THROUGH"},
	{FlagDoNotCache, "NO_CACHE"},
	{FlagAccessed, "ACCESSED"},
	{FlagDirty, "DIRTY"},
	{FlagHugePage, "HUGE"},
	{FlagGlobal, "GLOBAL"},
	{FlagNoExecute, "NO_EXECUTE"},
}

// DescribeFlags writes a '|' separated list with the names of the flags in
// flags to w. A "-" is written if no flag is set.
func DescribeFlags(w io.Writer, flags PageTableEntryFlag) {
	var wrote bool
	for i := 0; i < len(flagNames); i++ {
		if flags&flagNames[i].flag == 0 {
			continue
		}

		if wrote {
			kfmt.Fprintf(w, "|")
		}
		kfmt.Fprintf(w, "%s", flagNames[i].name)
		wrote = true
	}

	if !wrote {
		kfmt.Fprintf(w, "-")
	}
}
