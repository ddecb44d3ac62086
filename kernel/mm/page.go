package mm

import "github.com/christiankuhl/titanium/kernel"

var (
	// ErrNonCanonicalAddress is raised when a virtual address has bits
	// 48-63 that are not copies of bit 47.
	ErrNonCanonicalAddress = &kernel.Error{Module: "mm", Message: "virtual address is not canonical"}
)

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// P4Index returns the index of the P4 entry that covers this page.
func (p Page) P4Index() uintptr {
	return (uintptr(p) >> (3 * entriesPerTableShift)) & entryIndexMask
}

// P3Index returns the index of the P3 entry that covers this page.
func (p Page) P3Index() uintptr {
	return (uintptr(p) >> (2 * entriesPerTableShift)) & entryIndexMask
}

// P2Index returns the index of the P2 entry that covers this page.
func (p Page) P2Index() uintptr {
	return (uintptr(p) >> entriesPerTableShift) & entryIndexMask
}

// P1Index returns the index of the P1 entry that maps this page.
func (p Page) P1Index() uintptr {
	return uintptr(p) & entryIndexMask
}

// IsCanonical returns true if virtAddr lies either in the lower or the upper
// half of the 48-bit virtual address space.
func IsCanonical(virtAddr uintptr) bool {
	return virtAddr < canonicalLowEnd || virtAddr >= canonicalHighStart
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
//
// PageFromAddress panics with ErrNonCanonicalAddress if virtAddr is not a
// canonical address.
func PageFromAddress(virtAddr uintptr) Page {
	if !IsCanonical(virtAddr) {
		panic(ErrNonCanonicalAddress)
	}
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}
