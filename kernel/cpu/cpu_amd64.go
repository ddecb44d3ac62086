package cpu

var (
	cpuidFn = ID
)

const (
	// cr3AddrMask extracts the P4 physical address from the CR3 register,
	// dropping the PCID/flag bits.
	cr3AddrMask = uintptr(0x000ffffffffff000)

	// extFeatureLeaf is the CPUID leaf reporting extended processor
	// features.
	extFeatureLeaf = uint32(0x80000001)

	// nxFeatureBit is set in EDX of extFeatureLeaf when the CPU
	// supports the no-execute page protection bit.
	nxFeatureBit = uint32(1 << 20)
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// InterruptsEnabled returns true if the IF flag is set in RFLAGS.
func InterruptsEnabled() bool

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB invalidates all non-global TLB entries by reloading CR3.
func FlushTLB()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// readCR3 returns the raw value of the CR3 register.
func readCR3() uintptr

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	return readCR3() & cr3AddrMask
}

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// EnableNXE sets the NXE bit in the EFER MSR so that page table entries can
// use the no-execute flag.
func EnableNXE()

// EnableWriteProtect sets the WP bit in CR0 which forces ring-0 code to honor
// read-only page mappings.
func EnableWriteProtect()

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// HasNX returns true if the CPU supports the no-execute page flag.
func HasNX() bool {
	if maxLeaf, _, _, _ := cpuidFn(0x80000000); maxLeaf < extFeatureLeaf {
		return false
	}

	_, _, _, edx := cpuidFn(extFeatureLeaf)
	return edx&nxFeatureBit != 0
}
