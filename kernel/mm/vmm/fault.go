package vmm

import (
	"io"

	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/cpu"
	"github.com/christiankuhl/titanium/kernel/kfmt"
	"github.com/christiankuhl/titanium/kernel/mm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readCR2Fn = cpu.ReadCR2

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page fault"}
)

// PageFaultErrorCode is the error code that the CPU pushes on the stack when
// raising a page fault exception.
type PageFaultErrorCode uint64

const (
	pfProtectionViolation PageFaultErrorCode = 1 << iota
	pfCausedByWrite
	pfUserMode
	pfMalformedTable
	pfInstructionFetch
)

// ProtectionViolation returns true if the fault was caused by a page-level
// protection violation; otherwise the page was not present.
func (c PageFaultErrorCode) ProtectionViolation() bool { return c&pfProtectionViolation != 0 }

// CausedByWrite returns true if the faulting access was a write.
func (c PageFaultErrorCode) CausedByWrite() bool { return c&pfCausedByWrite != 0 }

// UserMode returns true if the fault occurred while running in user mode.
func (c PageFaultErrorCode) UserMode() bool { return c&pfUserMode != 0 }

// MalformedTable returns true if a reserved bit was set in one of the
// page table entries used for the translation.
func (c PageFaultErrorCode) MalformedTable() bool { return c&pfMalformedTable != 0 }

// InstructionFetch returns true if the fault was caused by an instruction
// fetch.
func (c PageFaultErrorCode) InstructionFetch() bool { return c&pfInstructionFetch != 0 }

// DescribeTo writes a human readable description of the fault to w.
func (c PageFaultErrorCode) DescribeTo(w io.Writer) {
	switch {
	case c.InstructionFetch() && c.ProtectionViolation():
		kfmt.Fprintf(w, "page protection violation (instruction fetch)")
	case c.InstructionFetch():
		kfmt.Fprintf(w, "instruction fetch from non-present page")
	case c.ProtectionViolation() && c.CausedByWrite():
		kfmt.Fprintf(w, "page protection violation (write)")
	case c.ProtectionViolation():
		kfmt.Fprintf(w, "page protection violation (read)")
	case c.CausedByWrite():
		kfmt.Fprintf(w, "write to non-present page")
	default:
		kfmt.Fprintf(w, "read from non-present page")
	}

	if c.UserMode() {
		kfmt.Fprintf(w, " in user-mode")
	}

	if c.MalformedTable() {
		kfmt.Fprintf(w, ", page table has reserved bit set")
	}
}

// RegisterDumper is implemented by the interrupt frame types that can print
// the CPU state at the time of an exception.
type RegisterDumper interface {
	DumpTo(io.Writer)
}

// PageFaultHandler reports an unrecoverable page fault and halts the
// system. The interrupt dispatcher invokes it with the error code pushed by
// the CPU and the saved registers (which may be nil).
func PageFaultHandler(errorCode uint64, regs RegisterDumper) {
	var (
		w            = kfmt.GetOutputSink()
		faultAddress = uintptr(readCR2Fn())
		code         = PageFaultErrorCode(errorCode)
	)

	kfmt.Fprintf(w, "\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	code.DescribeTo(w)
	kfmt.Fprintf(w, "\n")

	if !mm.IsCanonical(faultAddress) {
		kfmt.Fprintf(w, "Address is not canonical\n")
	}

	if regs != nil {
		kfmt.Fprintf(w, "\nRegisters:\n")
		regs.DumpTo(w)
	}

	panic(errUnrecoverableFault)
}
