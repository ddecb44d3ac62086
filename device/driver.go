// Package device defines the contract between the kernel and its device
// drivers.
package device

import (
	"io"

	"github.com/christiankuhl/titanium/kernel"
	"github.com/christiankuhl/titanium/kernel/kfmt"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it or nil if the hardware is
// not present.
type ProbeFn func() Driver

// Probe invokes each probe function in order and returns the first driver
// that is detected and successfully initialized. Initialization errors are
// reported to w and the next probe function is tried.
func Probe(w io.Writer, probeFns []ProbeFn) Driver {
	for _, probeFn := range probeFns {
		drv := probeFn()
		if drv == nil {
			continue
		}

		if err := drv.DriverInit(w); err != nil {
			kfmt.Fprintf(w, "%s: [%s] %s\n", drv.DriverName(), err.Module, err.Message)
			continue
		}

		return drv
	}

	return nil
}
